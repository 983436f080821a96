// Package notify fans session-lifecycle events out to author-configured
// webhook URLs: a dialog reaching "final", or terminating on an
// unrecoverable "break". This is the one outbound-notification surface the
// scenario engine needs — an editor dashboard wants to know a dialog
// finished — so it stays scoped to that single use rather than growing into
// a general pub/sub system.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// EventType describes why a session stopped.
type EventType string

const (
	EventFinal EventType = "final"
	EventBreak EventType = "break"
)

// Event is the payload POSTed to every configured webhook URL.
type Event struct {
	Type      EventType      `json:"type"`
	UserKey   string         `json:"user_key"`
	BlockID   string         `json:"block_id"`
	Variables map[string]any `json:"variables,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Service dispatches session-lifecycle events to webhook URLs, with
// HMAC-SHA256 request signing and bounded retry, modelled on the teacher's
// own webhook channel driver.
type Service struct {
	urls    []string
	secret  string
	client  *http.Client
	timeout time.Duration
}

// NewService builds a notifier. If urls is empty, Dispatch is a no-op —
// callers do not need to check whether notification is configured.
func NewService(urls []string, secret string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		urls:    urls,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Dispatch sends event to every configured webhook URL concurrently and
// best-effort: failures are logged, never returned, since session-lifecycle
// notification is an optional side channel, not part of the driver's error
// taxonomy.
func (s *Service) Dispatch(ctx context.Context, event Event) {
	if len(s.urls) == 0 {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Msg("notify: marshal event failed")
		return
	}

	sig := s.sign(body)
	for _, url := range s.urls {
		go s.send(ctx, url, body, sig, event.Type)
	}
}

func (s *Service) sign(body []byte) string {
	if s.secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// send posts body to url with up to 3 attempts and exponential backoff,
// bounded by the service's configured timeout for the whole attempt budget.
func (s *Service) send(ctx context.Context, url string, body []byte, sig string, eventType EventType) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Scenario-Event", string(eventType))
		if sig != "" {
			req.Header.Set("X-Scenario-Signature", "sha256="+sig)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, url)
	}

	if err := backoff.Retry(op, bo); err != nil {
		log.Warn().Err(err).Str("url", url).Str("event", string(eventType)).Msg("notify: webhook dispatch failed")
	}
}
