// Package transport holds the runtime-facing transport adapters: the
// in-browser preview's synchronous HTTP surface, the Telegram long-polling
// bot, and the WebSocket push channel. All three implement driver.Transport.
package transport

import (
	"context"
	"sync"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver"
)

// PreviewMessage is one outbound event captured for a synchronous HTTP
// round-trip: either a plain send, a free-text prompt, or a choice prompt.
type PreviewMessage struct {
	Kind    string         `json:"kind"`
	Text    string         `json:"text"`
	Options []PreviewOption `json:"options,omitempty"`
}

// PreviewOption mirrors driver.ChoiceOption for JSON responses.
type PreviewOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Preview is the browser-preview transport adapter named in spec §1's
// out-of-scope "browser preview UI" boundary: it implements only the
// runtime-facing edge of it. Because the HTTP handler invokes driver.Start
// / driver.Resume synchronously in the request goroutine, ask_text and
// ask_choice don't need a correlation map — they just buffer into the
// current request's slot, and the handler drains it once the advance loop
// returns.
type Preview struct {
	mu      sync.Mutex
	buffers map[string][]PreviewMessage
}

// NewPreview builds an empty buffered transport.
func NewPreview() *Preview {
	return &Preview{buffers: make(map[string][]PreviewMessage)}
}

func (p *Preview) append(userKey string, msg PreviewMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffers[userKey] = append(p.buffers[userKey], msg)
}

func (p *Preview) Send(_ context.Context, userKey, text string) error {
	p.append(userKey, PreviewMessage{Kind: "send", Text: text})
	return nil
}

func (p *Preview) AskText(_ context.Context, userKey, prompt string) error {
	p.append(userKey, PreviewMessage{Kind: "ask_text", Text: prompt})
	return nil
}

func (p *Preview) AskChoice(_ context.Context, userKey, prompt string, options []driver.ChoiceOption) error {
	opts := make([]PreviewOption, len(options))
	for i, o := range options {
		opts[i] = PreviewOption{ID: o.ID, Label: o.Label}
	}
	p.append(userKey, PreviewMessage{Kind: "ask_choice", Text: prompt, Options: opts})
	return nil
}

// Drain returns and clears every message buffered for userKey since the
// last drain — exactly the events produced by the advance loop the caller
// just ran.
func (p *Preview) Drain(userKey string) []PreviewMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.buffers[userKey]
	delete(p.buffers, userKey)
	if msgs == nil {
		return []PreviewMessage{}
	}
	return msgs
}
