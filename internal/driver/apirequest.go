package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// apiRequestTimeout bounds the whole apiRequest attempt budget, per spec
// §5: timeout must be indistinguishable from transport failure and routes
// to the failure branch.
const apiRequestTimeout = 10 * time.Second

// APIRequestHandler performs the apiRequest block's HTTP call, projects the
// configured response fields into session variables on success, and
// branches to Out[0] (success) or Out[1] (failure).
type APIRequestHandler struct {
	client *http.Client
}

// NewAPIRequestHandler builds an APIRequestHandler with its own bounded
// HTTP client, independent of any transport-level client.
func NewAPIRequestHandler() *APIRequestHandler {
	return &APIRequestHandler{
		client: &http.Client{Timeout: apiRequestTimeout},
	}
}

func (h *APIRequestHandler) Execute(ctx context.Context, sess *models.Session, block *models.Block, _ *string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, apiRequestTimeout)
	defer cancel()

	data, status, err := h.doRequest(ctx, block.APIRequest)
	if err != nil {
		log.Warn().Err(err).Str("user_key", sess.UserKey).Str("block_id", block.ID).
			Str("url", block.APIRequest.URL).Msg("apiRequest transport error, routing to failure branch")
		return h.branch(sess, block, false)
	}

	if status < 200 || status >= 300 {
		log.Warn().Int("status", status).Str("user_key", sess.UserKey).Str("block_id", block.ID).
			Msg("apiRequest non-2xx response, routing to failure branch")
		return h.branch(sess, block, false)
	}

	for field, varName := range block.APIRequest.ResponseVars {
		if v, ok := data[field]; ok {
			sess.Variables[varName] = v
		}
	}
	return h.branch(sess, block, true)
}

// doRequest issues the single attempt with a short bounded retry for
// transient transport errors (connection refused, reset) — not for 4xx/5xx,
// which are meaningful branch decisions, not retry candidates.
func (h *APIRequestHandler) doRequest(ctx context.Context, params models.APIRequestParams) (map[string]any, int, error) {
	var (
		status int
		data   map[string]any
	)

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	op := func() error {
		var bodyReader *bytes.Reader
		if params.Body != "" {
			bodyReader = bytes.NewReader([]byte(params.Body))
		} else {
			bodyReader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, params.Method, params.URL, bodyReader)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range params.Headers {
			req.Header.Set(k, v)
		}
		if req.Header.Get("Content-Type") == "" && params.Body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		data = map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&data)
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, 0, err
	}
	return data, status, nil
}

func (h *APIRequestHandler) branch(sess *models.Session, block *models.Block, success bool) (Result, error) {
	idx := 1
	if success {
		idx = 0
	}
	if idx >= len(block.Connections.Out) {
		return ResultBreak, nil
	}
	sess.CurrentBlock = block.Connections.Out[idx]
	return ResultManualSwitch, nil
}
