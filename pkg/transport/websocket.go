package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second
)

// wsConn pairs a live connection with its per-connection rate limiter, so
// one chatty browser tab can't starve the others sharing the process.
type wsConn struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

// wsEvent is the push-channel wire shape, mirroring transport.PreviewMessage
// for outbound events and carrying a free-form "input" for inbound resumes.
type wsEvent struct {
	Kind    string          `json:"kind"`
	Text    string          `json:"text,omitempty"`
	Options []PreviewOption `json:"options,omitempty"`
	Input   string          `json:"input,omitempty"`
}

// WebSocket is the in-browser preview's live/push-mode transport adapter:
// one connection per user key, outbound events written directly to the
// socket instead of buffered for an HTTP response. It implements
// driver.Transport with the dispatch-and-return-wait suspension style —
// ask_text/ask_choice write and return, the browser's reply arrives later
// as an inbound frame routed back through Resume.
type WebSocket struct {
	driver    Driver
	upgrader  websocket.Upgrader
	rateLimit rate.Limit
	burst     int

	mu    sync.RWMutex
	conns map[string]*wsConn // userKey -> connection
}

// NewWebSocket builds the adapter. ratePerSec/burst bound each connection's
// inbound message rate.
func NewWebSocket(d Driver, ratePerSec float64, burst int) *WebSocket {
	return &WebSocket{
		driver:    d,
		rateLimit: rate.Limit(ratePerSec),
		burst:     burst,
		conns:     make(map[string]*wsConn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler upgrades the request and serves one user's connection until it
// closes. userKey is expected as the "user_key" query parameter — this
// adapter has no session/auth layer of its own, matching the out-of-scope
// "browser preview UI" boundary named in spec §1.
func (ws *WebSocket) Handler(w http.ResponseWriter, r *http.Request) {
	userKey := r.URL.Query().Get("user_key")
	if userKey == "" {
		http.Error(w, "user_key query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket: upgrade failed")
		return
	}

	wc := &wsConn{conn: conn, limiter: rate.NewLimiter(ws.rateLimit, ws.burst)}
	ws.mu.Lock()
	if existing, ok := ws.conns[userKey]; ok {
		existing.conn.Close()
	}
	ws.conns[userKey] = wc
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		if ws.conns[userKey] == wc {
			delete(ws.conns, userKey)
		}
		ws.mu.Unlock()
		conn.Close()
	}()

	ws.serve(r.Context(), userKey, wc)
}

func (ws *WebSocket) serve(ctx context.Context, userKey string, wc *wsConn) {
	wc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			wc.writeMu.Lock()
			wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := wc.conn.WriteMessage(websocket.PingMessage, nil)
			wc.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	for {
		var evt wsEvent
		if err := wc.conn.ReadJSON(&evt); err != nil {
			return
		}
		if !wc.limiter.Allow() {
			_ = wc.writeJSON(wsEvent{Kind: "error", Text: "rate limit exceeded"})
			continue
		}

		active, exists, err := ws.driver.Status(ctx, userKey)
		if err != nil {
			log.Error().Err(err).Str("user_key", userKey).Msg("websocket: status lookup failed")
			continue
		}

		switch {
		case evt.Kind == "start" || !exists:
			if err := ws.driver.Start(ctx, userKey, map[string]any{}); err != nil {
				log.Error().Err(err).Str("user_key", userKey).Msg("websocket: start failed")
			}
		case !active:
			_ = wc.writeJSON(wsEvent{Kind: "send", Text: "Сессия не активна. Отправьте start."})
		default:
			if err := ws.driver.Resume(ctx, userKey, evt.Input); err != nil {
				log.Error().Err(err).Str("user_key", userKey).Msg("websocket: resume failed")
			}
		}
	}
}

func (ws *WebSocket) connFor(userKey string) (*wsConn, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	wc, ok := ws.conns[userKey]
	return wc, ok
}

// Send implements driver.Transport.
func (ws *WebSocket) Send(_ context.Context, userKey, text string) error {
	wc, ok := ws.connFor(userKey)
	if !ok {
		return nil // connection already closed; best-effort per spec §5
	}
	return wc.writeJSON(wsEvent{Kind: "send", Text: text})
}

// AskText implements driver.Transport.
func (ws *WebSocket) AskText(_ context.Context, userKey, prompt string) error {
	wc, ok := ws.connFor(userKey)
	if !ok {
		return nil
	}
	return wc.writeJSON(wsEvent{Kind: "ask_text", Text: prompt})
}

// AskChoice implements driver.Transport.
func (ws *WebSocket) AskChoice(_ context.Context, userKey, prompt string, options []driver.ChoiceOption) error {
	wc, ok := ws.connFor(userKey)
	if !ok {
		return nil
	}
	opts := make([]PreviewOption, len(options))
	for i, o := range options {
		opts[i] = PreviewOption{ID: o.ID, Label: o.Label}
	}
	return wc.writeJSON(wsEvent{Kind: "ask_choice", Text: prompt, Options: opts})
}
