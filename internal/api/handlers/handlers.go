// Package handlers implements the HTTP admin/preview surface: start/resume
// a dialog and inspect its status, with the browser-preview transport
// adapter built directly on top (ask_text/ask_choice return the prompt in
// the response body; the next POST is the resume).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/driver"
	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/transport"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Handlers holds the dependencies the scenario-engine HTTP surface needs.
type Handlers struct {
	Driver  *driver.Driver
	Preview *transport.Preview
	Version string
}

func New(d *driver.Driver, preview *transport.Preview, version string) *Handlers {
	return &Handlers{Driver: d, Preview: preview, Version: version}
}

type startRequest struct {
	InitMeta map[string]any `json:"init_meta"`
}

type resumeRequest struct {
	Input string `json:"input"`
}

type sessionResponse struct {
	UserKey  string                    `json:"user_key"`
	Active   bool                      `json:"active"`
	Messages []transport.PreviewMessage `json:"messages"`
}

// StartSession starts (or restarts) a dialog for the path's user key and
// returns every message the advance loop produced before it suspended.
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")

	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if err := h.Driver.Start(r.Context(), userKey, req.InitMeta); err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("start session failed")
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	h.writeSession(w, r, userKey)
}

// ResumeSession delivers input to an in-progress dialog and returns every
// message the advance loop produced before it suspended or terminated.
func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.Driver.Resume(r.Context(), userKey, req.Input); err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("resume session failed")
		writeError(w, http.StatusInternalServerError, "failed to resume session")
		return
	}

	h.writeSession(w, r, userKey)
}

// GetSession reports whether a dialog exists and is active, without
// advancing it.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	active, exists, err := h.Driver.Status(r.Context(), userKey)
	if err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("status lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !exists {
		log.Debug().Err(models.ErrSessionNotFound).Str("user_key", userKey).Msg("status lookup for absent session")
		writeError(w, http.StatusNotFound, "no session for this user key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_key": userKey, "active": active})
}

func (h *Handlers) writeSession(w http.ResponseWriter, r *http.Request, userKey string) {
	active, _, err := h.Driver.Status(r.Context(), userKey)
	if err != nil {
		log.Error().Err(err).Str("user_key", userKey).Msg("status lookup after advance failed")
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserKey:  userKey,
		Active:   active,
		Messages: h.Preview.Drain(userKey),
	})
}

// Health reports liveness for load balancers and orchestrators.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports the running build's version string.
func (h *Handlers) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
