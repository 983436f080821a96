// Package store — in-memory Store implementation.
// Used as a fallback when no external KV/Postgres backend is configured
// (local dev, tests, single-process deployments). Supports file-based
// snapshot persistence so sessions survive restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Sessions map[string]*models.Session `json:"sessions"`
}

// MemoryStore implements Store with an in-memory map keyed by user key.
// Save and Load both copy in/out so the caller's session and the stored
// session never alias the same Variables map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session

	// per-key locks so concurrent Save/Load for the same user key serialise,
	// while different users proceed independently.
	keyMu sync.Map // userKey -> *sync.Mutex

	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the background goroutine to stop
}

// NewMemoryStore creates a new in-memory store.
// If SCENARIO_DATA_DIR is set, sessions are persisted to a JSON file in that
// directory. Otherwise defaults to ~/.scenario-engine/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*models.Session),
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}

	dataDir := os.Getenv("SCENARIO_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".scenario-engine")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("memory store configured")
	return m
}

func (m *MemoryStore) lockFor(userKey string) *sync.Mutex {
	v, _ := m.keyMu.LoadOrStore(userKey, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Save persists a copy of session under userKey.
func (m *MemoryStore) Save(_ context.Context, userKey string, session *models.Session) error {
	lk := m.lockFor(userKey)
	lk.Lock()
	defer lk.Unlock()

	cp := session.Clone()
	cp.UserKey = userKey

	m.mu.Lock()
	m.sessions[userKey] = cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

// Load returns a copy of the session stored under userKey.
func (m *MemoryStore) Load(_ context.Context, userKey string) (*models.Session, bool, error) {
	lk := m.lockFor(userKey)
	lk.Lock()
	defer lk.Unlock()

	m.mu.RLock()
	s, ok := m.sessions[userKey]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// Delete removes the session stored under userKey, if any.
func (m *MemoryStore) Delete(_ context.Context, userKey string) error {
	lk := m.lockFor(userKey)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	delete(m.sessions, userKey)
	m.mu.Unlock()

	m.requestSave()
	return nil
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.saveCh:
			m.saveSnapshot()
		case <-m.doneCh:
			return
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{Sessions: m.sessions}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("session snapshot saved")
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", m.snapshotPath).Msg("failed to read snapshot")
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("failed to parse snapshot, starting empty")
		return
	}
	if snap.Sessions != nil {
		m.sessions = snap.Sessions
	}
	log.Info().Int("sessions", len(m.sessions)).Msg("loaded session snapshot")
}

// Close stops the background save goroutine and forces a final snapshot
// write. Safe to call multiple times.
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("flushing final session snapshot before shutdown")
		m.saveSnapshot()
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
