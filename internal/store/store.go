package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session actions
const (
	ActionConnected    = "connected"
	ActionDisconnected = "disconnected"
	ActionError        = "error"
)

type Store struct {
	config StoreConfig
	events []SessionEvent
	lock   *fileLock
	mu     sync.RWMutex
}

type StoreConfig struct {
	Enabled   bool
	Path      string
	MaxEvents int
}

// SessionEvent records one step in the life of a stream connection
type SessionEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID string    `json:"connection_id"`
	Transport    string    `json:"transport"`
	Action       string    `json:"action"`
	Snapshots    int       `json:"snapshots"`
	Error        string    `json:"error,omitempty"`
}

// New creates a new store instance. When cfg.Path is set the file is locked
// for this process and existing events are loaded from it.
func New(cfg StoreConfig) (*Store, error) {
	s := &Store{
		config: cfg,
		events: make([]SessionEvent, 0),
	}

	if !cfg.Enabled || cfg.Path == "" {
		return s, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}

	lock, err := acquireLock(cfg.Path + ".lock")
	if err != nil {
		return nil, err
	}
	s.lock = lock

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		_ = lock.release()
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	return s, nil
}

// Close releases the store file lock
func (s *Store) Close() error {
	return s.lock.release()
}

// Enabled reports whether events are being recorded
func (s *Store) Enabled() bool {
	return s.config.Enabled
}

// Record appends a session event, trimming the oldest ones beyond MaxEvents.
// When the store is file backed and the write fails, the event is dropped
// and memory keeps matching the file.
func (s *Store) Record(event SessionEvent) error {
	if !s.config.Enabled {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]SessionEvent, 0, len(s.events)+1)
	events = append(events, s.events...)
	events = s.trim(append(events, event))

	if s.config.Path != "" {
		if err := s.persist(events); err != nil {
			return err
		}
	}

	s.events = events
	return nil
}

// trim drops the oldest events beyond MaxEvents
func (s *Store) trim(events []SessionEvent) []SessionEvent {
	if s.config.MaxEvents > 0 && len(events) > s.config.MaxEvents {
		return events[len(events)-s.config.MaxEvents:]
	}
	return events
}

// GetRecentEvents returns up to count of the most recent events, oldest
// first. A count of zero or less returns every event.
func (s *Store) GetRecentEvents(count int) []SessionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.events) {
		count = len(s.events)
	}

	return append([]SessionEvent(nil), s.events[len(s.events)-count:]...)
}

// GetConnectionEvents returns every event recorded for one connection,
// oldest first
func (s *Store) GetConnectionEvents(connectionID string) []SessionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []SessionEvent
	for _, e := range s.events {
		if e.ConnectionID == connectionID {
			events = append(events, e)
		}
	}
	return events
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return err
	}

	var events []SessionEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	s.events = s.trim(events)
	return nil
}

// persist replaces the file on disk via rename
func (s *Store) persist(events []SessionEvent) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	tmp := s.config.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	return os.Rename(tmp, s.config.Path)
}
