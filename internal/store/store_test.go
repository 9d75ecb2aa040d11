package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledStoreIgnoresEvents(t *testing.T) {
	s, err := New(StoreConfig{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, s.Record(SessionEvent{ConnectionID: "a", Action: ActionConnected}))
	assert.False(t, s.Enabled())
	assert.Empty(t, s.GetRecentEvents(0))
}

func TestRecordInMemory(t *testing.T) {
	s, err := New(StoreConfig{Enabled: true, MaxEvents: 10})
	require.NoError(t, err)

	require.NoError(t, s.Record(SessionEvent{ConnectionID: "a", Transport: "sse", Action: ActionConnected}))
	require.NoError(t, s.Record(SessionEvent{ConnectionID: "b", Transport: "websocket", Action: ActionConnected}))
	require.NoError(t, s.Record(SessionEvent{ConnectionID: "a", Transport: "sse", Action: ActionDisconnected, Snapshots: 3}))

	events := s.GetRecentEvents(0)
	require.Len(t, events, 3)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp should be filled in")

	connA := s.GetConnectionEvents("a")
	require.Len(t, connA, 2)
	assert.Equal(t, ActionDisconnected, connA[1].Action)
	assert.Equal(t, 3, connA[1].Snapshots)
}

func TestMaxEventsTrim(t *testing.T) {
	s, err := New(StoreConfig{Enabled: true, MaxEvents: 3})
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, s.Record(SessionEvent{ConnectionID: id, Action: ActionConnected}))
	}

	events := s.GetRecentEvents(0)
	require.Len(t, events, 3)
	assert.Equal(t, "3", events[0].ConnectionID)
	assert.Equal(t, "5", events[2].ConnectionID)
}

func TestGetRecentEvents(t *testing.T) {
	s, err := New(StoreConfig{Enabled: true, MaxEvents: 10})
	require.NoError(t, err)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Record(SessionEvent{ConnectionID: id, Action: ActionConnected}))
	}

	recent := s.GetRecentEvents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].ConnectionID)

	assert.Len(t, s.GetRecentEvents(0), 3)
	assert.Len(t, s.GetRecentEvents(50), 3)
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sessions.json")
	cfg := StoreConfig{Enabled: true, Path: path, MaxEvents: 10}

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Record(SessionEvent{ConnectionID: "a", Transport: "sse", Action: ActionConnected}))
	require.NoError(t, s.Record(SessionEvent{ConnectionID: "a", Transport: "sse", Action: ActionError, Error: "fetch repositories: boom"}))
	require.NoError(t, s.Close())

	reloaded, err := New(cfg)
	require.NoError(t, err)
	defer reloaded.Close()

	events := reloaded.GetRecentEvents(0)
	require.Len(t, events, 2)
	assert.Equal(t, ActionError, events[1].Action)
	assert.Equal(t, "fetch repositories: boom", events[1].Error)
}

func TestStoreFileIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	cfg := StoreConfig{Enabled: true, Path: path, MaxEvents: 10}

	first, err := New(cfg)
	require.NoError(t, err)

	_, err = New(cfg)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}

func TestRecordKeepsMemoryWhenWriteFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s, err := New(StoreConfig{Enabled: true, Path: path, MaxEvents: 10})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record(SessionEvent{ConnectionID: "a", Action: ActionConnected}))

	// A directory in the temp file's place makes the next write fail
	require.NoError(t, os.Mkdir(path+".tmp", 0755))

	err = s.Record(SessionEvent{ConnectionID: "a", Action: ActionDisconnected})
	require.Error(t, err)

	events := s.GetRecentEvents(0)
	require.Len(t, events, 1)
	assert.Equal(t, ActionConnected, events[0].Action)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []SessionEvent
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, 1)
}

func TestLoadTrimsToMaxEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	var events []SessionEvent
	for i := 1; i <= 5; i++ {
		events = append(events, SessionEvent{ConnectionID: strconv.Itoa(i), Action: ActionConnected})
	}
	data, err := json.Marshal(events)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	s, err := New(StoreConfig{Enabled: true, Path: path, MaxEvents: 3})
	require.NoError(t, err)
	defer s.Close()

	loaded := s.GetRecentEvents(0)
	require.Len(t, loaded, 3)
	assert.Equal(t, "3", loaded[0].ConnectionID)
	assert.Equal(t, "5", loaded[2].ConnectionID)
}
