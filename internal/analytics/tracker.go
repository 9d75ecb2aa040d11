package analytics

import (
	"sort"
	"sync"
	"time"
)

// historySize bounds how many finished streams are remembered
const historySize = 100

// StreamInfo describes one snapshot stream served to a client
type StreamInfo struct {
	ID           string    `json:"id"`
	Transport    string    `json:"transport"`
	RemoteAddr   string    `json:"remote_addr"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
	Snapshots    int       `json:"snapshots"`
	LastSnapshot time.Time `json:"last_snapshot,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Summary is the point-in-time view exposed by the status endpoint
type Summary struct {
	ActiveStreams  int            `json:"active_streams"`
	TotalStreams   int            `json:"total_streams"`
	SnapshotsSent  int            `json:"snapshots_sent"`
	ByTransport    map[string]int `json:"by_transport"`
	Streams        []StreamInfo   `json:"streams"`
	RecentFinished []StreamInfo   `json:"recent_finished"`
}

// Tracker keeps track of the snapshot streams currently being served
type Tracker struct {
	mu            sync.RWMutex
	active        map[string]*StreamInfo
	history       []StreamInfo
	total         int
	snapshotsSent int
}

// NewTracker creates a new stream tracker
func NewTracker() *Tracker {
	return &Tracker{
		active:  make(map[string]*StreamInfo),
		history: make([]StreamInfo, 0, historySize),
	}
}

// Start registers a new active stream
func (t *Tracker) Start(id, transport, remoteAddr string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[id] = &StreamInfo{
		ID:         id,
		Transport:  transport,
		RemoteAddr: remoteAddr,
		StartedAt:  time.Now(),
	}
	t.total++
}

// RecordSnapshot notes that a snapshot was delivered on stream id
func (t *Tracker) RecordSnapshot(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.active[id]
	if !ok {
		return
	}
	info.Snapshots++
	info.LastSnapshot = time.Now()
	t.snapshotsSent++
}

// Finish moves stream id into the history. A non-nil err is recorded as the
// reason the stream ended.
func (t *Tracker) Finish(id string, err error) (StreamInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.active[id]
	if !ok {
		return StreamInfo{}, false
	}
	delete(t.active, id)

	info.EndedAt = time.Now()
	if err != nil {
		info.Error = err.Error()
	}

	t.history = append(t.history, *info)
	// Keep only the most recent streams
	if len(t.history) > historySize {
		t.history = t.history[1:]
	}

	return *info, true
}

// Get returns the active stream with the given id
func (t *Tracker) Get(id string) (StreamInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := t.active[id]
	if !ok {
		return StreamInfo{}, false
	}
	return *info, true
}

// Active returns the active streams, oldest first
func (t *Tracker) Active() []StreamInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.activeLocked()
}

func (t *Tracker) activeLocked() []StreamInfo {
	streams := make([]StreamInfo, 0, len(t.active))
	for _, info := range t.active {
		streams = append(streams, *info)
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].StartedAt.Before(streams[j].StartedAt)
	})
	return streams
}

// GetHistory returns up to limit finished streams, oldest first
func (t *Tracker) GetHistory(limit int) []StreamInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.historyLocked(limit)
}

func (t *Tracker) historyLocked(limit int) []StreamInfo {
	if limit <= 0 || limit > len(t.history) {
		limit = len(t.history)
	}

	start := len(t.history) - limit
	result := make([]StreamInfo, limit)
	copy(result, t.history[start:])
	return result
}

// Summary returns aggregate counters plus the active and recent streams
func (t *Tracker) Summary(recent int) Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byTransport := make(map[string]int)
	for _, info := range t.active {
		byTransport[info.Transport]++
	}

	return Summary{
		ActiveStreams:  len(t.active),
		TotalStreams:   t.total,
		SnapshotsSent:  t.snapshotsSent,
		ByTransport:    byTransport,
		Streams:        t.activeLocked(),
		RecentFinished: t.historyLocked(recent),
	}
}
