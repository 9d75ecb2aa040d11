package v1

import (
	"time"

	"Actionboard/internal/analytics"
	"Actionboard/internal/models"
	"Actionboard/internal/store"
)

// Run is the wire form of a workflow run as sent to dashboard clients
type Run struct {
	RepositoryName string    `json:"repositoryName"`
	ID             uint64    `json:"id"`
	WorkflowName   string    `json:"workflowName"`
	DisplayTitle   string    `json:"displayTitle"`
	Event          string    `json:"event"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	HTMLURL        string    `json:"htmlUrl"`
}

// Snapshot is one complete frame of the stream. Clients replace their view
// with it.
type Snapshot struct {
	Runs []Run `json:"runs"`
}

// ErrorMessage is the final frame sent when a stream ends with an error
type ErrorMessage struct {
	Error string `json:"error"`
}

// Ready is the first frame of an SSE stream
type Ready struct {
	ConnectionID string    `json:"connectionId"`
	ServerTime   time.Time `json:"serverTime"`
}

type StatusResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Streams   analytics.Summary `json:"streams"`
}

type StreamsResponse struct {
	Timestamp time.Time              `json:"timestamp"`
	Active    []analytics.StreamInfo `json:"active"`
	Finished  []analytics.StreamInfo `json:"finished"`
}

type EventsResponse struct {
	Timestamp time.Time            `json:"timestamp"`
	Count     int                  `json:"count"`
	Events    []store.SessionEvent `json:"events"`
}

// FromSnapshot converts a snapshot to its wire form, keeping run order
func FromSnapshot(s models.Snapshot) Snapshot {
	runs := make([]Run, 0, len(s.Runs))
	for _, r := range s.Runs {
		runs = append(runs, Run{
			RepositoryName: r.RepositoryName,
			ID:             r.ID,
			WorkflowName:   r.WorkflowName,
			DisplayTitle:   r.DisplayTitle,
			Event:          r.Event,
			Status:         r.Status,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
			HTMLURL:        r.URL,
		})
	}
	return Snapshot{Runs: runs}
}
