package models

import (
	"sort"
	"time"
)

// Repository identifies a GitHub repository by owner and name
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns the owner/name form used by the GitHub API
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Run represents a single GitHub Actions workflow run
type Run struct {
	RepositoryName string    `json:"repository_name"`
	ID             uint64    `json:"id"`
	WorkflowName   string    `json:"workflow_name"`
	DisplayTitle   string    `json:"display_title"`
	Event          string    `json:"event"`
	Status         string    `json:"status"` // queued, in_progress, or the conclusion once completed
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	URL            string    `json:"url"`
}

// Snapshot is a complete view of the fetched runs at one point in time.
// It replaces any earlier snapshot rather than extending it.
type Snapshot struct {
	Runs []Run `json:"runs"`
}

const stateCompleted = "completed"

// DeriveStatus collapses the GitHub status/conclusion pair into one value.
// A completed run reports its conclusion when one is present.
func DeriveStatus(state, conclusion string) string {
	if state == stateCompleted && conclusion != "" {
		return conclusion
	}
	return state
}

// NewSnapshot builds a snapshot ordered by creation time, newest first
func NewSnapshot(runs []Run) Snapshot {
	sorted := make([]Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return Snapshot{Runs: sorted}
}
