package analytics

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()
	if tracker == nil {
		t.Fatal("NewTracker() returned nil")
	}

	if tracker.active == nil {
		t.Error("active should be initialized")
	}
	if tracker.history == nil {
		t.Error("history should be initialized")
	}
}

func TestStartAndRecordSnapshot(t *testing.T) {
	tracker := NewTracker()

	tracker.Start("abc", "sse", "127.0.0.1:5000")
	tracker.RecordSnapshot("abc")
	tracker.RecordSnapshot("abc")
	tracker.RecordSnapshot("unknown")

	info, ok := tracker.Get("abc")
	if !ok {
		t.Fatal("expected stream abc to be active")
	}
	if info.Transport != "sse" {
		t.Errorf("expected transport=sse, got %s", info.Transport)
	}
	if info.Snapshots != 2 {
		t.Errorf("expected Snapshots=2, got %d", info.Snapshots)
	}
	if info.StartedAt.IsZero() || info.LastSnapshot.IsZero() {
		t.Error("timestamps should be set")
	}

	summary := tracker.Summary(10)
	if summary.SnapshotsSent != 2 {
		t.Errorf("expected SnapshotsSent=2, got %d", summary.SnapshotsSent)
	}
}

func TestFinish(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("a", "websocket", "")
	tracker.Start("b", "sse", "")

	info, ok := tracker.Finish("a", errors.New("fetch repositories: boom"))
	if !ok {
		t.Fatal("expected Finish to find stream a")
	}
	if info.Error != "fetch repositories: boom" {
		t.Errorf("unexpected error: %q", info.Error)
	}
	if info.EndedAt.IsZero() {
		t.Error("EndedAt should be set")
	}

	if _, ok := tracker.Finish("a", nil); ok {
		t.Error("finishing twice should report false")
	}

	active := tracker.Active()
	if len(active) != 1 || active[0].ID != "b" {
		t.Errorf("expected only stream b active, got %+v", active)
	}

	history := tracker.GetHistory(10)
	if len(history) != 1 || history[0].ID != "a" {
		t.Errorf("expected stream a in history, got %+v", history)
	}
}

func TestSummary(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("1", "sse", "")
	tracker.Start("2", "sse", "")
	tracker.Start("3", "websocket", "")
	tracker.Finish("1", nil)

	summary := tracker.Summary(5)
	if summary.ActiveStreams != 2 {
		t.Errorf("expected ActiveStreams=2, got %d", summary.ActiveStreams)
	}
	if summary.TotalStreams != 3 {
		t.Errorf("expected TotalStreams=3, got %d", summary.TotalStreams)
	}
	if summary.ByTransport["sse"] != 1 || summary.ByTransport["websocket"] != 1 {
		t.Errorf("unexpected transport counts: %v", summary.ByTransport)
	}
	if len(summary.RecentFinished) != 1 {
		t.Errorf("expected 1 finished stream, got %d", len(summary.RecentFinished))
	}
}

func TestGetHistoryLimit(t *testing.T) {
	tracker := NewTracker()

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%d", i)
		tracker.Start(id, "sse", "")
		tracker.Finish(id, nil)
	}

	// Test limit
	history := tracker.GetHistory(5)
	if len(history) != 5 {
		t.Errorf("expected 5 streams, got %d", len(history))
	}
	if history[0].ID != "s5" {
		t.Errorf("expected oldest returned stream s5, got %s", history[0].ID)
	}

	// Test getting all
	history = tracker.GetHistory(0)
	if len(history) != 10 {
		t.Errorf("expected 10 streams, got %d", len(history))
	}

	// Test getting more than available
	history = tracker.GetHistory(20)
	if len(history) != 10 {
		t.Errorf("expected 10 streams, got %d", len(history))
	}
}

func TestHistoryCapacity(t *testing.T) {
	tracker := NewTracker()

	for i := 0; i < 150; i++ {
		id := fmt.Sprintf("s%d", i)
		tracker.Start(id, "sse", "")
		tracker.Finish(id, nil)
	}

	history := tracker.GetHistory(0)
	if len(history) != historySize {
		t.Errorf("expected history limited to %d, got %d", historySize, len(history))
	}

	// Oldest entries are dropped first
	if history[0].ID != "s50" {
		t.Errorf("expected oldest entry s50, got %s", history[0].ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tracker := NewTracker()

	done := make(chan bool)

	// Concurrent stream lifecycles
	go func() {
		for i := 0; i < 50; i++ {
			id := fmt.Sprintf("w%d", i)
			tracker.Start(id, "websocket", "")
			tracker.RecordSnapshot(id)
			tracker.Finish(id, nil)
		}
		done <- true
	}()

	// Concurrent reads
	go func() {
		for i := 0; i < 50; i++ {
			tracker.Summary(10)
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 50; i++ {
			tracker.Active()
			tracker.GetHistory(5)
		}
		done <- true
	}()

	<-done
	<-done
	<-done

	if got := tracker.Summary(0).TotalStreams; got != 50 {
		t.Errorf("expected TotalStreams=50, got %d", got)
	}
}
