package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

var base = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T, maxEvents int) *Storage {
	t.Helper()
	s, err := New(maxEvents, ":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func opening(bridgeID int, offset time.Duration, minutes float64) models.Event {
	return models.Event{
		BridgeID:        bridgeID,
		BridgeName:      "Bridge",
		OpenTime:        base.Add(offset),
		DurationMinutes: minutes,
		Latitude:        47.65,
		Longitude:       -122.35,
	}
}

func TestStorage_AddAndRecent(t *testing.T) {
	s := newTestStorage(t, 100)

	events := []models.Event{
		opening(2, 20*time.Minute, 8),
		opening(1, 0, 10),
		opening(1, 40*time.Minute, 12),
	}
	n, err := s.AddEvents(events)
	if err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 rows written, got %d", n)
	}

	got, err := s.RecentEvents(10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].OpenTime.Before(got[i-1].OpenTime) {
			t.Errorf("events not ascending at %d", i)
		}
	}
	if got[0].ID == "" {
		t.Error("expected an ID to be assigned")
	}
	if !got[0].OpenTime.Equal(base) || got[0].DurationMinutes != 10 {
		t.Errorf("unexpected first event: %+v", got[0])
	}

	// Only the newest two, still oldest first
	got, err = s.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 2 || got[0].BridgeID != 2 || got[1].BridgeID != 1 {
		t.Errorf("unexpected recent window: %+v", got)
	}
}

func TestStorage_UpsertByBridgeAndOpenTime(t *testing.T) {
	s := newTestStorage(t, 100)

	open := opening(1, 0, 0)
	if _, err := s.AddEvents([]models.Event{open}); err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}

	closed := open
	ct := base.Add(9 * time.Minute)
	closed.CloseTime = &ct
	closed.DurationMinutes = 9
	if _, err := s.AddEvents([]models.Event{closed}); err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 stored event after upsert, got %d", count)
	}

	got, err := s.RecentEvents(0)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if got[0].CloseTime == nil || !got[0].CloseTime.Equal(ct) {
		t.Errorf("close time not updated: %v", got[0].CloseTime)
	}
	if got[0].DurationMinutes != 9 {
		t.Errorf("duration not updated: %v", got[0].DurationMinutes)
	}
}

func TestStorage_RejectsInvalidBatch(t *testing.T) {
	s := newTestStorage(t, 100)

	bad := opening(0, 0, 5)
	if _, err := s.AddEvents([]models.Event{opening(1, 0, 5), bad}); err == nil {
		t.Fatal("expected error for invalid event")
	}
	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected nothing stored, got %d", count)
	}
}

func TestStorage_EventsForBridge(t *testing.T) {
	s := newTestStorage(t, 100)

	if _, err := s.AddEvents([]models.Event{
		opening(1, 0, 5),
		opening(2, time.Minute, 5),
		opening(1, time.Hour, 5),
		opening(1, 2*time.Hour, 5),
	}); err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}

	got, err := s.EventsForBridge(1, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("EventsForBridge failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	for _, e := range got {
		if e.BridgeID != 1 {
			t.Errorf("unexpected bridge %d", e.BridgeID)
		}
	}
}

func TestStorage_LatestOpenTime(t *testing.T) {
	s := newTestStorage(t, 100)

	if _, ok, err := s.LatestOpenTime(); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	if _, err := s.AddEvents([]models.Event{opening(1, 0, 5), opening(3, 90*time.Minute, 5)}); err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}
	latest, ok, err := s.LatestOpenTime()
	if err != nil || !ok {
		t.Fatalf("LatestOpenTime: ok=%v err=%v", ok, err)
	}
	if !latest.Equal(base.Add(90 * time.Minute)) {
		t.Errorf("latest = %v", latest)
	}
}

func TestStorage_Rotate(t *testing.T) {
	s := newTestStorage(t, 3)

	var events []models.Event
	for i := 0; i < 5; i++ {
		events = append(events, opening(1, time.Duration(i)*time.Hour, 5))
	}
	if _, err := s.AddEvents(events); err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}

	removed, err := s.Rotate()
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	got, err := s.RecentEvents(0)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events kept, got %d", len(got))
	}
	if !got[0].OpenTime.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("oldest kept = %v, want the third opening", got[0].OpenTime)
	}
}

func TestStorage_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	s, err := New(100, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.AddEvents([]models.Event{opening(1, 0, 5)}); err != nil {
		t.Fatalf("AddEvents failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(100, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 event after reopen, got %d", count)
	}
}
