package monitor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// staticSource serves a fixed history
type staticSource struct {
	events []models.Event
	err    error
}

func (s *staticSource) RecentEvents(limit int) ([]models.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && len(s.events) > limit {
		return s.events[len(s.events)-limit:], nil
	}
	return s.events, nil
}

// gatedSource blocks the first call until released
type gatedSource struct {
	events  []models.Event
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) RecentEvents(limit int) ([]models.Event, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.events, nil
}

var tuesday = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func history() []models.Event {
	names := map[int]string{1: "Fremont", 2: "Ballard", 3: "University"}
	var events []models.Event
	for week := 0; week < 4; week++ {
		day := tuesday.AddDate(0, 0, 7*week)
		for bridge := 1; bridge <= 3; bridge++ {
			events = append(events, models.Event{
				BridgeID:        bridge,
				BridgeName:      names[bridge],
				OpenTime:        day.Add(time.Duration(bridge*4) * time.Minute),
				DurationMinutes: float64(5 + bridge),
			})
		}
	}
	return events
}

func TestCompute(t *testing.T) {
	m := New(&staticSource{}, DefaultConfig(), nil, nil, nil)
	now := tuesday.AddDate(0, 0, 28)

	res := m.Compute(history(), now)

	if res.RunID == "" {
		t.Error("expected a run ID")
	}
	if res.EventCount != 12 {
		t.Errorf("EventCount = %d, want 12", res.EventCount)
	}
	if len(res.Buckets) == 0 {
		t.Error("expected buckets")
	}
	if len(res.Relations) == 0 || len(res.Edges) == 0 {
		t.Error("expected cascade relations and edges")
	}
	if len(res.Summaries) != 3 {
		t.Errorf("expected 3 summaries, got %d", len(res.Summaries))
	}
	if len(res.Predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(res.Predictions))
	}
	for i, p := range res.Predictions {
		if p.BridgeID != i+1 {
			t.Errorf("prediction %d is for bridge %d; want ordering by bridge ID", i, p.BridgeID)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("invalid prediction for bridge %d: %v", p.BridgeID, err)
		}
		if p.Tier != models.TierExact {
			t.Errorf("bridge %d tier = %s, want exact", p.BridgeID, p.Tier)
		}
	}
}

func TestCompute_Empty(t *testing.T) {
	m := New(&staticSource{}, DefaultConfig(), nil, nil, nil)
	res := m.Compute(nil, tuesday)

	if len(res.Buckets) != 0 || len(res.Relations) != 0 || len(res.Predictions) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestCompute_ReportsRejectedEvents(t *testing.T) {
	m := New(&staticSource{}, DefaultConfig(), nil, nil, nil)
	events := history()
	events = append(events, events[0], models.Event{BridgeID: -1, BridgeName: "x", OpenTime: tuesday})

	res := m.Compute(events, tuesday.AddDate(0, 0, 28))
	if res.Report.Duplicates != 1 || res.Report.Invalid != 1 {
		t.Errorf("unexpected report: %+v", res.Report)
	}
	if res.EventCount != 12 {
		t.Errorf("EventCount = %d, want 12", res.EventCount)
	}
}

func TestCompute_WorkerCountDoesNotChangeResults(t *testing.T) {
	now := tuesday.AddDate(0, 0, 28)

	cfg := DefaultConfig()
	cfg.Workers = 1
	serial := New(&staticSource{}, cfg, nil, nil, nil).Compute(history(), now)

	cfg.Workers = 8
	parallel := New(&staticSource{}, cfg, nil, nil, nil).Compute(history(), now)

	if !reflect.DeepEqual(serial.Predictions, parallel.Predictions) {
		t.Error("predictions differ between 1 and 8 workers")
	}
}

func TestRefresh(t *testing.T) {
	m := New(&staticSource{events: history()}, DefaultConfig(), nil, nil, nil)

	if m.Latest() != nil {
		t.Fatal("Latest should be nil before any refresh")
	}

	res := <-m.Refresh(context.Background(), tuesday.AddDate(0, 0, 28))
	if res.Err != nil {
		t.Fatalf("Refresh failed: %v", res.Err)
	}
	if res.Generation != 1 {
		t.Errorf("Generation = %d, want 1", res.Generation)
	}
	if m.Latest() != res {
		t.Error("Latest should be the completed result")
	}
}

func TestRefresh_MaxEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 5
	m := New(&staticSource{events: history()}, cfg, nil, nil, nil)

	res := <-m.Refresh(context.Background(), tuesday.AddDate(0, 0, 28))
	if res.EventCount != 5 {
		t.Errorf("EventCount = %d, want 5", res.EventCount)
	}
}

func TestRefresh_LatestWins(t *testing.T) {
	src := &gatedSource{
		events:  history(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := New(src, DefaultConfig(), nil, nil, nil)
	now := tuesday.AddDate(0, 0, 28)

	first := m.Refresh(context.Background(), now)
	<-src.entered

	second := <-m.Refresh(context.Background(), now)
	if second.Generation != 2 {
		t.Fatalf("second generation = %d", second.Generation)
	}
	if m.Latest() != second {
		t.Fatal("second result should be latest")
	}

	close(src.release)
	older := <-first
	if older.Generation != 1 || older.Err != nil {
		t.Fatalf("unexpected first result: gen=%d err=%v", older.Generation, older.Err)
	}
	if m.Latest() != second {
		t.Error("a superseded result must not replace the latest one")
	}
	if m.StaleCount() != 1 {
		t.Errorf("StaleCount = %d, want 1", m.StaleCount())
	}
}

func TestRefresh_Errors(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		boom := errors.New("database is locked")
		m := New(&staticSource{err: boom}, DefaultConfig(), nil, nil, nil)

		res := <-m.Refresh(context.Background(), tuesday)
		if !errors.Is(res.Err, boom) {
			t.Errorf("Err = %v, want wrapped source error", res.Err)
		}
		if m.Latest() != nil {
			t.Error("failed refresh must not become latest")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		m := New(&staticSource{events: history()}, DefaultConfig(), nil, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := <-m.Refresh(ctx, tuesday)
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("Err = %v, want context.Canceled", res.Err)
		}
	})
}

func TestAlerts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlertProbability = 0.5
	cfg.AlertMinConfidence = 0.3
	m := New(&staticSource{}, cfg, nil, nil, nil)

	preds := []models.Prediction{
		{BridgeID: 1, Probability: 0.55, Confidence: 0.4},
		{BridgeID: 2, Probability: 0.70, Confidence: 0.2}, // low confidence
		{BridgeID: 3, Probability: 0.30, Confidence: 0.9}, // unlikely
		{BridgeID: 4, Probability: 0.75, Confidence: 0.5},
	}
	alerts := m.Alerts(preds)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].BridgeID != 4 || alerts[1].BridgeID != 1 {
		t.Errorf("alerts not ordered by probability: %+v", alerts)
	}
}

func TestFilterRecentlySent(t *testing.T) {
	now := tuesday
	cooldown := time.Hour

	tests := []struct {
		name     string
		sentAgo  time.Duration
		sentProb float64
		newProb  float64
		wantKept bool
	}{
		{"never sent", -1, 0, 0.6, true},
		{"within cooldown, same probability", 10 * time.Minute, 0.6, 0.6, false},
		{"within cooldown, small rise", 10 * time.Minute, 0.5, 0.6, false},
		{"within cooldown, large rise", 10 * time.Minute, 0.5, 0.7, true},
		{"cooldown expired", 2 * time.Hour, 0.6, 0.6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&staticSource{}, DefaultConfig(), nil, nil, nil)
			if tt.sentAgo >= 0 {
				m.RecordNotified([]models.Prediction{{BridgeID: 1, Probability: tt.sentProb}}, now.Add(-tt.sentAgo))
			}

			got := m.FilterRecentlySent([]models.Prediction{{BridgeID: 1, Probability: tt.newProb}}, cooldown, now)
			if (len(got) == 1) != tt.wantKept {
				t.Errorf("kept = %v, want %v", len(got) == 1, tt.wantKept)
			}
		})
	}
}

func TestFilterRecentlySent_NonNil(t *testing.T) {
	m := New(&staticSource{}, DefaultConfig(), nil, nil, nil)
	if got := m.FilterRecentlySent(nil, time.Hour, tuesday); got == nil {
		t.Error("expected non-nil slice")
	}
}
