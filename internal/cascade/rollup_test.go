package cascade

import (
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

func TestRollup(t *testing.T) {
	relations := []models.CascadeRelation{
		{TriggerBridgeID: 1, TargetBridgeID: 2, Strength: 0.8},
		{TriggerBridgeID: 1, TargetBridgeID: 3, Strength: 0.4},
		{TriggerBridgeID: 2, TargetBridgeID: 3, Strength: 0.6},
	}
	r := NewRollup(relations)

	if got := r.Influence(1); got != 1 {
		t.Errorf("most active trigger should have influence 1, got %v", got)
	}
	if got := r.Influence(2); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected influence 0.5 for bridge 2, got %v", got)
	}
	if got := r.Influence(3); got != 0 {
		t.Errorf("bridge 3 never triggers, got %v", got)
	}
	if got := r.Susceptibility(3); got != 1 {
		t.Errorf("most frequent target should have susceptibility 1, got %v", got)
	}
	if got := r.Susceptibility(2); math.Abs(got-0.8) > 1e-12 {
		t.Errorf("expected susceptibility 0.8 for bridge 2, got %v", got)
	}
}

func TestRollup_Empty(t *testing.T) {
	r := NewRollup(nil)
	if r.Influence(1) != 0 || r.Susceptibility(1) != 0 {
		t.Error("empty rollup should score every bridge 0")
	}
	var nilRollup *Rollup
	if nilRollup.Influence(1) != 0 {
		t.Error("nil rollup should score 0")
	}
}

func TestEdges_AverageStrength(t *testing.T) {
	base := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	relations := []models.CascadeRelation{
		{TriggerBridgeID: 1, TargetBridgeID: 2, TriggerTime: base, Strength: 0.9, DelayMinutes: 3},
		{TriggerBridgeID: 1, TargetBridgeID: 2, TriggerTime: base.Add(time.Hour), Strength: 0.5, DelayMinutes: 15},
		{TriggerBridgeID: 2, TargetBridgeID: 1, TriggerTime: base, Strength: 0.2, DelayMinutes: 24},
	}

	edges := Edges(relations)
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	first := edges[0]
	if first.TriggerBridgeID != 1 || first.TargetBridgeID != 2 {
		t.Errorf("strongest edge should be 1->2, got %d->%d", first.TriggerBridgeID, first.TargetBridgeID)
	}
	if first.Occurrences != 2 {
		t.Errorf("expected 2 occurrences, got %d", first.Occurrences)
	}
	if math.Abs(first.MeanStrength-0.7) > 1e-12 {
		t.Errorf("expected mean strength 0.7, got %v", first.MeanStrength)
	}
	if math.Abs(first.MeanDelayMinutes-9) > 1e-12 {
		t.Errorf("expected mean delay 9, got %v", first.MeanDelayMinutes)
	}

	into := EdgesInto(edges, 1)
	if len(into) != 1 || into[2].Occurrences != 1 {
		t.Errorf("unexpected edges into bridge 1: %+v", into)
	}
}
