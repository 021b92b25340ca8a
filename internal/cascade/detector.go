// Package cascade detects cross-bridge temporal correlations: a target bridge opening
// within a short window after a trigger bridge opened.
//
// Detection sorts events once and keeps a sliding window of recent openings, so the
// cost is O(n·k) where k is the average number of openings inside the window, rather
// than O(n²) over the whole history. Every qualifying ordered pair yields one
// relation; use Edges to collapse them into a weighted graph.
//
// Strength is 1 − delay/Window, with an optional concave boost inside the immediate
// sub-range:
//
//	s = (1 − delay/Window) ^ (1 / (1 + ImmediateBoost))   when delay < ImmediateThreshold
//
// The boost raises values that are already above the non-boosted value at the
// immediate threshold, so strength stays strictly decreasing in delay.
package cascade

import (
	"math"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// Config holds the cascade thresholds. The defaults are hand-tuned and due for
// empirical recalibration.
type Config struct {
	Window             time.Duration
	ImmediateThreshold time.Duration
	ShortTermThreshold time.Duration
	ImmediateBoost     float64
}

// DefaultConfig returns a 30 minute window with 5/15 minute classification boundaries.
func DefaultConfig() Config {
	return Config{
		Window:             30 * time.Minute,
		ImmediateThreshold: 5 * time.Minute,
		ShortTermThreshold: 15 * time.Minute,
		ImmediateBoost:     0.5,
	}
}

// Detector finds cascade relations. It holds only its configuration and is safe
// for concurrent use.
type Detector struct {
	cfg Config
}

// New creates a Detector, replacing unusable settings with defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.ImmediateThreshold <= 0 || cfg.ImmediateThreshold > cfg.Window {
		cfg.ImmediateThreshold = def.ImmediateThreshold
	}
	if cfg.ShortTermThreshold < cfg.ImmediateThreshold || cfg.ShortTermThreshold > cfg.Window {
		cfg.ShortTermThreshold = cfg.ImmediateThreshold
	}
	if cfg.ImmediateBoost < 0 || math.IsNaN(cfg.ImmediateBoost) {
		cfg.ImmediateBoost = 0
	}
	return &Detector{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// DetectCascades runs detection with the default configuration.
func DetectCascades(events []models.Event) []models.CascadeRelation {
	return New(DefaultConfig()).DetectCascades(events)
}

// DetectCascades emits one relation for every ordered pair of openings on different
// bridges whose open times are strictly increasing and at most Window apart.
// Invalid and duplicate events are ignored. The result is ordered by target time,
// then trigger time.
func (d *Detector) DetectCascades(events []models.Event) []models.CascadeRelation {
	relations := []models.CascadeRelation{}
	sorted := models.Sanitize(events)
	if len(sorted) < 2 {
		return relations
	}

	start := 0
	for j := range sorted {
		target := &sorted[j]

		// Slide the window front past openings that are too old for this target.
		for start < j && target.OpenTime.Sub(sorted[start].OpenTime) > d.cfg.Window {
			start++
		}

		for i := start; i < j; i++ {
			trigger := &sorted[i]
			if trigger.BridgeID == target.BridgeID {
				continue
			}
			delay := target.OpenTime.Sub(trigger.OpenTime)
			if delay <= 0 {
				continue
			}
			relations = append(relations, models.CascadeRelation{
				TriggerBridgeID: trigger.BridgeID,
				TargetBridgeID:  target.BridgeID,
				TriggerTime:     trigger.OpenTime,
				TargetTime:      target.OpenTime,
				DelayMinutes:    delay.Minutes(),
				Strength:        d.Strength(delay),
				Classification:  d.Classify(delay),
			})
		}
	}
	return relations
}

// Strength maps a delay onto [0, 1]; shorter delays are stronger.
func (d *Detector) Strength(delay time.Duration) float64 {
	if delay <= 0 {
		return 1
	}
	s := 1 - delay.Minutes()/d.cfg.Window.Minutes()
	if s <= 0 {
		return 0
	}
	if delay < d.cfg.ImmediateThreshold && d.cfg.ImmediateBoost > 0 {
		s = math.Pow(s, 1/(1+d.cfg.ImmediateBoost))
	}
	return math.Min(1, s)
}

// Classify buckets a delay; anything at or beyond the short-term threshold is medium-term.
func (d *Detector) Classify(delay time.Duration) models.Classification {
	switch {
	case delay < d.cfg.ImmediateThreshold:
		return models.ClassImmediate
	case delay < d.cfg.ShortTermThreshold:
		return models.ClassShortTerm
	default:
		return models.ClassMediumTerm
	}
}
