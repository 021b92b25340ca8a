// Package models defines the core domain entities for the bridgecast application.
// These models represent drawbridge opening events, the per-bridge statistical
// buckets derived from them, cross-bridge cascade relations, and predictions.
// All models include built-in validation so that the analytics packages can skip
// malformed input instead of failing on it.
//
// Terminology:
//   - Event: one physical raise/lower cycle of a single drawbridge.
//   - Cascade: one bridge opening shortly after another bridge opened.
//   - Tier: one level of the widening search used by the prediction engine.
package models

import (
	"errors"
	"math"
	"time"
)

// Event represents a single bridge opening as reported by the ingestion feed.
// Events are never mutated once constructed; the ingestion layer owns their lifecycle.
//
// CloseTime is nil while the bridge is still open. DurationMinutes may be left at
// zero when the feed did not report it, in which case EffectiveDuration derives it
// from CloseTime.
type Event struct {
	ID              string     `json:"id,omitempty"`
	BridgeID        int        `json:"bridge_id"`
	BridgeName      string     `json:"bridge_name"`
	OpenTime        time.Time  `json:"open_time"`
	CloseTime       *time.Time `json:"close_time,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
}

// Validate checks that all event fields are usable for statistics.
func (e *Event) Validate() error {
	if e.BridgeID <= 0 {
		return errors.New("bridge ID must be positive")
	}
	if e.BridgeName == "" {
		return errors.New("bridge name must not be empty")
	}
	if e.OpenTime.IsZero() {
		return errors.New("open time must be set")
	}
	if math.IsNaN(e.DurationMinutes) || math.IsInf(e.DurationMinutes, 0) {
		return errors.New("duration must be a finite number")
	}
	if e.DurationMinutes < 0 {
		return errors.New("duration must not be negative")
	}
	if e.CloseTime != nil && e.CloseTime.Before(e.OpenTime) {
		return errors.New("close time must not be before open time")
	}
	if math.IsNaN(e.Latitude) || math.IsNaN(e.Longitude) {
		return errors.New("coordinates must be numbers")
	}
	return nil
}

// IsOpen reports whether the bridge has not closed yet.
func (e *Event) IsOpen() bool {
	return e.CloseTime == nil
}

// EffectiveDuration returns the opening length in minutes. A reported duration
// wins; otherwise it is derived from the close time. Zero means unknown.
func (e *Event) EffectiveDuration() float64 {
	if e.DurationMinutes > 0 {
		return e.DurationMinutes
	}
	if e.CloseTime != nil {
		if d := e.CloseTime.Sub(e.OpenTime).Minutes(); d > 0 {
			return d
		}
	}
	return 0
}

// Key identifies an opening independently of its storage ID. Two feed records
// for the same bridge at the same instant are the same opening.
func (e *Event) Key() EventKey {
	return EventKey{BridgeID: e.BridgeID, OpenUnixNano: e.OpenTime.UnixNano()}
}

// EventKey is the natural identity of an opening
type EventKey struct {
	BridgeID     int
	OpenUnixNano int64
}
