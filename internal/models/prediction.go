package models

import (
	"errors"
	"time"
)

// Tier names the fallback level that produced a prediction, narrowest first.
type Tier string

const (
	TierExact      Tier = "exact"
	TierHourPlus1  Tier = "hour±1"
	TierHourPlus2  Tier = "hour±2"
	TierDayType    Tier = "weekday-type"
	TierAllTime    Tier = "all-time"
	TierSystemWide Tier = "system-wide"
)

// Tiers lists every tier in search order.
var Tiers = []Tier{TierExact, TierHourPlus1, TierHourPlus2, TierDayType, TierAllTime, TierSystemWide}

// Prediction is an on-demand estimate for one bridge at one moment. It is never
// persisted by the analytics core.
type Prediction struct {
	BridgeID                int       `json:"bridge_id"`
	BridgeName              string    `json:"bridge_name"`
	At                      time.Time `json:"at"`
	Probability             float64   `json:"probability"`
	ExpectedDurationMinutes float64   `json:"expected_duration_minutes"`
	Confidence              float64   `json:"confidence"`
	Tier                    Tier      `json:"tier"`
	SampleCount             int       `json:"sample_count"`
	CascadeFactor           float64   `json:"cascade_factor"`
	Reasoning               string    `json:"reasoning"`
}

// Validate checks that all prediction fields are within range
func (p *Prediction) Validate() error {
	if p.BridgeID <= 0 {
		return errors.New("bridge ID must be positive")
	}
	if p.Probability < 0.0 || p.Probability > 1.0 {
		return errors.New("probability must be between 0.0 and 1.0")
	}
	if p.Confidence < 0.0 || p.Confidence > 1.0 {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	if p.ExpectedDurationMinutes <= 0 {
		return errors.New("expected duration must be positive")
	}
	if p.Tier == "" {
		return errors.New("tier must not be empty")
	}
	if p.Reasoning == "" {
		return errors.New("reasoning must not be empty")
	}
	return nil
}
