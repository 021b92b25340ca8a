package models

import (
	"errors"
	"time"
)

// Classification buckets a cascade by how quickly the target followed the trigger
type Classification string

const (
	ClassImmediate  Classification = "immediate"
	ClassShortTerm  Classification = "short-term"
	ClassMediumTerm Classification = "medium-term"
)

// CascadeRelation records one occurrence of a target bridge opening shortly after
// a trigger bridge opened. Relations are not deduplicated per bridge pair; use
// CascadeEdge for the aggregated view.
type CascadeRelation struct {
	TriggerBridgeID int            `json:"trigger_bridge_id"`
	TargetBridgeID  int            `json:"target_bridge_id"`
	TriggerTime     time.Time      `json:"trigger_time"`
	TargetTime      time.Time      `json:"target_time"`
	DelayMinutes    float64        `json:"delay_minutes"`
	Strength        float64        `json:"strength"`
	Classification  Classification `json:"classification"`
}

// Validate checks the relation against the detection window it was produced with.
func (r *CascadeRelation) Validate(window time.Duration) error {
	if r.TriggerBridgeID == r.TargetBridgeID {
		return errors.New("trigger and target bridge must differ")
	}
	if r.DelayMinutes <= 0 {
		return errors.New("delay must be positive")
	}
	if r.DelayMinutes > window.Minutes() {
		return errors.New("delay must not exceed the cascade window")
	}
	if r.Strength < 0.0 || r.Strength > 1.0 {
		return errors.New("strength must be between 0.0 and 1.0")
	}
	switch r.Classification {
	case ClassImmediate, ClassShortTerm, ClassMediumTerm:
	default:
		return errors.New("classification must be immediate, short-term or medium-term")
	}
	return nil
}

// CascadeEdge aggregates every relation sharing the same (trigger, target) pair
// into a single weighted graph edge.
type CascadeEdge struct {
	TriggerBridgeID  int     `json:"trigger_bridge_id"`
	TargetBridgeID   int     `json:"target_bridge_id"`
	Occurrences      int     `json:"occurrences"`
	MeanStrength     float64 `json:"mean_strength"`
	MeanDelayMinutes float64 `json:"mean_delay_minutes"`
}
