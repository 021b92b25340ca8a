package models

import (
	"errors"
	"math"
	"time"
)

// AnalyticsBucket summarizes all openings of one bridge that started in the same
// (year, month, weekday, hour) cell.
type AnalyticsBucket struct {
	BridgeID                 int          `json:"bridge_id"`
	BridgeName               string       `json:"bridge_name"`
	Year                     int          `json:"year"`
	Month                    time.Month   `json:"month"`
	Weekday                  time.Weekday `json:"weekday"`
	Hour                     int          `json:"hour"`
	OpeningCount             int          `json:"opening_count"`
	TotalMinutesOpen         float64      `json:"total_minutes_open"`
	AverageMinutesPerOpening float64      `json:"average_minutes_per_opening"`
	LongestOpeningMinutes    float64      `json:"longest_opening_minutes"`
	ShortestOpeningMinutes   float64      `json:"shortest_opening_minutes"`
	StdDevMinutes            float64      `json:"std_dev_minutes"`
}

// Validate checks the bucket's internal invariants.
func (b *AnalyticsBucket) Validate() error {
	if b.BridgeID <= 0 {
		return errors.New("bridge ID must be positive")
	}
	if b.OpeningCount <= 0 {
		return errors.New("opening count must be positive")
	}
	if b.Hour < 0 || b.Hour > 23 {
		return errors.New("hour must be between 0 and 23")
	}
	if b.Month < time.January || b.Month > time.December {
		return errors.New("month must be between 1 and 12")
	}
	if b.TotalMinutesOpen < 0 {
		return errors.New("total minutes must not be negative")
	}
	expected := b.TotalMinutesOpen / float64(b.OpeningCount)
	if math.Abs(b.AverageMinutesPerOpening-expected) > 1e-9 {
		return errors.New("average must equal total_minutes_open / opening_count")
	}
	if b.ShortestOpeningMinutes > b.LongestOpeningMinutes {
		return errors.New("shortest opening must be <= longest opening")
	}
	return nil
}
