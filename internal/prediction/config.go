package prediction

import (
	"math"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// Config holds every tunable constant of the engine. The defaults are hand-tuned
// and have no documented derivation; treat them as starting points for
// recalibration against observed openings.
type Config struct {
	// Location is the time zone used for weekday and hour matching.
	Location *time.Location

	// MinSamples is the sample count a narrow tier needs before it is used.
	MinSamples int

	// ProbabilityFloor and ProbabilityCeiling bound the reported probability so
	// sparse data never yields 0% or near-certain estimates.
	ProbabilityFloor   float64
	ProbabilityCeiling float64

	// DefaultDurationMinutes is reported when the selected tier has no known durations.
	DefaultDurationMinutes float64

	// TierConfidenceCap is the best confidence each tier can reach.
	TierConfidenceCap map[models.Tier]float64
	// SystemWideConfidenceCeiling additionally caps the system-wide tier.
	SystemWideConfidenceCeiling float64
	// ConfidenceSaturation is the sample count at which a tier reaches ~63% of its cap.
	ConfidenceSaturation float64

	// BaselineWeight is the number of pseudo hour-slots at the bridge's own
	// all-time rate blended into narrow-tier rates.
	BaselineWeight float64

	// CascadeWindow is how far back a trigger opening may be to raise the estimate,
	// and CascadeBoost scales that raise.
	CascadeWindow time.Duration
	CascadeBoost  float64

	// MinObservationSpan is the shortest history span used when converting counts
	// into hourly rates.
	MinObservationSpan time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Location:               time.UTC,
		MinSamples:             3,
		ProbabilityFloor:       0.01,
		ProbabilityCeiling:     0.75,
		DefaultDurationMinutes: 15,
		TierConfidenceCap: map[models.Tier]float64{
			models.TierExact:      0.95,
			models.TierHourPlus1:  0.85,
			models.TierHourPlus2:  0.75,
			models.TierDayType:    0.60,
			models.TierAllTime:    0.45,
			models.TierSystemWide: 0.25,
		},
		SystemWideConfidenceCeiling: 0.2,
		ConfidenceSaturation:        10,
		BaselineWeight:              2,
		CascadeWindow:               30 * time.Minute,
		CascadeBoost:                0.5,
		MinObservationSpan:          7 * 24 * time.Hour,
	}
}

// sanitize fills gaps with defaults and clamps values into their domains.
func (c Config) sanitize() Config {
	def := DefaultConfig()
	if c.Location == nil {
		c.Location = def.Location
	}
	if c.MinSamples < 1 {
		c.MinSamples = def.MinSamples
	}
	c.ProbabilityFloor = clamp(c.ProbabilityFloor, 0, 1)
	c.ProbabilityCeiling = clamp(c.ProbabilityCeiling, 0, 1)
	if c.ProbabilityCeiling == 0 || c.ProbabilityCeiling < c.ProbabilityFloor {
		c.ProbabilityFloor, c.ProbabilityCeiling = def.ProbabilityFloor, def.ProbabilityCeiling
	}
	if !(c.DefaultDurationMinutes > 0) {
		c.DefaultDurationMinutes = def.DefaultDurationMinutes
	}

	caps := make(map[models.Tier]float64, len(models.Tiers))
	for _, tier := range models.Tiers {
		v, ok := c.TierConfidenceCap[tier]
		if !ok {
			v = def.TierConfidenceCap[tier]
		}
		caps[tier] = clamp(v, 0, 1)
	}
	c.TierConfidenceCap = caps

	if c.SystemWideConfidenceCeiling <= 0 {
		c.SystemWideConfidenceCeiling = def.SystemWideConfidenceCeiling
	}
	c.SystemWideConfidenceCeiling = clamp(c.SystemWideConfidenceCeiling, 0, 1)
	if !(c.ConfidenceSaturation > 0) {
		c.ConfidenceSaturation = def.ConfidenceSaturation
	}
	if !(c.BaselineWeight >= 0) {
		c.BaselineWeight = 0
	}
	if c.CascadeWindow <= 0 {
		c.CascadeWindow = def.CascadeWindow
	}
	if !(c.CascadeBoost >= 0) {
		c.CascadeBoost = 0
	}
	if c.MinObservationSpan <= 0 {
		c.MinObservationSpan = def.MinObservationSpan
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
