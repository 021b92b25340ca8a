// Package prediction estimates, for one bridge at one moment, the probability of an
// opening within the hour, its expected duration, and how much to trust both.
//
// The engine searches a ladder of tiers from the most specific (same weekday and
// hour) to the broadest (the bridge's whole history), stopping at the first tier with
// enough samples. Only when the bridge has no usable history at all does it fall
// back to the system-wide rate for the same weekday and hour, with a low confidence
// ceiling.
//
// Counts are converted into an hourly rate by dividing by the number of matching
// hour-slots in the observed span, then shrunk toward the bridge's own all-time
// hourly rate:
//
//	rate = (n + BaselineWeight·baseline) / (slots + BaselineWeight)
//	p    = clamp((1 − e^(−rate)) · cascadeFactor, ProbabilityFloor, ProbabilityCeiling)
//
// The engine is a pure function of its inputs; it performs no I/O and never reads
// the wall clock.
package prediction

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/bridgecast/internal/analytics"
	"github.com/rewired-gh/bridgecast/internal/cascade"
	"github.com/rewired-gh/bridgecast/internal/models"
)

const hoursPerWeek = 7 * 24

// Inputs bundles what a prediction may draw on. Buckets and Relations are optional;
// when nil they are derived from Events on demand.
type Inputs struct {
	Events    []models.Event
	Buckets   []models.AnalyticsBucket
	Relations []models.CascadeRelation
}

// Engine computes predictions. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	aggregator *analytics.Aggregator
	detector   *cascade.Detector
}

// New creates an Engine. The cascade detector is used only when relations are not
// supplied by the caller.
func New(cfg Config, detector *cascade.Detector) *Engine {
	cfg = cfg.sanitize()
	if detector == nil {
		dc := cascade.DefaultConfig()
		dc.Window = cfg.CascadeWindow
		detector = cascade.New(dc)
	}
	return &Engine{
		cfg:        cfg,
		aggregator: analytics.New(analytics.Config{Location: cfg.Location}),
		detector:   detector,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Predict runs the default engine.
func Predict(bridgeID int, now time.Time, events []models.Event) (*models.Prediction, bool) {
	return New(DefaultConfig(), nil).Predict(bridgeID, now, events)
}

// Predict estimates the opening probability of bridgeID in the hour starting at now.
// It returns false only when no tier, including system-wide, has any data.
func (e *Engine) Predict(bridgeID int, now time.Time, events []models.Event) (*models.Prediction, bool) {
	return e.PredictWith(bridgeID, now, Inputs{Events: events})
}

// PredictWith is Predict with precomputed buckets and relations.
func (e *Engine) PredictWith(bridgeID int, now time.Time, in Inputs) (*models.Prediction, bool) {
	clean := models.Sanitize(in.Events)
	local := now.In(e.cfg.Location)
	q := query{weekday: local.Weekday(), hour: local.Hour()}

	var history []models.Event
	for i := range clean {
		if clean[i].BridgeID == bridgeID {
			history = append(history, clean[i])
		}
	}

	var est *estimate
	if len(history) > 0 {
		est = e.bridgeEstimate(history, q)
	} else {
		est = e.systemWideEstimate(clean, in.Buckets, q)
	}
	if est == nil {
		return nil, false
	}

	factor, trigger := e.cascadeFactor(bridgeID, now, clean, in.Relations)
	probability := clamp((1-math.Exp(-est.rate))*factor, e.cfg.ProbabilityFloor, e.cfg.ProbabilityCeiling)

	name := ""
	if len(history) > 0 {
		name = history[len(history)-1].BridgeName
	}

	p := &models.Prediction{
		BridgeID:                bridgeID,
		BridgeName:              name,
		At:                      now,
		Probability:             probability,
		ExpectedDurationMinutes: est.duration,
		Confidence:              est.confidence,
		Tier:                    est.tier,
		SampleCount:             est.samples,
		CascadeFactor:           factor,
	}
	p.Reasoning = reasoning(p, q, est, trigger)
	return p, true
}

type query struct {
	weekday time.Weekday
	hour    int
}

type estimate struct {
	tier       models.Tier
	samples    int
	rate       float64
	duration   float64
	confidence float64
	bridges    int
}

// bridgeEstimate walks the bridge-specific tiers narrowest first.
func (e *Engine) bridgeEstimate(history []models.Event, q query) *estimate {
	weeks := e.weeks(history)
	baseline := float64(len(history)) / (weeks * hoursPerWeek)

	tiers := []models.Tier{
		models.TierExact,
		models.TierHourPlus1,
		models.TierHourPlus2,
		models.TierDayType,
		models.TierAllTime,
	}
	for _, tier := range tiers {
		selected := e.selectTier(history, tier, q)
		if tier != models.TierAllTime && len(selected) < e.cfg.MinSamples {
			continue
		}
		if len(selected) == 0 {
			return nil
		}

		slots := weeks * slotsPerWeek(tier, q)
		n := float64(len(selected))
		w := e.cfg.BaselineWeight
		return &estimate{
			tier:       tier,
			samples:    len(selected),
			rate:       (n + w*baseline) / (slots + w),
			duration:   e.meanDuration(selected),
			confidence: e.confidence(tier, len(selected)),
			bridges:    1,
		}
	}
	return nil
}

// systemWideEstimate pools the same weekday and hour across every bridge, read
// from the aggregated buckets.
func (e *Engine) systemWideEstimate(clean []models.Event, buckets []models.AnalyticsBucket, q query) *estimate {
	if buckets == nil {
		buckets = e.aggregator.Aggregate(clean)
	}

	count := 0
	var minutes float64
	bridges := make(map[int]struct{})
	for _, b := range buckets {
		if b.OpeningCount <= 0 {
			continue
		}
		bridges[b.BridgeID] = struct{}{}
		if b.Weekday == q.weekday && b.Hour == q.hour {
			count += b.OpeningCount
			minutes += b.TotalMinutesOpen
		}
	}
	if count == 0 {
		return nil
	}

	duration := e.cfg.DefaultDurationMinutes
	if minutes > 0 {
		duration = minutes / float64(count)
	}
	slots := e.weeks(clean) * float64(len(bridges))
	ceiling := math.Min(e.cfg.TierConfidenceCap[models.TierSystemWide], e.cfg.SystemWideConfidenceCeiling)

	return &estimate{
		tier:       models.TierSystemWide,
		samples:    count,
		rate:       float64(count) / slots,
		duration:   duration,
		confidence: ceiling * saturation(count, e.cfg.ConfidenceSaturation),
		bridges:    len(bridges),
	}
}

func (e *Engine) selectTier(history []models.Event, tier models.Tier, q query) []models.Event {
	if tier == models.TierAllTime {
		return history
	}
	var out []models.Event
	for i := range history {
		t := history[i].OpenTime.In(e.cfg.Location)
		if matches(tier, q, t.Weekday(), t.Hour()) {
			out = append(out, history[i])
		}
	}
	return out
}

func matches(tier models.Tier, q query, wd time.Weekday, hour int) bool {
	switch tier {
	case models.TierExact:
		return wd == q.weekday && hour == q.hour
	case models.TierHourPlus1:
		return wd == q.weekday && absInt(hour-q.hour) <= 1
	case models.TierHourPlus2:
		return wd == q.weekday && absInt(hour-q.hour) <= 2
	case models.TierDayType:
		return isWeekend(wd) == isWeekend(q.weekday)
	default:
		return true
	}
}

// slotsPerWeek counts the hour-slots per week a tier covers. Hour ranges do not
// wrap across midnight.
func slotsPerWeek(tier models.Tier, q query) float64 {
	switch tier {
	case models.TierExact:
		return 1
	case models.TierHourPlus1:
		return float64(hoursInRange(q.hour, 1))
	case models.TierHourPlus2:
		return float64(hoursInRange(q.hour, 2))
	case models.TierDayType:
		if isWeekend(q.weekday) {
			return 2 * 24
		}
		return 5 * 24
	default:
		return hoursPerWeek
	}
}

func hoursInRange(hour, radius int) int {
	lo, hi := hour-radius, hour+radius
	if lo < 0 {
		lo = 0
	}
	if hi > 23 {
		hi = 23
	}
	return hi - lo + 1
}

// weeks is the observed span of events in weeks, never shorter than MinObservationSpan.
func (e *Engine) weeks(events []models.Event) float64 {
	span := e.cfg.MinObservationSpan
	if len(events) >= 2 {
		if s := events[len(events)-1].OpenTime.Sub(events[0].OpenTime); s > span {
			span = s
		}
	}
	return span.Hours() / hoursPerWeek
}

func (e *Engine) meanDuration(events []models.Event) float64 {
	known := make([]float64, 0, len(events))
	for i := range events {
		if d := events[i].EffectiveDuration(); d > 0 {
			known = append(known, d)
		}
	}
	if len(known) == 0 {
		return e.cfg.DefaultDurationMinutes
	}
	return stat.Mean(known, nil)
}

func (e *Engine) confidence(tier models.Tier, samples int) float64 {
	return clamp(e.cfg.TierConfidenceCap[tier]*saturation(samples, e.cfg.ConfidenceSaturation), 0, 1)
}

// saturation grows from 0 toward 1 as samples accumulate.
func saturation(samples int, scale float64) float64 {
	return 1 - math.Exp(-float64(samples)/scale)
}

// cascadeTrigger is the recent opening that raised the estimate.
type cascadeTrigger struct {
	event    models.Event
	strength float64
	elapsed  time.Duration
}

// cascadeFactor raises the estimate when a bridge with a cascade edge into bridgeID
// opened within CascadeWindow before now. Relations are only computed when such a
// recent opening exists.
func (e *Engine) cascadeFactor(bridgeID int, now time.Time, clean []models.Event, relations []models.CascadeRelation) (float64, *cascadeTrigger) {
	if e.cfg.CascadeBoost == 0 {
		return 1, nil
	}

	var recent []models.Event
	for i := range clean {
		elapsed := now.Sub(clean[i].OpenTime)
		if clean[i].BridgeID != bridgeID && elapsed > 0 && elapsed <= e.cfg.CascadeWindow {
			recent = append(recent, clean[i])
		}
	}
	if len(recent) == 0 {
		return 1, nil
	}

	if relations == nil {
		relations = e.detector.DetectCascades(clean)
	}
	into := cascade.EdgesInto(cascade.Edges(relations), bridgeID)

	var best *cascadeTrigger
	for _, r := range recent {
		edge, ok := into[r.BridgeID]
		if !ok || edge.MeanStrength <= 0 {
			continue
		}
		if best == nil || edge.MeanStrength > best.strength {
			best = &cascadeTrigger{event: r, strength: edge.MeanStrength, elapsed: now.Sub(r.OpenTime)}
		}
	}
	if best == nil {
		return 1, nil
	}

	susceptibility := cascade.NewRollup(relations).Susceptibility(bridgeID)
	factor := 1 + e.cfg.CascadeBoost*best.strength*susceptibility
	if factor <= 1 {
		return 1, nil
	}
	return factor, best
}

func isWeekend(wd time.Weekday) bool {
	return wd == time.Saturday || wd == time.Sunday
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
