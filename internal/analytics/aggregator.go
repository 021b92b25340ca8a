// Package analytics groups bridge opening events into per-bridge time cells and
// derives descriptive statistics for each cell.
//
// Buckets are recomputed wholesale from the full event set on every call; nothing is
// maintained incrementally. The aggregator is total over arbitrary input: invalid
// events are skipped, duplicates are counted once, and empty input yields an empty
// (non-nil) slice.
package analytics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// Config controls how opening times are mapped onto cells.
type Config struct {
	// Location is the time zone used to derive year, month, weekday and hour.
	Location *time.Location
}

// DefaultConfig buckets in UTC.
func DefaultConfig() Config {
	return Config{Location: time.UTC}
}

// Aggregator builds AnalyticsBuckets. It holds no mutable state and is safe for
// concurrent use.
type Aggregator struct {
	loc *time.Location
}

// New creates an Aggregator. A nil location falls back to UTC.
func New(cfg Config) *Aggregator {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc}
}

// Report counts the events the aggregator did not use.
type Report struct {
	Used       int
	Invalid    int
	Duplicates int
}

type cellKey struct {
	bridgeID int
	year     int
	month    time.Month
	weekday  time.Weekday
	hour     int
}

type cell struct {
	name     string
	count    int
	total    float64
	longest  float64
	shortest float64
	known    []float64
}

// Aggregate groups events using the default configuration.
func Aggregate(events []models.Event) []models.AnalyticsBucket {
	return New(DefaultConfig()).Aggregate(events)
}

// Aggregate groups events into buckets keyed by (bridge, year, month, weekday, hour).
func (a *Aggregator) Aggregate(events []models.Event) []models.AnalyticsBucket {
	buckets, _ := a.AggregateWithReport(events)
	return buckets
}

// AggregateWithReport is Aggregate plus a count of skipped input.
func (a *Aggregator) AggregateWithReport(events []models.Event) ([]models.AnalyticsBucket, Report) {
	var report Report
	if len(events) == 0 {
		return []models.AnalyticsBucket{}, report
	}

	seen := make(map[models.EventKey]struct{}, len(events))
	cells := make(map[cellKey]*cell)

	// First pass: accumulate count, total and extremes per cell.
	for i := range events {
		e := &events[i]
		if err := e.Validate(); err != nil {
			report.Invalid++
			continue
		}
		if _, dup := seen[e.Key()]; dup {
			report.Duplicates++
			continue
		}
		seen[e.Key()] = struct{}{}
		report.Used++

		t := e.OpenTime.In(a.loc)
		key := cellKey{
			bridgeID: e.BridgeID,
			year:     t.Year(),
			month:    t.Month(),
			weekday:  t.Weekday(),
			hour:     t.Hour(),
		}
		c, ok := cells[key]
		if !ok {
			c = &cell{name: e.BridgeName}
			cells[key] = c
		}

		c.count++
		d := e.EffectiveDuration()
		c.total += d
		if d <= 0 {
			// still open or unreported: counts as an opening, not as an extreme
			continue
		}
		if len(c.known) == 0 || d > c.longest {
			c.longest = d
		}
		if len(c.known) == 0 || d < c.shortest {
			c.shortest = d
		}
		c.known = append(c.known, d)
	}

	// Second pass: derive averages and spread.
	buckets := make([]models.AnalyticsBucket, 0, len(cells))
	for key, c := range cells {
		if c.count == 0 {
			continue
		}
		var stdDev float64
		if len(c.known) >= 2 {
			stdDev = stat.StdDev(c.known, nil)
		}
		buckets = append(buckets, models.AnalyticsBucket{
			BridgeID:                 key.bridgeID,
			BridgeName:               c.name,
			Year:                     key.year,
			Month:                    key.month,
			Weekday:                  key.weekday,
			Hour:                     key.hour,
			OpeningCount:             c.count,
			TotalMinutesOpen:         c.total,
			AverageMinutesPerOpening: c.total / float64(c.count),
			LongestOpeningMinutes:    c.longest,
			ShortestOpeningMinutes:   c.shortest,
			StdDevMinutes:            stdDev,
		})
	}

	SortBuckets(buckets)
	return buckets, report
}

// SortBuckets orders buckets by bridge, then chronologically by cell.
func SortBuckets(buckets []models.AnalyticsBucket) {
	sort.Slice(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if a.BridgeID != b.BridgeID {
			return a.BridgeID < b.BridgeID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.Hour < b.Hour
	})
}
