package analytics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// BridgeSummary rolls all buckets of one bridge into headline numbers.
type BridgeSummary struct {
	BridgeID       int          `json:"bridge_id"`
	BridgeName     string       `json:"bridge_name"`
	Openings       int          `json:"openings"`
	TotalMinutes   float64      `json:"total_minutes"`
	AverageMinutes float64      `json:"average_minutes"`
	BusiestWeekday time.Weekday `json:"busiest_weekday"`
	BusiestHour    int          `json:"busiest_hour"`
	BusiestCount   int          `json:"busiest_count"`
	// MonthlyTrend is the least-squares slope of openings per calendar month,
	// in openings/month. Months without openings between the first and last
	// observed month count as zero.
	MonthlyTrend float64 `json:"monthly_trend"`
	Months       int     `json:"months"`
}

type slot struct {
	weekday time.Weekday
	hour    int
}

// Summarize produces one summary per bridge, ordered by bridge ID.
func Summarize(buckets []models.AnalyticsBucket) []BridgeSummary {
	type acc struct {
		summary BridgeSummary
		slots   map[slot]int
		months  map[int]int // year*12 + month-1
	}

	byBridge := make(map[int]*acc)
	for _, b := range buckets {
		if b.OpeningCount <= 0 {
			continue
		}
		a, ok := byBridge[b.BridgeID]
		if !ok {
			a = &acc{
				summary: BridgeSummary{BridgeID: b.BridgeID, BridgeName: b.BridgeName},
				slots:   make(map[slot]int),
				months:  make(map[int]int),
			}
			byBridge[b.BridgeID] = a
		}
		a.summary.Openings += b.OpeningCount
		a.summary.TotalMinutes += b.TotalMinutesOpen
		a.slots[slot{b.Weekday, b.Hour}] += b.OpeningCount
		a.months[b.Year*12+int(b.Month)-1] += b.OpeningCount
	}

	result := make([]BridgeSummary, 0, len(byBridge))
	for _, a := range byBridge {
		s := a.summary
		if s.Openings > 0 {
			s.AverageMinutes = s.TotalMinutes / float64(s.Openings)
		}
		s.BusiestWeekday, s.BusiestHour, s.BusiestCount = busiest(a.slots)
		s.MonthlyTrend, s.Months = monthlyTrend(a.months)
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BridgeID < result[j].BridgeID
	})
	return result
}

// busiest returns the weekday/hour slot with the most openings, earliest slot on ties.
func busiest(slots map[slot]int) (time.Weekday, int, int) {
	var best slot
	bestCount := -1
	for s, n := range slots {
		if n > bestCount ||
			(n == bestCount && (s.weekday < best.weekday || (s.weekday == best.weekday && s.hour < best.hour))) {
			best, bestCount = s, n
		}
	}
	if bestCount < 0 {
		return time.Sunday, 0, 0
	}
	return best.weekday, best.hour, bestCount
}

func monthlyTrend(months map[int]int) (float64, int) {
	if len(months) == 0 {
		return 0, 0
	}
	first, last := 0, 0
	started := false
	for m := range months {
		if !started || m < first {
			first = m
		}
		if !started || m > last {
			last = m
		}
		started = true
	}

	span := last - first + 1
	if span < 2 {
		return 0, span
	}
	xs := make([]float64, span)
	ys := make([]float64, span)
	for i := 0; i < span; i++ {
		xs[i] = float64(i)
		ys[i] = float64(months[first+i])
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta, span
}
