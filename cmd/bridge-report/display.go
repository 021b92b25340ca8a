package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/bridgecast/internal/analytics"
	"github.com/rewired-gh/bridgecast/internal/models"
	"github.com/rewired-gh/bridgecast/internal/monitor"
)

// printHeader displays what the report covers
func printHeader(res *monitor.Result, loc *time.Location) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("BRIDGE OPENING REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Hour starting:   %s\n", res.At.In(loc).Format("Mon 2006-01-02 15:04 MST"))
	fmt.Printf("Events used:     %d (invalid %d, duplicates %d)\n", res.EventCount, res.Report.Invalid, res.Report.Duplicates)
	fmt.Printf("Buckets:         %d\n", len(res.Buckets))
	fmt.Printf("Cascade links:   %d relations over %d bridge pairs\n", len(res.Relations), len(res.Edges))
}

// printSummaries displays per-bridge headline statistics
func printSummaries(summaries []analytics.BridgeSummary) {
	fmt.Println("\nBRIDGES:")
	fmt.Println(strings.Repeat("-", 80))
	if len(summaries) == 0 {
		fmt.Println("  No openings recorded")
		return
	}

	for _, s := range summaries {
		fmt.Printf("\n  %s (#%d)\n", s.BridgeName, s.BridgeID)
		fmt.Printf("    Openings: %d\n", s.Openings)
		fmt.Printf("    Avg minutes open: %.1f\n", s.AverageMinutes)
		fmt.Printf("    Busiest slot: %ss at %02d:00 (%d openings)\n", s.BusiestWeekday, s.BusiestHour, s.BusiestCount)
		if s.Months >= 2 {
			fmt.Printf("    Monthly trend: %+.2f openings/month over %d months\n", s.MonthlyTrend, s.Months)
		}
	}
}

// printEdges displays the strongest trigger → target links
func printEdges(edges []models.CascadeEdge, summaries []analytics.BridgeSummary, n int) {
	fmt.Println("\nSTRONGEST CASCADES:")
	fmt.Println(strings.Repeat("-", 80))
	if len(edges) == 0 || n <= 0 {
		fmt.Println("  None detected")
		return
	}

	names := make(map[int]string, len(summaries))
	for _, s := range summaries {
		names[s.BridgeID] = s.BridgeName
	}
	label := func(id int) string {
		if name := names[id]; name != "" {
			return name
		}
		return fmt.Sprintf("#%d", id)
	}

	for i, e := range edges {
		if i >= n {
			break
		}
		fmt.Printf("  %2d. %s -> %s: %d times, mean strength %.2f, mean delay %.1f min\n",
			i+1, label(e.TriggerBridgeID), label(e.TargetBridgeID), e.Occurrences, e.MeanStrength, e.MeanDelayMinutes)
	}
}

// printPredictions displays one line of numbers plus the reasoning per bridge
func printPredictions(predictions []models.Prediction) {
	fmt.Println("\nPREDICTIONS:")
	fmt.Println(strings.Repeat("-", 80))
	if len(predictions) == 0 {
		fmt.Println("  No data to predict from")
		return
	}

	for _, p := range predictions {
		name := p.BridgeName
		if name == "" {
			name = fmt.Sprintf("#%d", p.BridgeID)
		}
		fmt.Printf("\n  %s: %.0f%% chance, ~%.0f min, confidence %.0f%% [%s, n=%d]\n",
			name, p.Probability*100, p.ExpectedDurationMinutes, p.Confidence*100, p.Tier, p.SampleCount)
		fmt.Printf("    %s\n", p.Reasoning)
	}
}
