package prediction

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// reasoning renders a one-paragraph explanation citing tier, sample count and the
// day/hour context.
func reasoning(p *models.Prediction, q query, est *estimate, trigger *cascadeTrigger) string {
	var b strings.Builder

	subject := p.BridgeName
	if subject == "" {
		subject = fmt.Sprintf("bridge %d", p.BridgeID)
	}

	if est.tier == models.TierSystemWide {
		fmt.Fprintf(&b, "No usable history for %s; based on %s across all %d bridges %s (%s tier)",
			subject, pluralOpenings(est.samples), est.bridges, dayHourPhrase(est.tier, q), est.tier)
	} else {
		fmt.Fprintf(&b, "Based on %s %s (%s tier) for %s",
			pluralOpenings(est.samples), dayHourPhrase(est.tier, q), est.tier, subject)
	}

	fmt.Fprintf(&b, ": %d%% chance of an opening in the hour, about %.0f minutes each.",
		percent(p.Probability), est.duration)

	if trigger != nil {
		name := trigger.event.BridgeName
		fmt.Fprintf(&b, " Raised x%.2f because %s opened %d minutes ago.",
			p.CascadeFactor, name, int(math.Round(trigger.elapsed.Minutes())))
	}

	fmt.Fprintf(&b, " Confidence %d%%.", percent(p.Confidence))
	return b.String()
}

func dayHourPhrase(tier models.Tier, q query) string {
	day := q.weekday.String() + "s"
	switch tier {
	case models.TierExact, models.TierSystemWide:
		return fmt.Sprintf("on %s at %s", day, formatHour(q.hour))
	case models.TierHourPlus1:
		return fmt.Sprintf("on %s between %s and %s", day, formatHour(max(q.hour-1, 0)), formatHour(min(q.hour+1, 23)))
	case models.TierHourPlus2:
		return fmt.Sprintf("on %s between %s and %s", day, formatHour(max(q.hour-2, 0)), formatHour(min(q.hour+2, 23)))
	case models.TierDayType:
		if isWeekend(q.weekday) {
			return "on weekends at any hour"
		}
		return "on weekdays at any hour"
	default:
		return "across all recorded days and hours"
	}
}

func formatHour(hour int) string {
	return time.Date(2000, 1, 1, hour, 0, 0, 0, time.UTC).Format("3 PM")
}

func pluralOpenings(n int) string {
	if n == 1 {
		return "1 opening"
	}
	return fmt.Sprintf("%d openings", n)
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}
