package cascade

import (
	"sort"

	"github.com/rewired-gh/bridgecast/internal/models"
)

// Rollup holds per-bridge cascade propensities derived from a relation set.
// Both scores are normalized against the most active bridge in their role, so the
// busiest trigger has Influence 1.0 and the busiest target has Susceptibility 1.0.
type Rollup struct {
	influence      map[int]float64
	susceptibility map[int]float64
}

// NewRollup sums relation strengths per trigger and per target bridge.
func NewRollup(relations []models.CascadeRelation) *Rollup {
	triggers := make(map[int]float64)
	targets := make(map[int]float64)
	for _, r := range relations {
		triggers[r.TriggerBridgeID] += r.Strength
		targets[r.TargetBridgeID] += r.Strength
	}
	return &Rollup{
		influence:      normalize(triggers),
		susceptibility: normalize(targets),
	}
}

// Influence is the bridge's propensity to trigger cascades, in [0, 1].
func (r *Rollup) Influence(bridgeID int) float64 {
	if r == nil {
		return 0
	}
	return r.influence[bridgeID]
}

// Susceptibility is the bridge's propensity to be a cascade target, in [0, 1].
func (r *Rollup) Susceptibility(bridgeID int) float64 {
	if r == nil {
		return 0
	}
	return r.susceptibility[bridgeID]
}

func normalize(sums map[int]float64) map[int]float64 {
	var max float64
	for _, v := range sums {
		if v > max {
			max = v
		}
	}
	out := make(map[int]float64, len(sums))
	if max <= 0 {
		return out
	}
	for id, v := range sums {
		out[id] = v / max
	}
	return out
}

type pair struct {
	trigger int
	target  int
}

// Edges collapses relations sharing a (trigger, target) pair into one edge whose
// weight is the mean relation strength. Edges are ordered by mean strength
// descending, then by occurrences, then by bridge IDs.
func Edges(relations []models.CascadeRelation) []models.CascadeEdge {
	type acc struct {
		n        int
		strength float64
		delay    float64
	}

	sums := make(map[pair]*acc)
	for _, r := range relations {
		k := pair{r.TriggerBridgeID, r.TargetBridgeID}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		a.n++
		a.strength += r.Strength
		a.delay += r.DelayMinutes
	}

	edges := make([]models.CascadeEdge, 0, len(sums))
	for k, a := range sums {
		edges = append(edges, models.CascadeEdge{
			TriggerBridgeID:  k.trigger,
			TargetBridgeID:   k.target,
			Occurrences:      a.n,
			MeanStrength:     a.strength / float64(a.n),
			MeanDelayMinutes: a.delay / float64(a.n),
		})
	}

	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.MeanStrength != b.MeanStrength {
			return a.MeanStrength > b.MeanStrength
		}
		if a.Occurrences != b.Occurrences {
			return a.Occurrences > b.Occurrences
		}
		if a.TriggerBridgeID != b.TriggerBridgeID {
			return a.TriggerBridgeID < b.TriggerBridgeID
		}
		return a.TargetBridgeID < b.TargetBridgeID
	})
	return edges
}

// EdgesInto returns the edges whose target is bridgeID, keyed by trigger bridge.
func EdgesInto(edges []models.CascadeEdge, bridgeID int) map[int]models.CascadeEdge {
	into := make(map[int]models.CascadeEdge)
	for _, e := range edges {
		if e.TargetBridgeID == bridgeID {
			into[e.TriggerBridgeID] = e
		}
	}
	return into
}
