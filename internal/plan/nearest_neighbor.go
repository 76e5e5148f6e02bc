package plan

import (
	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// NearestNeighborOrder orders candidates with a priority-weighted
// greedy walk. Effective distance to a candidate is
// plainKm * (2 - score/100), so a score-100 stop counts at half its
// real distance and a score-0 stop at double. Ties keep original list
// order, which makes the walk deterministic.
//
// The walk starts at the candidate closest (plain distance) to start,
// or at the first candidate when start is nil. Lists of two or fewer
// are returned unchanged.
func NearestNeighborOrder(candidates []model.ScoredCandidate, start *model.GeoPoint) []model.ScoredCandidate {
	if len(candidates) <= 2 {
		return candidates
	}

	remaining := make([]model.ScoredCandidate, len(candidates))
	copy(remaining, candidates)

	// Plain distance picks the start; exact ties go to the higher
	// priority, then original order.
	first := 0
	if start != nil {
		best := -1.0
		for i, c := range remaining {
			d := geo.DistanceKm(*start, *c.Prospect.Location)
			if best < 0 || d < best || (d == best && c.Score > remaining[first].Score) {
				best = d
				first = i
			}
		}
	}

	ordered := make([]model.ScoredCandidate, 0, len(remaining))
	ordered = append(ordered, remaining[first])
	remaining = append(remaining[:first], remaining[first+1:]...)

	current := ordered[0].Prospect.Location
	for len(remaining) > 0 {
		next := 0
		best := -1.0
		for i, c := range remaining {
			plain := geo.DistanceKm(*current, *c.Prospect.Location)
			weighted := plain * (2 - float64(c.Score)/100)
			if best < 0 || weighted < best {
				best = weighted
				next = i
			}
		}
		ordered = append(ordered, remaining[next])
		current = remaining[next].Prospect.Location
		remaining = append(remaining[:next], remaining[next+1:]...)
	}
	return ordered
}
