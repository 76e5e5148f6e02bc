// Package plan turns a prospect set and route instructions into an
// ordered route: filter, score, then optimize.
package plan

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fieldroute/internal/cities"
	"fieldroute/internal/model"
	"fieldroute/internal/scoring"
)

// Statuses that are never routable regardless of instructions.
var alwaysExcluded = map[model.ProspectStatus]bool{
	model.StatusRejected:  true,
	model.StatusConverted: true,
}

// toggleStatuses maps each project-type toggle to the statuses it admits.
var (
	newConstructionStatuses = map[model.ProspectStatus]bool{
		model.StatusNew: true, model.StatusNotVisited: true,
	}
	followUpStatuses = map[model.ProspectStatus]bool{
		model.StatusVisited: true, model.StatusContacted: true,
		model.StatusHot: true, model.StatusCold: true,
	}
	hotLeadStatuses = map[model.ProspectStatus]bool{
		model.StatusHot: true, model.StatusContacted: true,
	}
)

// Filter selects and scores route candidates from the full prospect set.
type Filter struct {
	Cities cities.Lookup
	Log    zerolog.Logger
}

// Candidates applies the instruction filters in order, scores the
// survivors, and returns them sorted by descending score, truncated to
// the stop cap. Prospects without resolved coordinates are dropped.
func (f *Filter) Candidates(ctx context.Context, prospects []*model.Prospect, instr model.RouteInstructions, now time.Time) []model.ScoredCandidate {
	geography := f.expandGeography(ctx, instr.Cities)

	var out []model.ScoredCandidate
	for _, p := range prospects {
		if alwaysExcluded[p.Status] {
			continue
		}
		if geography != nil && !geography[normalizeCity(p.City)] {
			continue
		}
		if !matchesToggles(p, instr) {
			continue
		}
		if !p.Geocoded() {
			continue
		}
		out = append(out, model.ScoredCandidate{
			Prospect: p,
			Score:    scoring.Score(p, instr.Factors, now),
		})
	}

	// Stable keeps insertion order for equal scores, which downstream
	// tie-breaking depends on.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if instr.MaxStops > 0 && len(out) > instr.MaxStops {
		out = out[:instr.MaxStops]
	}
	return out
}

// expandGeography broadens the requested city set with neighboring
// cities. Returns nil when no geography filter was requested. Lookup
// failures are non-fatal: the original set still applies.
func (f *Filter) expandGeography(ctx context.Context, requested []string) map[string]bool {
	if len(requested) == 0 {
		return nil
	}
	set := map[string]bool{}
	for _, city := range requested {
		set[normalizeCity(city)] = true
		if f.Cities == nil {
			continue
		}
		neighbors, err := f.Cities.Neighbors(ctx, city)
		if err != nil {
			f.Log.Warn().Err(err).Str("city", city).Msg("nearby-cities lookup failed, using original set")
			continue
		}
		for _, n := range neighbors {
			set[normalizeCity(n)] = true
		}
	}
	return set
}

// matchesToggles reports whether any enabled project-type toggle admits
// the prospect. With no toggles enabled, everything passes.
func matchesToggles(p *model.Prospect, instr model.RouteInstructions) bool {
	if !instr.NewConstruction && !instr.FollowUp && !instr.HotLeads &&
		!instr.Commercial && !instr.Additions {
		return true
	}
	if instr.NewConstruction && newConstructionStatuses[p.Status] {
		return true
	}
	if instr.FollowUp && followUpStatuses[p.Status] {
		return true
	}
	if instr.HotLeads && hotLeadStatuses[p.Status] {
		return true
	}
	if instr.Commercial && p.ProjectType == model.ProjectCommercial {
		return true
	}
	if instr.Additions && p.ProjectType == model.ProjectResidential {
		return true
	}
	return false
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
