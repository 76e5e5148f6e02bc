package plan

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fieldroute/internal/cities"
	"fieldroute/internal/model"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func geocoded(lat, lng float64) *model.GeoPoint {
	return &model.GeoPoint{Lat: lat, Lng: lng}
}

func testProspects() []*model.Prospect {
	return []*model.Prospect{
		{ID: "new1", City: "Boston", Status: model.StatusNew, Location: geocoded(42.36, -71.05), CreatedAt: testNow},
		{ID: "hot1", City: "Cambridge", Status: model.StatusHot, Location: geocoded(42.37, -71.11), CreatedAt: testNow},
		{ID: "rej1", City: "Boston", Status: model.StatusRejected, Location: geocoded(42.35, -71.06), CreatedAt: testNow},
		{ID: "conv1", City: "Boston", Status: model.StatusConverted, Location: geocoded(42.34, -71.07), CreatedAt: testNow},
		{ID: "nogeo", City: "Boston", Status: model.StatusNew, CreatedAt: testNow},
		{ID: "vis1", City: "Somerville", Status: model.StatusVisited, Location: geocoded(42.39, -71.10), CreatedAt: testNow},
		{ID: "com1", City: "Boston", Status: model.StatusNotVisited, ProjectType: model.ProjectCommercial, Location: geocoded(42.33, -71.08), CreatedAt: testNow},
	}
}

func ids(cands []model.ScoredCandidate) map[string]bool {
	out := map[string]bool{}
	for _, c := range cands {
		out[c.Prospect.ID] = true
	}
	return out
}

func TestFilterAlwaysExcludesRejectedAndConverted(t *testing.T) {
	f := &Filter{Log: zerolog.Nop()}
	combos := []model.RouteInstructions{
		{},
		{NewConstruction: true},
		{FollowUp: true},
		{HotLeads: true},
		{Commercial: true},
		{Additions: true},
		{NewConstruction: true, FollowUp: true, HotLeads: true, Commercial: true, Additions: true},
		{Cities: []string{"Boston"}},
	}
	for i, instr := range combos {
		got := ids(f.Candidates(context.Background(), testProspects(), instr, testNow))
		if got["rej1"] || got["conv1"] {
			t.Errorf("combo %d: rejected/converted prospect passed the filter", i)
		}
	}
}

func TestFilterDropsUngeocoded(t *testing.T) {
	f := &Filter{Log: zerolog.Nop()}
	got := ids(f.Candidates(context.Background(), testProspects(), model.RouteInstructions{}, testNow))
	if got["nogeo"] {
		t.Fatal("prospect without coordinates passed the filter")
	}
}

func TestFilterNoTogglesIncludesAllNonExcluded(t *testing.T) {
	f := &Filter{Log: zerolog.Nop()}
	got := ids(f.Candidates(context.Background(), testProspects(), model.RouteInstructions{}, testNow))
	for _, want := range []string{"new1", "hot1", "vis1", "com1"} {
		if !got[want] {
			t.Errorf("expected %s with no toggles enabled", want)
		}
	}
}

func TestFilterToggleMapping(t *testing.T) {
	f := &Filter{Log: zerolog.Nop()}

	got := ids(f.Candidates(context.Background(), testProspects(), model.RouteInstructions{NewConstruction: true}, testNow))
	if !got["new1"] || !got["com1"] || got["hot1"] || got["vis1"] {
		t.Errorf("new-construction toggle: got %v", got)
	}

	got = ids(f.Candidates(context.Background(), testProspects(), model.RouteInstructions{FollowUp: true}, testNow))
	if !got["vis1"] || !got["hot1"] || got["new1"] {
		t.Errorf("follow-up toggle: got %v", got)
	}

	got = ids(f.Candidates(context.Background(), testProspects(), model.RouteInstructions{Commercial: true}, testNow))
	if !got["com1"] || got["new1"] {
		t.Errorf("commercial toggle: got %v", got)
	}
}

func TestFilterGeographyExpansion(t *testing.T) {
	lookup := cities.Static{"Boston": {"Cambridge", "Somerville"}}
	f := &Filter{Cities: lookup, Log: zerolog.Nop()}

	instr := model.RouteInstructions{Cities: []string{"Boston"}}
	got := ids(f.Candidates(context.Background(), testProspects(), instr, testNow))
	if !got["new1"] || !got["hot1"] || !got["vis1"] {
		t.Errorf("neighbor expansion missing prospects: got %v", got)
	}

	// Without a lookup the original set still applies.
	f = &Filter{Log: zerolog.Nop()}
	got = ids(f.Candidates(context.Background(), testProspects(), instr, testNow))
	if !got["new1"] || got["hot1"] {
		t.Errorf("bare geography filter: got %v", got)
	}
}

func TestFilterSortsByScoreAndTruncates(t *testing.T) {
	f := &Filter{Log: zerolog.Nop()}
	instr := model.RouteInstructions{MaxStops: 2}
	cands := f.Candidates(context.Background(), testProspects(), instr, testNow)
	if len(cands) != 2 {
		t.Fatalf("truncation: got %d candidates, want 2", len(cands))
	}
	if cands[0].Score < cands[1].Score {
		t.Fatalf("not sorted by descending score: %d then %d", cands[0].Score, cands[1].Score)
	}
	// hot (+25) outranks new (+20).
	if cands[0].Prospect.ID != "hot1" {
		t.Fatalf("top candidate = %s, want hot1", cands[0].Prospect.ID)
	}
}
