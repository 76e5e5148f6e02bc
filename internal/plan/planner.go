package plan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldroute/internal/directions"
	"fieldroute/internal/geo"
	"fieldroute/internal/metrics"
	"fieldroute/internal/model"
)

// Travel time assigned per stop when the remote service supplies no
// per-leg durations.
const fallbackStopMinutes = 20

// ErrPlanInFlight is returned when a second optimization is requested
// while one is still outstanding.
var ErrPlanInFlight = errors.New("plan: optimization already in flight")

// Optimizer calls the remote waypoint service to optimize a request.
type Optimizer interface {
	Optimize(ctx context.Context, req directions.Request) (*directions.Response, error)
}

// Result is an ordered route ready to become a session.
type Result struct {
	Stops            []model.RouteStop
	TotalDistanceM   int
	TotalDurationSec int
	Optimized        bool
}

// Planner orders scored candidates into a route. It prefers the remote
// optimizer and degrades to the weighted nearest-neighbor heuristic on
// any remote failure. Only one optimization may be in flight at a time,
// and a response that arrives after its request was abandoned is
// discarded (each attempt carries its own tag).
type Planner struct {
	Remote Optimizer
	Log    zerolog.Logger

	mu         sync.Mutex
	inFlight   bool
	currentTag string
}

// Plan orders candidates. Remote failure is recovered locally and
// reported through Result.Optimized, never as an error; the only error
// conditions are an empty candidate list handled by the caller and a
// plan already in flight.
func (pl *Planner) Plan(ctx context.Context, candidates []model.ScoredCandidate, instr model.RouteInstructions) (*Result, error) {
	tag := uuid.New().String()

	pl.mu.Lock()
	if pl.inFlight {
		pl.mu.Unlock()
		return nil, ErrPlanInFlight
	}
	pl.inFlight = true
	pl.currentTag = tag
	pl.mu.Unlock()

	defer func() {
		pl.mu.Lock()
		if pl.currentTag == tag {
			pl.inFlight = false
			pl.currentTag = ""
		}
		pl.mu.Unlock()
	}()

	ordered, resp := pl.remoteOrder(ctx, tag, candidates, instr)
	if resp != nil {
		return buildResult(ordered, resp, instr.StartLocation), nil
	}

	metrics.OptimizerFallbacks.Inc()
	ordered = NearestNeighborOrder(candidates, instr.StartLocation)
	return buildResult(ordered, nil, instr.StartLocation), nil
}

// Abandon invalidates any in-flight optimization so its late response
// cannot be applied.
func (pl *Planner) Abandon() {
	pl.mu.Lock()
	pl.inFlight = false
	pl.currentTag = ""
	pl.mu.Unlock()
}

// remoteOrder attempts the remote optimization. It returns the original
// candidates and a nil response on any failure, timeout, malformed
// order, or stale tag.
func (pl *Planner) remoteOrder(ctx context.Context, tag string, candidates []model.ScoredCandidate, instr model.RouteInstructions) ([]model.ScoredCandidate, *directions.Response) {
	if pl.Remote == nil || len(candidates) == 0 {
		return candidates, nil
	}

	waypoints := make([]string, len(candidates))
	for i, c := range candidates {
		waypoints[i] = c.Prospect.Address
	}

	req := directions.Request{
		Origin:            instr.StartAddress,
		Destination:       routeDestination(instr, candidates),
		Waypoints:         waypoints,
		OptimizeWaypoints: true,
	}

	started := time.Now()
	resp, err := pl.Remote.Optimize(ctx, req)
	metrics.RemoteOptimizeDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		pl.Log.Warn().Err(err).Int("waypoints", len(waypoints)).Msg("remote optimization failed, using local heuristic")
		return candidates, nil
	}
	if len(resp.WaypointOrder) != len(candidates) {
		pl.Log.Warn().Int("got", len(resp.WaypointOrder)).Int("want", len(candidates)).Msg("unusable waypoint order, using local heuristic")
		return candidates, nil
	}

	pl.mu.Lock()
	stale := pl.currentTag != tag
	pl.mu.Unlock()
	if stale {
		pl.Log.Info().Str("tag", tag).Msg("discarding stale optimization response")
		return candidates, nil
	}

	ordered := make([]model.ScoredCandidate, 0, len(candidates))
	for _, idx := range resp.WaypointOrder {
		ordered = append(ordered, candidates[idx])
	}
	return ordered, resp
}

func routeDestination(instr model.RouteInstructions, candidates []model.ScoredCandidate) string {
	switch {
	case instr.RoundTrip || instr.EndPolicy == model.EndReturnToStart:
		return instr.StartAddress
	case instr.EndPolicy == model.EndExplicit && instr.EndAddress != "":
		return instr.EndAddress
	default:
		return candidates[len(candidates)-1].Prospect.Address
	}
}

// buildResult numbers the ordered candidates 1..N and attaches per-leg
// costs from the remote response when present, or the uniform local
// estimate otherwise.
func buildResult(ordered []model.ScoredCandidate, resp *directions.Response, start *model.GeoPoint) *Result {
	res := &Result{
		Stops:     make([]model.RouteStop, 0, len(ordered)),
		Optimized: resp != nil,
	}

	prev := start
	for i, c := range ordered {
		stop := model.RouteStop{
			Seq:        i + 1,
			ProspectID: c.Prospect.ID,
			Address:    c.Prospect.Address,
			Location:   c.Prospect.Location,
			Score:      c.Score,
			State:      model.StopPending,
		}
		if resp != nil && i < len(resp.Legs) {
			stop.LegDistanceM = resp.Legs[i].DistanceM
			stop.LegDurationSec = resp.Legs[i].DurationSec
		} else {
			if prev != nil && c.Prospect.Location != nil {
				stop.LegDistanceM = geo.DistanceMeters(*prev, *c.Prospect.Location)
			}
			stop.LegDurationSec = fallbackStopMinutes * 60
		}
		prev = c.Prospect.Location
		res.Stops = append(res.Stops, stop)
	}

	if resp != nil && resp.TotalDistance > 0 {
		res.TotalDistanceM = resp.TotalDistance
		res.TotalDurationSec = resp.TotalDuration
	} else {
		for _, s := range res.Stops {
			res.TotalDistanceM += s.LegDistanceM
			res.TotalDurationSec += s.LegDurationSec
		}
	}
	return res
}
