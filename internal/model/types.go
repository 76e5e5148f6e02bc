// Package model holds the core domain types for route planning and
// visit tracking.
package model

import "time"

// ProspectStatus is the sales status of a prospect.
type ProspectStatus string

const (
	StatusNew        ProspectStatus = "new"
	StatusContacted  ProspectStatus = "contacted"
	StatusConverted  ProspectStatus = "converted"
	StatusRejected   ProspectStatus = "rejected"
	StatusHot        ProspectStatus = "hot"
	StatusCold       ProspectStatus = "cold"
	StatusVisited    ProspectStatus = "visited"
	StatusNotVisited ProspectStatus = "not-visited"
)

// ValidStatuses is the canonical set of accepted prospect status strings.
var ValidStatuses = map[ProspectStatus]bool{
	StatusNew: true, StatusContacted: true, StatusConverted: true,
	StatusRejected: true, StatusHot: true, StatusCold: true,
	StatusVisited: true, StatusNotVisited: true,
}

// Temperature is how warm a prospect is toward buying.
type Temperature string

const (
	TempHot  Temperature = "hot"
	TempWarm Temperature = "warm"
	TempCold Temperature = "cold"
)

// ValidTemperatures is the canonical set of accepted temperature strings.
var ValidTemperatures = map[Temperature]bool{
	TempHot: true, TempWarm: true, TempCold: true,
}

// ProjectType distinguishes the kind of construction project behind a permit.
type ProjectType string

const (
	ProjectResidential ProjectType = "residential"
	ProjectCommercial  ProjectType = "commercial"
)

// GeoPoint is a geographic coordinate pair. A nil *GeoPoint on a
// Prospect means the address has not been geocoded yet; the 0,0
// sentinel used by some upstream feeds is normalized to nil on ingest.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Prospect is a construction-permit-derived contact that a
// representative may visit. CRUD lives outside this engine; the visit
// recorder only patches status, temperature, and notes.
type Prospect struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	City        string         `json:"city"`
	Location    *GeoPoint      `json:"location,omitempty"`
	Status      ProspectStatus `json:"status"`
	Temperature Temperature    `json:"temperature,omitempty"`
	ProjectType ProjectType    `json:"projectType,omitempty"`
	Value       float64        `json:"value,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Geocoded reports whether the prospect has resolved coordinates.
func (p *Prospect) Geocoded() bool { return p.Location != nil }

// PriorityFactors toggles which attributes contribute to a priority score.
type PriorityFactors struct {
	Value bool `json:"value"`
	Age   bool `json:"age"`
}

// EndPolicy selects where a route terminates.
type EndPolicy string

const (
	EndReturnToStart EndPolicy = "return-to-start"
	EndLastStop      EndPolicy = "last-stop"
	EndExplicit      EndPolicy = "explicit"
)

// RouteInstructions is the user's route-planning request. Immutable for
// the route it produces.
type RouteInstructions struct {
	Cities          []string        `json:"cities,omitempty"`
	NewConstruction bool            `json:"newConstruction"`
	FollowUp        bool            `json:"followUp"`
	HotLeads        bool            `json:"hotLeads"`
	Commercial      bool            `json:"commercial"`
	Additions       bool            `json:"additions"`
	Factors         PriorityFactors `json:"factors"`
	MaxStops        int             `json:"maxStops"`
	StartAddress    string          `json:"startAddress,omitempty"`
	StartLocation   *GeoPoint       `json:"startLocation,omitempty"`
	EndPolicy       EndPolicy       `json:"endPolicy,omitempty"`
	EndAddress      string          `json:"endAddress,omitempty"`
	RoundTrip       bool            `json:"roundTrip"`
	FreeText        string          `json:"freeText,omitempty"`
}

// ScoredCandidate pairs a prospect with its computed priority. Derived,
// never persisted.
type ScoredCandidate struct {
	Prospect *Prospect `json:"prospect"`
	Score    int       `json:"score"`
}

// StopState tracks per-stop progress within a session.
type StopState string

const (
	StopPending StopState = "pending"
	StopVisited StopState = "visited"
)

// RouteStop is one ordered position in a route session.
type RouteStop struct {
	Seq            int        `json:"seq"`
	ProspectID     string     `json:"prospectId"`
	Address        string     `json:"address"`
	Location       *GeoPoint  `json:"location,omitempty"`
	Score          int        `json:"score"`
	State          StopState  `json:"state"`
	LegDistanceM   int        `json:"legDistanceM,omitempty"`
	LegDurationSec int        `json:"legDurationSec,omitempty"`
	VisitedAt      *time.Time `json:"visitedAt,omitempty"`
}

// SessionState is the lifecycle state of a route session.
type SessionState string

const (
	SessionCreated    SessionState = "created"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
)

// RouteSession is a planned, ordered sequence of prospect visits plus
// progress. Persisted as a single document; the current-stop index
// always points at the first pending stop, or len(Stops) once complete.
type RouteSession struct {
	ID               string       `json:"id"`
	State            SessionState `json:"state"`
	Stops            []RouteStop  `json:"stops"`
	StartAddress     string       `json:"startAddress,omitempty"`
	CurrentStop      int          `json:"currentStop"`
	TotalDistanceM   int          `json:"totalDistanceM"`
	TotalDurationSec int          `json:"totalDurationSec"`
	Optimized        bool         `json:"optimized"`
	ElapsedSec       int64        `json:"elapsedSec"`
	TimerRunning     bool         `json:"timerRunning"`
	ResumedAt        *time.Time   `json:"resumedAt,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
}

// VisitOutcome is what the representative captured at a stop. Nil
// fields were not touched and must not overwrite existing values.
type VisitOutcome struct {
	Status      *ProspectStatus `json:"status,omitempty"`
	Temperature *Temperature    `json:"temperature,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
}

// Empty reports whether the outcome carries no field changes.
func (o VisitOutcome) Empty() bool {
	return o.Status == nil && o.Temperature == nil && o.Notes == nil
}

// PendingMutation is a visit outcome awaiting delivery to the backend.
// Append-only until a replay succeeds; queue order is FIFO.
type PendingMutation struct {
	ID         string       `json:"id"`
	ProspectID string       `json:"prospectId"`
	SessionID  string       `json:"sessionId"`
	Outcome    VisitOutcome `json:"outcome"`
	QueuedAt   time.Time    `json:"queuedAt"`
}
