package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"fieldroute/internal/buildinfo"
	"fieldroute/internal/model"
	"fieldroute/internal/plan"
	"fieldroute/internal/prospects"
	"fieldroute/internal/queue"
	"fieldroute/internal/session"
)

// PlanRouteHandler handles POST /v1/routes/plan: instructions in,
// committed session out. Remote optimizer failure degrades to the
// local heuristic and is reported as a notice, never an error.
func (s *Server) PlanRouteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var instr model.RouteInstructions
	if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateInstructions(&instr); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid route instructions", err.Error(), r.URL.Path)
		return
	}

	all, err := s.Prospects.List(r.Context())
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Prospect backend unavailable", err.Error(), r.URL.Path)
		return
	}

	var notices []string
	if instr.StartLocation == nil && instr.StartAddress == "" {
		addr, loc := s.defaultStart()
		instr.StartAddress = addr
		instr.StartLocation = loc
		notices = append(notices, "start location unresolved, using default anchor")
		s.Log.Warn().Msg("no start location supplied, using default anchor")
	}

	candidates := s.Filter.Candidates(r.Context(), all, instr, time.Now().UTC())
	if len(candidates) == 0 {
		writeProblem(w, http.StatusUnprocessableEntity, "No routable prospects",
			"no prospects matched the instructions or none have coordinates", r.URL.Path)
		return
	}

	result, err := s.Planner.Plan(r.Context(), candidates, instr)
	if errors.Is(err, plan.ErrPlanInFlight) {
		writeProblem(w, http.StatusConflict, "Optimization in flight",
			"wait for the current optimization to finish", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Plan failed", err.Error(), r.URL.Path)
		return
	}
	if !result.Optimized {
		notices = append(notices, "remote optimization unavailable, route ordered locally")
	}

	sess, err := s.Sessions.Create(result, instr.StartAddress)
	if errors.Is(err, session.ErrSessionActive) {
		writeProblem(w, http.StatusConflict, "Session active",
			"close the active session before planning a new route", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create session failed", err.Error(), r.URL.Path)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session": sess,
		"notices": notices,
	})
}

// AbandonPlanHandler handles POST /v1/routes/plan/abandon: a late
// response from the abandoned optimization will be discarded.
func (s *Server) AbandonPlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.Planner.Abandon()
	w.WriteHeader(http.StatusNoContent)
}

// ActiveSessionHandler handles GET /v1/sessions/active.
func (s *Server) ActiveSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.Sessions.Active()
	if sess == nil {
		writeProblem(w, http.StatusNotFound, "No active session", "", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":    sess,
		"elapsedSec": int64(s.Sessions.Elapsed() / time.Second),
		"pending":    s.Queue.Count(),
	})
}

// SessionByIDHandler routes POST /v1/sessions/{id}/{action} for
// actions: stops/complete, pause, resume, close.
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}

	active := s.Sessions.Active()
	if active == nil {
		writeProblem(w, http.StatusNotFound, "No active session", "", r.URL.Path)
		return
	}
	if active.ID != id {
		writeProblem(w, http.StatusNotFound, "Unknown session", "id does not match the active session", r.URL.Path)
		return
	}

	switch action {
	case "stops/complete":
		s.completeStop(w, r)
	case "pause":
		sess, err := s.Sessions.Pause()
		s.respondSession(w, r, sess, err)
	case "resume":
		sess, err := s.Sessions.Resume()
		s.respondSession(w, r, sess, err)
	case "close":
		s.closeSession(w, r)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) completeStop(w http.ResponseWriter, r *http.Request) {
	var outcome model.VisitOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}

	res, err := s.Sessions.CompleteStop(r.Context(), outcome)
	switch {
	case errors.Is(err, prospects.ErrInvalidOutcome):
		writeProblem(w, http.StatusBadRequest, "Invalid outcome", err.Error(), r.URL.Path)
		return
	case errors.Is(err, session.ErrSessionDone):
		writeProblem(w, http.StatusConflict, "Session completed", "", r.URL.Path)
		return
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "Complete stop failed", err.Error(), r.URL.Path)
		return
	}

	body := map[string]any{
		"session": res.Session,
		"offline": res.Offline,
		"pending": res.Pending,
	}
	if res.Offline {
		body["notice"] = "working offline, outcome queued for replay"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm") == "true"
	err := s.Sessions.Close(confirm)
	switch {
	case errors.Is(err, session.ErrConfirmRequired):
		writeProblem(w, http.StatusConflict, "Confirmation required",
			"unvisited stops remain; pass confirm=true to discard them", r.URL.Path)
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "Close failed", err.Error(), r.URL.Path)
	default:
		s.Planner.Abandon()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, sess *model.RouteSession, err error) {
	if err != nil {
		writeProblem(w, http.StatusConflict, "Session state error", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

// PendingQueueHandler handles GET /v1/queue/pending.
func (s *Server) PendingQueueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items := s.Queue.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": len(items),
		"items":   items,
	})
}

// DrainQueueHandler handles POST /v1/queue/drain for a manual replay.
func (s *Server) DrainQueueHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := s.Queue.Drain(r.Context(), "manual")
	if errors.Is(err, queue.ErrDrainInProgress) {
		writeProblem(w, http.StatusConflict, "Drain in progress", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Drain failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ConnectivityHandler handles POST /v1/connectivity, the hook the
// client shell uses to report platform online/offline events.
func (s *Server) ConnectivityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	s.ReportConnectivity(body.Online)
	writeJSON(w, http.StatusAccepted, map[string]any{"online": body.Online})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}
