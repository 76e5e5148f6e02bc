package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fieldroute/internal/config"
	"fieldroute/internal/connectivity"
	"fieldroute/internal/localstore"
	"fieldroute/internal/model"
	"fieldroute/internal/plan"
	"fieldroute/internal/prospects"
	"fieldroute/internal/queue"
	"fieldroute/internal/session"
)

func seedProspects() []*model.Prospect {
	now := time.Now().UTC()
	return []*model.Prospect{
		{ID: "p1", Name: "Alpha Roofing", Address: "1 Main St", City: "Boston",
			Location: &model.GeoPoint{Lat: 42.36, Lng: -71.05},
			Status:   model.StatusHot, Temperature: model.TempHot, Value: 12000, CreatedAt: now},
		{ID: "p2", Name: "Beta Homes", Address: "2 Oak St", City: "Boston",
			Location: &model.GeoPoint{Lat: 42.37, Lng: -71.06},
			Status:   model.StatusNew, CreatedAt: now},
		{ID: "p3", Name: "Gamma Build", Address: "3 Pine St", City: "Cambridge",
			Location: &model.GeoPoint{Lat: 42.38, Lng: -71.11},
			Status:   model.StatusContacted, CreatedAt: now},
	}
}

func newTestServer(t *testing.T, seed []*model.Prospect) (*Server, *prospects.Memory) {
	t.Helper()
	log := zerolog.Nop()
	repo := prospects.NewMemory(seed)
	store := localstore.NewMemory()
	q := queue.Load(store, repo, log)
	watcher := make(connectivity.ChanWatcher, 8)

	cfg := &config.Config{}
	cfg.DefaultStart.Address = "HQ"
	cfg.DefaultStart.Lat = 42.35
	cfg.DefaultStart.Lng = -71.06

	return &Server{
		Cfg:       cfg,
		Log:       log,
		Prospects: repo,
		Filter:    &plan.Filter{Log: log},
		Planner:   &plan.Planner{Log: log},
		Sessions:  session.NewManager(store, repo, q, log),
		Queue:     q,
		Monitor:   connectivity.New(q, watcher, log),
		Broker:    NewBroker(),
		watcher:   watcher,
		store:     store,
	}, repo
}

type planResponse struct {
	Session model.RouteSession `json:"session"`
	Notices []string           `json:"notices"`
}

func planRoute(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, planResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/routes/plan", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.PlanRouteHandler(rec, req)

	var out planResponse
	if rec.Code == http.StatusCreated {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode plan response: %v", err)
		}
	}
	return rec, out
}

func TestPlanRouteCreatesSession(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())

	rec, out := planRoute(t, s, `{"startAddress": "1 Depot Way", "startLocation": {"lat": 42.35, "lng": -71.06}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out.Session.State != model.SessionInProgress {
		t.Fatalf("session state = %s", out.Session.State)
	}
	if len(out.Session.Stops) != 3 {
		t.Fatalf("stops = %d, want 3", len(out.Session.Stops))
	}
	// No remote optimizer configured, so the local ordering is announced.
	found := false
	for _, n := range out.Notices {
		if strings.Contains(n, "ordered locally") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing local-ordering notice: %v", out.Notices)
	}
}

func TestPlanRouteDefaultsStartAnchor(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())

	rec, out := planRoute(t, s, `{}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if out.Session.StartAddress != "HQ" {
		t.Fatalf("start = %q, want default anchor", out.Session.StartAddress)
	}
	found := false
	for _, n := range out.Notices {
		if strings.Contains(n, "default anchor") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing default-anchor notice: %v", out.Notices)
	}
}

func TestPlanRouteRejectsSecondSession(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())

	if rec, _ := planRoute(t, s, `{}`); rec.Code != http.StatusCreated {
		t.Fatalf("first plan: %d", rec.Code)
	}
	rec, _ := planRoute(t, s, `{}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second plan status = %d, want 409", rec.Code)
	}
}

func TestPlanRouteNoCandidates(t *testing.T) {
	// Only an ungeocoded prospect: nothing is routable.
	s, _ := newTestServer(t, []*model.Prospect{
		{ID: "p1", Address: "1 Main St", Status: model.StatusNew, CreatedAt: time.Now()},
	})
	rec, _ := planRoute(t, s, `{}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestPlanRouteValidation(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())

	rec, _ := planRoute(t, s, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
	rec, _ = planRoute(t, s, `{"endPolicy": "explicit"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("explicit end without address status = %d", rec.Code)
	}
}

func TestActiveSessionLifecycle(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/active", nil)
	rec := httptest.NewRecorder()
	s.ActiveSessionHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no session yet, status = %d", rec.Code)
	}

	_, out := planRoute(t, s, `{}`)

	rec = httptest.NewRecorder()
	s.ActiveSessionHandler(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("active session status = %d", rec.Code)
	}
	var got struct {
		Session model.RouteSession `json:"session"`
		Pending int                `json:"pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Session.ID != out.Session.ID {
		t.Fatalf("session id mismatch: %s vs %s", got.Session.ID, out.Session.ID)
	}
}

func postSession(s *Server, id, action, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/"+action, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.SessionByIDHandler(rec, req)
	return rec
}

func TestCompleteStopOnline(t *testing.T) {
	s, repo := newTestServer(t, seedProspects())
	_, out := planRoute(t, s, `{}`)
	first := out.Session.Stops[0].ProspectID

	rec := postSession(s, out.Session.ID, "stops/complete", `{"status": "visited", "notes": "spoke with owner"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Session model.RouteSession `json:"session"`
		Offline bool               `json:"offline"`
		Pending int                `json:"pending"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Offline || got.Pending != 0 {
		t.Fatalf("online complete reported offline: %+v", got)
	}
	if got.Session.CurrentStop != 1 {
		t.Fatalf("current stop = %d", got.Session.CurrentStop)
	}

	p, _ := repo.Get(context.Background(), first)
	if p.Status != model.StatusVisited || p.Notes != "spoke with owner" {
		t.Fatalf("outcome not applied: %+v", p)
	}
}

func TestCompleteStopOfflineQueues(t *testing.T) {
	s, repo := newTestServer(t, seedProspects())
	_, out := planRoute(t, s, `{}`)

	repo.SetUnavailable(true)
	rec := postSession(s, out.Session.ID, "stops/complete", `{"status": "visited"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Offline bool   `json:"offline"`
		Pending int    `json:"pending"`
		Notice  string `json:"notice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Offline || got.Pending != 1 || got.Notice == "" {
		t.Fatalf("offline complete = %+v", got)
	}

	// Back online: a manual drain replays the queued outcome.
	repo.SetUnavailable(false)
	rec = httptest.NewRecorder()
	s.DrainQueueHandler(rec, httptest.NewRequest(http.MethodPost, "/v1/queue/drain", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("drain status = %d", rec.Code)
	}
	var report queue.DrainReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Delivered != 1 || report.Remaining != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestCompleteStopInvalidOutcome(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())
	_, out := planRoute(t, s, `{}`)

	rec := postSession(s, out.Session.ID, "stops/complete", `{"status": "bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionIDMustMatchActive(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())
	_, _ = planRoute(t, s, `{}`)

	rec := postSession(s, "someone-elses-id", "pause", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPauseAndResume(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())
	_, out := planRoute(t, s, `{}`)

	rec := postSession(s, out.Session.ID, "pause", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}
	var got struct {
		Session model.RouteSession `json:"session"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Session.TimerRunning {
		t.Fatal("timer still running after pause")
	}

	rec = postSession(s, out.Session.ID, "resume", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d", rec.Code)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.Session.TimerRunning {
		t.Fatal("timer stopped after resume")
	}
}

func TestCloseSessionConfirm(t *testing.T) {
	s, _ := newTestServer(t, seedProspects())
	_, out := planRoute(t, s, `{}`)

	rec := postSession(s, out.Session.ID, "close", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unconfirmed close status = %d, want 409", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+out.Session.ID+"/close?confirm=true", nil)
	rec = httptest.NewRecorder()
	s.SessionByIDHandler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("confirmed close status = %d, want 204", rec.Code)
	}
	if s.Sessions.Active() != nil {
		t.Fatal("session still active")
	}
}

func TestPendingQueueHandler(t *testing.T) {
	s, repo := newTestServer(t, seedProspects())
	_, out := planRoute(t, s, `{}`)

	repo.SetUnavailable(true)
	_ = postSession(s, out.Session.ID, "stops/complete", `{"status": "visited"}`)

	rec := httptest.NewRecorder()
	s.PendingQueueHandler(rec, httptest.NewRequest(http.MethodGet, "/v1/queue/pending", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Pending int                     `json:"pending"`
		Items   []model.PendingMutation `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Pending != 1 || len(got.Items) != 1 {
		t.Fatalf("pending = %+v", got)
	}
	if got.Items[0].SessionID != out.Session.ID {
		t.Fatalf("mutation session = %s", got.Items[0].SessionID)
	}
}

func TestConnectivityHandlerAccepts(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/connectivity", strings.NewReader(`{"online": false}`))
	rec := httptest.NewRecorder()
	s.ConnectivityHandler(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	// The signal lands on the watcher channel for the monitor loop.
	select {
	case v := <-s.watcher:
		if v {
			t.Fatal("watcher received online, want offline")
		}
	default:
		t.Fatal("no signal on watcher channel")
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" {
		t.Fatalf("body = %v", got)
	}
}
