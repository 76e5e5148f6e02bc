package queue

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fieldroute/internal/localstore"
	"fieldroute/internal/model"
	"fieldroute/internal/prospects"
)

func seedProspects() []*model.Prospect {
	return []*model.Prospect{
		{ID: "p1", Status: model.StatusNew, CreatedAt: time.Now()},
		{ID: "p2", Status: model.StatusContacted, CreatedAt: time.Now()},
	}
}

func outcomeStatus(s model.ProspectStatus) model.VisitOutcome {
	return model.VisitOutcome{Status: &s}
}

func outcomeNotes(n string) model.VisitOutcome {
	return model.VisitOutcome{Notes: &n}
}

func TestEnqueueAndDrainDelivers(t *testing.T) {
	store := localstore.NewMemory()
	repo := prospects.NewMemory(seedProspects())
	q := Load(store, repo, zerolog.Nop())

	if _, err := q.Enqueue("p1", "s1", outcomeStatus(model.StatusVisited)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Count() != 1 {
		t.Fatalf("count = %d, want 1", q.Count())
	}

	report, err := q.Drain(context.Background(), "test")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if report.Delivered != 1 || report.Remaining != 0 {
		t.Fatalf("report = %+v", report)
	}
	if q.Count() != 0 {
		t.Fatalf("queue not emptied: %d", q.Count())
	}

	p, _ := repo.Get(context.Background(), "p1")
	if p.Status != model.StatusVisited {
		t.Fatalf("outcome not applied: status = %s", p.Status)
	}
}

func TestDrainIdempotentOnSecondPass(t *testing.T) {
	store := localstore.NewMemory()
	repo := prospects.NewMemory(seedProspects())
	q := Load(store, repo, zerolog.Nop())

	_, _ = q.Enqueue("p1", "s1", outcomeStatus(model.StatusVisited))
	if _, err := q.Drain(context.Background(), "test"); err != nil {
		t.Fatalf("first drain: %v", err)
	}

	// The delivered mutation is gone; a second drain changes nothing.
	report, err := q.Drain(context.Background(), "test")
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if report.Delivered != 0 || report.Remaining != 0 {
		t.Fatalf("second drain report = %+v, want no-op", report)
	}
	if q.Count() != 0 {
		t.Fatalf("mutation reappeared: count = %d", q.Count())
	}
}

func TestDrainRetainsNetworkFailures(t *testing.T) {
	store := localstore.NewMemory()
	repo := prospects.NewMemory(seedProspects())
	q := Load(store, repo, zerolog.Nop())

	_, _ = q.Enqueue("p1", "s1", outcomeStatus(model.StatusVisited))
	repo.SetUnavailable(true)

	report, err := q.Drain(context.Background(), "test")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if report.Delivered != 0 || report.Remaining != 1 {
		t.Fatalf("report = %+v, want retained", report)
	}

	repo.SetUnavailable(false)
	report, err = q.Drain(context.Background(), "test")
	if err != nil {
		t.Fatalf("Drain after reconnect: %v", err)
	}
	if report.Delivered != 1 || report.Remaining != 0 {
		t.Fatalf("report = %+v, want delivered", report)
	}
}

func TestDrainHoldsBackLaterMutationsForFailedProspect(t *testing.T) {
	store := localstore.NewMemory()
	repo := &failFirst{Memory: prospects.NewMemory(seedProspects())}
	q := Load(store, repo, zerolog.Nop())

	// Two edits to p1; if the first fails, the second must not land
	// ahead of it. An independent p2 edit still goes through.
	_, _ = q.Enqueue("p1", "s1", outcomeStatus(model.StatusContacted))
	_, _ = q.Enqueue("p1", "s1", outcomeNotes("second edit"))
	_, _ = q.Enqueue("p2", "s1", outcomeStatus(model.StatusVisited))

	report, err := q.Drain(context.Background(), "test")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if report.Delivered != 1 || report.Remaining != 2 {
		t.Fatalf("report = %+v, want p2 delivered and both p1 edits retained", report)
	}

	pending := q.Pending()
	if pending[0].ProspectID != "p1" || pending[1].ProspectID != "p1" {
		t.Fatalf("queue order broken: %+v", pending)
	}
	p1, _ := repo.Get(context.Background(), "p1")
	if p1.Notes == "second edit" {
		t.Fatal("later edit applied ahead of the failed earlier one")
	}
}

// failFirst fails the first ApplyOutcome for p1 with a network error,
// then delegates.
type failFirst struct {
	*prospects.Memory
	failed bool
}

func (f *failFirst) ApplyOutcome(ctx context.Context, id string, outcome model.VisitOutcome) error {
	if id == "p1" && !f.failed {
		f.failed = true
		return prospects.ErrUnavailable
	}
	return f.Memory.ApplyOutcome(ctx, id, outcome)
}

func TestQueueSurvivesReload(t *testing.T) {
	store := localstore.NewMemory()
	repo := prospects.NewMemory(seedProspects())

	q := Load(store, repo, zerolog.Nop())
	_, _ = q.Enqueue("p1", "s1", outcomeStatus(model.StatusVisited))
	_, _ = q.Enqueue("p2", "s1", outcomeNotes("hello"))

	// Simulate a crash: reload from the same durable store.
	q2 := Load(store, repo, zerolog.Nop())
	if q2.Count() != 2 {
		t.Fatalf("reloaded count = %d, want 2", q2.Count())
	}
	pending := q2.Pending()
	if pending[0].ProspectID != "p1" || pending[1].ProspectID != "p2" {
		t.Fatalf("FIFO order lost on reload: %+v", pending)
	}
}

func TestLoadToleratesCorruptRecord(t *testing.T) {
	store := localstore.NewMemory()
	_ = store.Put(localstore.KeyMutationQueue, []byte("{not json"))

	q := Load(store, prospects.NewMemory(nil), zerolog.Nop())
	if q.Count() != 0 {
		t.Fatalf("corrupt record should load empty, got %d", q.Count())
	}
}
