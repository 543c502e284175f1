package selection_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/selection"
	"github.com/p-n-ai/pai-mastery/internal/spacing"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	catalog   *catalog.Catalog
	mastery   *mastery.Store
	scheduler *spacing.Scheduler
	policy    *selection.Policy
}

func newFixture(t *testing.T, records ...catalog.Record) *fixture {
	t.Helper()
	if len(records) == 0 {
		records = []catalog.Record{
			{ItemID: "A", ConceptID: "C", IntrinsicDifficulty: 0.2},
			{ItemID: "B", ConceptID: "C", IntrinsicDifficulty: 0.5},
			{ItemID: "C", ConceptID: "C", IntrinsicDifficulty: 0.9},
		}
	}
	c := catalog.New()
	if _, err := c.Ingest(records); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	m, err := mastery.NewStore(mastery.DefaultConfig(), c)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	s, err := spacing.NewScheduler(spacing.Config{})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	p, err := selection.NewPolicy(selection.DefaultConfig(), c, m, s)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	return &fixture{catalog: c, mastery: m, scheduler: s, policy: p}
}

type fakeMastery map[string]mastery.State

func (f fakeMastery) Peek(learnerID, conceptID string) mastery.State {
	return f[conceptID]
}

type fakeSchedules map[string]spacing.Schedule

func (f fakeSchedules) Schedule(learnerID, itemID string) (spacing.Schedule, bool) {
	sc, ok := f[itemID]
	return sc, ok
}

func TestSelectNext_ColdLearnerGetsEasiestItem(t *testing.T) {
	f := newFixture(t)
	st := selection.NewSessionState(t0, "C")

	ranked := f.policy.Rank("ana", st, t0)
	want := map[string]float64{"A": 0.6, "B": 0.5, "C": 0.1}
	if len(ranked) != 3 {
		t.Fatalf("Rank() returned %d candidates, want 3", len(ranked))
	}
	for _, c := range ranked {
		if math.Abs(c.Score-want[c.Item.ID]) > 1e-9 {
			t.Errorf("score(%s) = %v, want %v", c.Item.ID, c.Score, want[c.Item.ID])
		}
		if !c.New {
			t.Errorf("candidate %s should be new", c.Item.ID)
		}
	}

	got, err := f.policy.SelectNext("ana", st, t0)
	if err != nil {
		t.Fatalf("SelectNext() error = %v", err)
	}
	if got.ID != "A" {
		t.Errorf("SelectNext() = %s, want A", got.ID)
	}
	if !st.Offered("A") {
		t.Error("SelectNext() did not record the item in the session")
	}
}

func TestSelectNext_MarginAppliesOnceConceptHasEvidence(t *testing.T) {
	f := newFixture(t)
	m := fakeMastery{"C": {ConceptID: "C", P: 0.3, Attempts: 1}}
	p, err := selection.NewPolicy(selection.DefaultConfig(), f.catalog, m, fakeSchedules{})
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	got, err := p.SelectNext("ana", selection.NewSessionState(t0, "C"), t0)
	if err != nil {
		t.Fatalf("SelectNext() error = %v", err)
	}
	if got.ID != "B" {
		t.Errorf("SelectNext() = %s, want B (target 0.4)", got.ID)
	}
}

func TestSelectNext_NoRepeatsThenExhausted(t *testing.T) {
	f := newFixture(t)
	st := selection.NewSessionState(t0, "C")

	seen := map[string]bool{}
	for i := range 3 {
		it, err := f.policy.SelectNext("ana", st, t0)
		if err != nil {
			t.Fatalf("SelectNext() #%d error = %v", i+1, err)
		}
		if seen[it.ID] {
			t.Fatalf("SelectNext() repeated %s", it.ID)
		}
		seen[it.ID] = true
	}

	if _, err := f.policy.SelectNext("ana", st, t0); !errors.Is(err, selection.ErrExhausted) {
		t.Errorf("SelectNext() error = %v, want ErrExhausted", err)
	}
	if got := st.OfferedItems(); len(got) != 3 {
		t.Errorf("OfferedItems() = %v, want 3 items", got)
	}
}

func TestRank_SkipsItemsNotDue(t *testing.T) {
	f := newFixture(t)
	sc := f.scheduler.OnAttempt(attempt.Attempt{LearnerID: "ana", ItemID: "A", Score: 1, At: t0})

	for _, c := range f.policy.Rank("ana", selection.NewSessionState(t0), t0.Add(time.Hour)) {
		if c.Item.ID == "A" {
			t.Fatal("Rank() included an item that is not due")
		}
	}

	late := sc.DueAt.Add(12 * time.Hour)
	var found bool
	for _, c := range f.policy.Rank("ana", selection.NewSessionState(late), late) {
		if c.Item.ID != "A" {
			continue
		}
		found = true
		if c.New {
			t.Error("a scheduled item should not be reported as new")
		}
		if math.Abs(c.Overdue-0.5) > 1e-9 {
			t.Errorf("Overdue = %v, want 0.5", c.Overdue)
		}
	}
	if !found {
		t.Error("Rank() left out an overdue item")
	}
}

func TestRank_DoesNotMutateMastery(t *testing.T) {
	f := newFixture(t)
	f.policy.Rank("ana", selection.NewSessionState(t0), t0)
	if f.mastery.HasLearner("ana") {
		t.Error("Rank() created mastery state")
	}
}

func TestRank_OverdueCap(t *testing.T) {
	f := newFixture(t,
		catalog.Record{ItemID: "ancient", ConceptID: "C", IntrinsicDifficulty: 0.3},
		catalog.Record{ItemID: "recent", ConceptID: "C", IntrinsicDifficulty: 0.3},
	)
	m := fakeMastery{"C": {P: 0.3, Attempts: 1}}
	schedules := fakeSchedules{
		"ancient": {ItemID: "ancient", Interval: 24 * time.Hour, DueAt: t0.Add(-300 * 24 * time.Hour)},
		"recent":  {ItemID: "recent", Interval: 24 * time.Hour, DueAt: t0.Add(-2 * 24 * time.Hour)},
	}
	p, err := selection.NewPolicy(selection.DefaultConfig(), f.catalog, m, schedules)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}

	ranked := p.Rank("ana", selection.NewSessionState(t0), t0)
	if len(ranked) != 2 {
		t.Fatalf("Rank() returned %d candidates, want 2", len(ranked))
	}
	for _, c := range ranked {
		if c.Overdue != 1 {
			t.Errorf("Overdue(%s) = %v, want capped at 1", c.Item.ID, c.Overdue)
		}
	}
	// Equal scores fall back to the earliest due time, not the ID.
	if ranked[0].Item.ID != "ancient" {
		t.Errorf("first = %s, want ancient", ranked[0].Item.ID)
	}
}

func TestRank_TieBreaksByID(t *testing.T) {
	f := newFixture(t,
		catalog.Record{ItemID: "q2", ConceptID: "C", IntrinsicDifficulty: 0.3},
		catalog.Record{ItemID: "q1", ConceptID: "C", IntrinsicDifficulty: 0.3},
		catalog.Record{ItemID: "q3", ConceptID: "C", IntrinsicDifficulty: 0.3},
	)

	ranked := f.policy.Rank("ana", selection.NewSessionState(t0), t0)
	var ids []string
	for _, c := range ranked {
		ids = append(ids, c.Item.ID)
	}
	want := []string{"q1", "q2", "q3"}
	for i := range want {
		if i >= len(ids) || ids[i] != want[i] {
			t.Fatalf("Rank() order = %v, want %v", ids, want)
		}
	}
}

func TestRank_ConceptScope(t *testing.T) {
	f := newFixture(t,
		catalog.Record{ItemID: "alg-1", ConceptID: "algebra", IntrinsicDifficulty: 0.3},
		catalog.Record{ItemID: "geo-1", ConceptID: "geometry", IntrinsicDifficulty: 0.3},
	)

	scoped := f.policy.Rank("ana", selection.NewSessionState(t0, "geometry"), t0)
	if len(scoped) != 1 || scoped[0].Item.ID != "geo-1" {
		t.Errorf("scoped Rank() = %+v, want only geo-1", scoped)
	}
	if all := f.policy.Rank("ana", selection.NewSessionState(t0), t0); len(all) != 2 {
		t.Errorf("unscoped Rank() returned %d candidates, want 2", len(all))
	}
}

func TestNewPolicy_InvalidConfig(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		cfg  func(*selection.Config)
	}{
		{"negative weight", func(c *selection.Config) { c.OverdueWeight = -1 }},
		{"all weights zero", func(c *selection.Config) { c.MasteryWeight, c.OverdueWeight, c.DifficultyWeight = 0, 0, 0 }},
		{"margin too large", func(c *selection.Config) { c.Margin = 2 }},
		{"negative cap", func(c *selection.Config) { c.OverdueCap = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := selection.DefaultConfig()
			tt.cfg(&cfg)
			if _, err := selection.NewPolicy(cfg, f.catalog, f.mastery, f.scheduler); !errors.Is(err, selection.ErrInvalidConfig) {
				t.Errorf("NewPolicy() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSessionState_RecordIsIdempotent(t *testing.T) {
	st := selection.NewSessionState(t0, "C")
	st.Record("A")
	st.Record("B")
	st.Record("A")

	got := st.OfferedItems()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("OfferedItems() = %v, want [A B]", got)
	}
	if st.Len() != 2 {
		t.Errorf("Len() = %d, want 2", st.Len())
	}
}
