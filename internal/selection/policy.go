// Package selection ranks the items a learner may see next and picks one.
// Ranking is a pure function of the catalog, the mastery and schedule
// readers, the session state and the clock.
package selection

import (
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/mastery"
	"github.com/p-n-ai/pai-mastery/internal/spacing"
)

// scoreEpsilon absorbs float noise when comparing scores.
const scoreEpsilon = 1e-12

// Items is the part of the catalog the policy reads.
type Items interface {
	ByConcept(conceptID string) iter.Seq[catalog.Item]
	All() iter.Seq[catalog.Item]
}

// MasteryReader reads beliefs without creating state.
type MasteryReader interface {
	Peek(learnerID, conceptID string) mastery.State
}

// ScheduleReader reads review schedules.
type ScheduleReader interface {
	Schedule(learnerID, itemID string) (spacing.Schedule, bool)
}

// Candidate is a scored eligible item.
type Candidate struct {
	Item    catalog.Item `json:"item"`
	Score   float64      `json:"score"`
	Mastery float64      `json:"mastery"`
	Target  float64      `json:"target"`
	Overdue float64      `json:"overdue"`
	DueAt   time.Time    `json:"due_at"` // now for never-attempted items
	New     bool         `json:"new"`
}

// Policy chooses the next item for a learner.
type Policy struct {
	cfg       Config
	items     Items
	mastery   MasteryReader
	schedules ScheduleReader
}

// NewPolicy validates cfg and builds a policy over the given readers.
func NewPolicy(cfg Config, items Items, m MasteryReader, s ScheduleReader) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if items == nil || m == nil || s == nil {
		return nil, fmt.Errorf("selection: items, mastery and schedules are required")
	}
	return &Policy{cfg: cfg, items: items, mastery: m, schedules: s}, nil
}

// Config returns the policy weights.
func (p *Policy) Config() Config {
	return p.cfg
}

// Rank scores every eligible item, best first. Eligible items are due or
// never attempted, inside the session scope, and not yet offered in the
// session. Ranking never mutates mastery or schedules.
func (p *Policy) Rank(learnerID string, st *SessionState, now time.Time) []Candidate {
	beliefs := make(map[string]mastery.State)
	var out []Candidate

	for item := range p.scope(st) {
		if st.Offered(item.ID) {
			continue
		}
		sc, seen := p.schedules.Schedule(learnerID, item.ID)
		if seen && !sc.Due(now) {
			continue
		}

		ms, ok := beliefs[item.ConceptID]
		if !ok {
			ms = p.mastery.Peek(learnerID, item.ConceptID)
			beliefs[item.ConceptID] = ms
		}

		c := Candidate{Item: item, Mastery: ms.P, DueAt: now, New: !seen}
		if seen {
			c.DueAt = sc.DueAt
			c.Overdue = math.Min(p.cfg.OverdueCap, sc.OverdueRatio(now))
		}
		c.Target = p.target(ms)
		c.Score = p.cfg.MasteryWeight*(1-ms.P) +
			p.cfg.OverdueWeight*c.Overdue -
			p.cfg.DifficultyWeight*math.Abs(item.Difficulty-c.Target)
		out = append(out, c)
	}

	slices.SortFunc(out, compareCandidates)
	return out
}

// SelectNext picks the best candidate and records it in st before returning
// it. It fails with ErrExhausted when no item is eligible.
func (p *Policy) SelectNext(learnerID string, st *SessionState, now time.Time) (catalog.Item, error) {
	ranked := p.Rank(learnerID, st, now)
	if len(ranked) == 0 {
		return catalog.Item{}, fmt.Errorf("%w: learner %s has seen %d items this session", ErrExhausted, learnerID, st.Len())
	}

	best := ranked[0]
	st.Record(best.Item.ID)
	slog.Debug("item selected",
		"learner_id", learnerID,
		"item_id", best.Item.ID,
		"score", best.Score,
		"candidates", len(ranked),
	)
	return best.Item, nil
}

func (p *Policy) target(ms mastery.State) float64 {
	margin := p.cfg.Margin
	if ms.Attempts == 0 {
		margin = p.cfg.ColdStartMargin
	}
	return math.Min(1, math.Max(0, ms.P+margin))
}

func (p *Policy) scope(st *SessionState) iter.Seq[catalog.Item] {
	concepts := st.Concepts()
	if len(concepts) == 0 {
		return p.items.All()
	}
	slices.Sort(concepts)
	concepts = slices.Compact(concepts)
	return func(yield func(catalog.Item) bool) {
		for _, id := range concepts {
			for it := range p.items.ByConcept(id) {
				if !yield(it) {
					return
				}
			}
		}
	}
}

// compareCandidates orders by score descending, then earliest due time,
// then item ID.
func compareCandidates(a, b Candidate) int {
	if d := a.Score - b.Score; math.Abs(d) > scoreEpsilon {
		if d > 0 {
			return -1
		}
		return 1
	}
	if n := a.DueAt.Compare(b.DueAt); n != 0 {
		return n
	}
	return strings.Compare(a.Item.ID, b.Item.ID)
}
