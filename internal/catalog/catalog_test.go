package catalog_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
)

func TestCatalog_RegisterAndGet(t *testing.T) {
	c := catalog.New()

	err := c.Register(catalog.Item{ID: "q1", ConceptID: "algebra", Difficulty: 0.4, Kind: catalog.KindMCQ})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := c.Get("q1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConceptID != "algebra" {
		t.Errorf("ConceptID = %q, want algebra", got.ConceptID)
	}

	concept, err := c.Concept("algebra")
	if err != nil {
		t.Fatalf("Concept() error = %v", err)
	}
	if concept.Label != "algebra" {
		t.Errorf("Label = %q, want default label algebra", concept.Label)
	}
}

func TestCatalog_RegisterDuplicate(t *testing.T) {
	c := catalog.New()
	_ = c.Register(catalog.Item{ID: "q1", ConceptID: "algebra", Difficulty: 0.4})

	err := c.Register(catalog.Item{ID: "q1", ConceptID: "geometry", Difficulty: 0.1})
	if !errors.Is(err, catalog.ErrDuplicateItem) {
		t.Fatalf("Register() error = %v, want ErrDuplicateItem", err)
	}
}

func TestCatalog_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name string
		item catalog.Item
	}{
		{"missing id", catalog.Item{ConceptID: "c", Difficulty: 0.5}},
		{"missing concept", catalog.Item{ID: "q", Difficulty: 0.5}},
		{"difficulty below zero", catalog.Item{ID: "q", ConceptID: "c", Difficulty: -0.1}},
		{"difficulty above one", catalog.Item{ID: "q", ConceptID: "c", Difficulty: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := catalog.New().Register(tt.item)
			if !errors.Is(err, catalog.ErrInvalidItem) {
				t.Errorf("Register() error = %v, want ErrInvalidItem", err)
			}
		})
	}
}

func TestCatalog_GetNotFound(t *testing.T) {
	c := catalog.New()

	if _, err := c.Get("missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := c.Concept("missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Concept() error = %v, want ErrNotFound", err)
	}
}

func TestCatalog_ByConceptOrderedByDifficulty(t *testing.T) {
	c := catalog.New()
	for _, it := range []catalog.Item{
		{ID: "c", ConceptID: "k", Difficulty: 0.9},
		{ID: "a", ConceptID: "k", Difficulty: 0.2},
		{ID: "b2", ConceptID: "k", Difficulty: 0.5},
		{ID: "b1", ConceptID: "k", Difficulty: 0.5},
		{ID: "other", ConceptID: "z", Difficulty: 0.1},
	} {
		if err := c.Register(it); err != nil {
			t.Fatalf("Register(%s) error = %v", it.ID, err)
		}
	}

	want := []string{"a", "b1", "b2", "c"}
	seq := c.ByConcept("k")

	// The sequence must be restartable.
	for pass := 0; pass < 2; pass++ {
		var got []string
		for it := range seq {
			got = append(got, it.ID)
		}
		if len(got) != len(want) {
			t.Fatalf("pass %d: got %v, want %v", pass, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("pass %d: got %v, want %v", pass, got, want)
				break
			}
		}
	}
}

func TestCatalog_ByConceptEarlyStop(t *testing.T) {
	c := catalog.New()
	_ = c.Register(catalog.Item{ID: "a", ConceptID: "k", Difficulty: 0.1})
	_ = c.Register(catalog.Item{ID: "b", ConceptID: "k", Difficulty: 0.2})

	n := 0
	for range c.ByConcept("k") {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterations = %d, want 1", n)
	}
}

func TestCatalog_AllOrderedByConcept(t *testing.T) {
	c := catalog.New()
	_ = c.Register(catalog.Item{ID: "z1", ConceptID: "zeta", Difficulty: 0.1})
	_ = c.Register(catalog.Item{ID: "a2", ConceptID: "alpha", Difficulty: 0.8})
	_ = c.Register(catalog.Item{ID: "a1", ConceptID: "alpha", Difficulty: 0.3})

	var got []string
	for it := range c.All() {
		got = append(got, it.ID)
	}
	want := []string{"a1", "a2", "z1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("All() = %v, want %v", got, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestCatalog_RegisterWhileIterating(t *testing.T) {
	c := catalog.New()
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Descending difficulty puts every new item at the front of the list.
		for i := range n {
			id := fmt.Sprintf("q%04d", i)
			if err := c.Register(catalog.Item{ID: id, ConceptID: "C", Difficulty: 1 - float64(i)/n}); err != nil {
				t.Errorf("Register(%s) error = %v", id, err)
				return
			}
			if i%100 == 0 {
				_, err := c.Ingest([]catalog.Record{{ItemID: "batch-" + id, ConceptID: "C", IntrinsicDifficulty: 0.5}})
				if err != nil {
					t.Errorf("Ingest() error = %v", err)
					return
				}
			}
		}
	}()

	for r := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pass := 0; pass < 200; pass++ {
				seq := c.ByConcept("C")
				if r%2 == 1 {
					seq = c.All()
				}
				seen := make(map[string]bool)
				last := -1.0
				for it := range seq {
					if seen[it.ID] {
						t.Errorf("pass %d: %s yielded twice", pass, it.ID)
						return
					}
					seen[it.ID] = true
					if it.Difficulty < last {
						t.Errorf("pass %d: %s difficulty %v after %v", pass, it.ID, it.Difficulty, last)
						return
					}
					last = it.Difficulty
				}
			}
		}()
	}
	wg.Wait()

	if got, want := c.Len(), n+n/100; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}

func TestCatalog_NormalizesIdentifiers(t *testing.T) {
	c := catalog.New()
	// "é" as e + combining acute accent.
	if err := c.Register(catalog.Item{ID: " cafe\u0301 ", ConceptID: "k", Difficulty: 0.2}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.Get("caf\u00e9"); err != nil {
		t.Errorf("Get() with precomposed form error = %v", err)
	}
}

func TestCatalog_RegisterConceptLabel(t *testing.T) {
	c := catalog.New()
	_ = c.Register(catalog.Item{ID: "q1", ConceptID: "fractions", Difficulty: 0.2})

	if err := c.RegisterConcept(catalog.Concept{ID: "fractions", Label: "Fractions"}); err != nil {
		t.Fatalf("RegisterConcept() error = %v", err)
	}
	// Labels are immutable once set.
	_ = c.RegisterConcept(catalog.Concept{ID: "fractions", Label: "Something else"})

	got, _ := c.Concept("fractions")
	if got.Label != "Fractions" {
		t.Errorf("Label = %q, want Fractions", got.Label)
	}
}

func TestIngest_Batch(t *testing.T) {
	c := catalog.New()

	res, err := c.Ingest([]catalog.Record{
		{ItemID: "q1", ConceptID: "algebra", IntrinsicDifficulty: 0.2, Kind: "mcq"},
		{ItemID: "q2", ConceptID: "algebra", IntrinsicDifficulty: 0.6, Kind: "tf"},
		{ItemID: "q3", ConceptID: "geometry", IntrinsicDifficulty: 0.5},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Items != 3 {
		t.Errorf("Items = %d, want 3", res.Items)
	}
	if res.NewConcepts != 2 {
		t.Errorf("NewConcepts = %d, want 2", res.NewConcepts)
	}

	q2, _ := c.Get("q2")
	if q2.Kind != catalog.KindTrueFalse {
		t.Errorf("Kind = %q, want true_false", q2.Kind)
	}
}

func TestIngest_RejectsWholeBatchOnDuplicate(t *testing.T) {
	tests := []struct {
		name    string
		seed    []catalog.Record
		records []catalog.Record
	}{
		{
			name: "duplicate within batch",
			records: []catalog.Record{
				{ItemID: "q1", ConceptID: "a", IntrinsicDifficulty: 0.1},
				{ItemID: "q1", ConceptID: "a", IntrinsicDifficulty: 0.2},
			},
		},
		{
			name: "duplicate against catalog",
			seed: []catalog.Record{{ItemID: "q1", ConceptID: "a", IntrinsicDifficulty: 0.1}},
			records: []catalog.Record{
				{ItemID: "q9", ConceptID: "a", IntrinsicDifficulty: 0.3},
				{ItemID: "q1", ConceptID: "a", IntrinsicDifficulty: 0.2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := catalog.New()
			if _, err := c.Ingest(tt.seed); err != nil {
				t.Fatalf("seed Ingest() error = %v", err)
			}
			before := c.Len()

			_, err := c.Ingest(tt.records)
			if !errors.Is(err, catalog.ErrDuplicateItem) {
				t.Fatalf("Ingest() error = %v, want ErrDuplicateItem", err)
			}
			if c.Len() != before {
				t.Errorf("Len() = %d, want %d (batch must be all-or-nothing)", c.Len(), before)
			}
		})
	}
}

func TestIngest_UnknownKind(t *testing.T) {
	_, err := catalog.New().Ingest([]catalog.Record{
		{ItemID: "q1", ConceptID: "a", IntrinsicDifficulty: 0.1, Kind: "essay-ish"},
	})
	if !errors.Is(err, catalog.ErrInvalidItem) {
		t.Errorf("Ingest() error = %v, want ErrInvalidItem", err)
	}
}

func TestKind_GuessRate(t *testing.T) {
	tests := []struct {
		kind catalog.Kind
		want float64
	}{
		{catalog.KindMCQ, 0.25},
		{catalog.KindTrueFalse, 0.5},
		{catalog.KindFillBlank, 0},
		{catalog.KindOpen, 0},
	}
	for _, tt := range tests {
		if got := tt.kind.GuessRate(); got != tt.want {
			t.Errorf("%s.GuessRate() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
