// Package catalog indexes the content items a learner can be offered and the
// concepts they exercise. It is populated during a load phase and read
// concurrently afterwards.
package catalog

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Catalog is an in-memory index of concepts and items.
type Catalog struct {
	concepts  map[string]Concept
	items     map[string]Item
	byConcept map[string][]Item   // sorted by difficulty, then ID
	pending   map[string]struct{} // IDs of batches being saved
	mu        sync.RWMutex
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		concepts:  make(map[string]Concept),
		items:     make(map[string]Item),
		byConcept: make(map[string][]Item),
		pending:   make(map[string]struct{}),
	}
}

// RegisterConcept adds a concept. Registering the same ID again only
// fills in a label that was previously defaulted to the ID.
func (c *Catalog) RegisterConcept(concept Concept) error {
	concept.ID = NormalizeID(concept.ID)
	concept.Label = NormalizeID(concept.Label)
	if concept.ID == "" {
		return fmt.Errorf("%w: concept id is required", ErrInvalidItem)
	}
	if concept.Label == "" {
		concept.Label = concept.ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.concepts[concept.ID]; ok && existing.Label != existing.ID {
		return nil
	}
	c.concepts[concept.ID] = concept
	return nil
}

// Register adds an item. It fails with ErrDuplicateItem if the ID exists.
func (c *Catalog) Register(item Item) error {
	item = normalizeItem(item)
	if err := item.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.knownLocked(item.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID)
	}
	c.insertLocked(item)
	return nil
}

func (c *Catalog) knownLocked(itemID string) bool {
	_, ok := c.items[itemID]
	_, saving := c.pending[itemID]
	return ok || saving
}

func (c *Catalog) insertLocked(item Item) {
	if _, ok := c.concepts[item.ConceptID]; !ok {
		c.concepts[item.ConceptID] = Concept{ID: item.ConceptID, Label: item.ConceptID}
	}
	c.items[item.ID] = item

	// Readers iterate the old slice after unlocking, so never write into it.
	list := append(slices.Clone(c.byConcept[item.ConceptID]), item)
	slices.SortFunc(list, compareItems)
	c.byConcept[item.ConceptID] = list
}

// Get returns an item by ID.
func (c *Catalog) Get(itemID string) (Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[NormalizeID(itemID)]
	if !ok {
		return Item{}, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return it, nil
}

// Concept returns a concept by ID.
func (c *Catalog) Concept(conceptID string) (Concept, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cn, ok := c.concepts[NormalizeID(conceptID)]
	if !ok {
		return Concept{}, fmt.Errorf("%w: concept %s", ErrNotFound, conceptID)
	}
	return cn, nil
}

// ByConcept returns the items of a concept in ascending difficulty.
// The sequence is restartable; each iteration reads the catalog afresh.
func (c *Catalog) ByConcept(conceptID string) iter.Seq[Item] {
	id := NormalizeID(conceptID)
	return func(yield func(Item) bool) {
		c.mu.RLock()
		list := c.byConcept[id]
		c.mu.RUnlock()

		for _, it := range list {
			if !yield(it) {
				return
			}
		}
	}
}

// All returns every item ordered by concept ID, difficulty and item ID.
func (c *Catalog) All() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, id := range c.conceptIDs() {
			for it := range c.ByConcept(id) {
				if !yield(it) {
					return
				}
			}
		}
	}
}

// Concepts returns all concepts sorted by ID.
func (c *Catalog) Concepts() []Concept {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Concept, 0, len(c.concepts))
	for _, cn := range c.concepts {
		out = append(out, cn)
	}
	slices.SortFunc(out, func(a, b Concept) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Catalog) conceptIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.byConcept))
	for id := range c.byConcept {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func compareItems(a, b Item) int {
	if n := cmp.Compare(a.Difficulty, b.Difficulty); n != 0 {
		return n
	}
	return strings.Compare(a.ID, b.ID)
}

func normalizeItem(it Item) Item {
	it.ID = NormalizeID(it.ID)
	it.ConceptID = NormalizeID(it.ConceptID)
	it.PayloadRef = strings.TrimSpace(it.PayloadRef)
	if it.Kind == "" {
		it.Kind = KindOpen
	}
	return it
}

// NormalizeID trims and NFC-normalises an identifier. Item and concept IDs
// are stored and looked up in this form.
func NormalizeID(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
