package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Record is one row of an ingestion batch produced by the content pipeline.
type Record struct {
	ItemID              string  `json:"item_id" yaml:"id"`
	ConceptID           string  `json:"concept_id" yaml:"concept_id"`
	IntrinsicDifficulty float64 `json:"difficulty" yaml:"difficulty"`
	Kind                string  `json:"kind,omitempty" yaml:"kind"`
	PayloadRef          string  `json:"payload_ref,omitempty" yaml:"payload"`
}

// Item converts the record into a catalog item.
func (r Record) Item() (Item, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return Item{}, fmt.Errorf("item %s: %w", r.ItemID, err)
	}
	return Item{
		ID:         r.ItemID,
		ConceptID:  r.ConceptID,
		Difficulty: r.IntrinsicDifficulty,
		Kind:       kind,
		PayloadRef: r.PayloadRef,
	}, nil
}

// Record converts the item back into an ingestion record.
func (it Item) Record() Record {
	return Record{
		ItemID:              it.ID,
		ConceptID:           it.ConceptID,
		IntrinsicDifficulty: it.Difficulty,
		Kind:                string(it.Kind),
		PayloadRef:          it.PayloadRef,
	}
}

// IngestResult summarises a successful batch.
type IngestResult struct {
	Items       int
	NewConcepts int
}

// Saver persists an ingested batch before it becomes visible.
type Saver interface {
	SaveItems(ctx context.Context, items []Item) error
}

// Source lists items persisted by earlier or concurrent ingests.
type Source interface {
	LoadItems(ctx context.Context) ([]Record, error)
}

// Ingest adds a batch of records. The batch is applied all-or-nothing: any
// invalid record or duplicate ID (within the batch or against the catalog)
// rejects the whole batch.
func (c *Catalog) Ingest(records []Record) (IngestResult, error) {
	return c.IngestAndSave(context.Background(), records, nil)
}

// IngestAndSave is Ingest with the batch persisted through s before it is
// inserted. The batch's IDs are reserved while s runs, so a concurrent
// register of the same ID fails with ErrDuplicateItem. If s fails the
// catalog is unchanged. A nil s skips persistence.
func (c *Catalog) IngestAndSave(ctx context.Context, records []Record, s Saver) (IngestResult, error) {
	items, err := prepareBatch(records)
	if err != nil {
		return IngestResult{}, err
	}

	if s == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.checkLocked(items); err != nil {
			return IngestResult{}, err
		}
		return c.insertBatchLocked(items, false), nil
	}

	if err := c.reserve(items); err != nil {
		return IngestResult{}, err
	}
	err = s.SaveItems(ctx, items)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		delete(c.pending, it.ID)
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("save batch: %w", err)
	}
	return c.insertBatchLocked(items, true), nil
}

func (c *Catalog) reserve(items []Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(items); err != nil {
		return err
	}
	for _, it := range items {
		c.pending[it.ID] = struct{}{}
	}
	return nil
}

func (c *Catalog) checkLocked(items []Item) error {
	for _, it := range items {
		if c.knownLocked(it.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
	}
	return nil
}

func (c *Catalog) insertBatchLocked(items []Item, persisted bool) IngestResult {
	var res IngestResult
	for _, it := range items {
		if _, ok := c.concepts[it.ConceptID]; !ok {
			res.NewConcepts++
		}
		c.insertLocked(it)
		res.Items++
	}
	slog.Info("catalog batch ingested", "items", res.Items, "new_concepts", res.NewConcepts, "persisted", persisted)
	return res
}

// Sync adds the items of src that the catalog does not know yet and
// returns how many were added. Known IDs keep their current definition.
func (c *Catalog) Sync(ctx context.Context, src Source) (int, error) {
	records, err := src.LoadItems(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog items: %w", err)
	}
	items, err := prepareBatch(records)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, it := range items {
		if c.knownLocked(it.ID) {
			continue
		}
		c.insertLocked(it)
		added++
	}
	if added > 0 {
		slog.Info("catalog synced", "added", added, "total", len(c.items))
	}
	return added, nil
}

// prepareBatch converts, normalises and validates records, rejecting IDs
// repeated within the batch.
func prepareBatch(records []Record) ([]Item, error) {
	items := make([]Item, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		it, err := r.Item()
		if err != nil {
			return nil, err
		}
		it = normalizeItem(it)
		if err := it.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: %s repeated in batch", ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = struct{}{}
		items = append(items, it)
	}
	return items, nil
}
