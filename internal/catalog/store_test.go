package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
	"github.com/p-n-ai/pai-mastery/internal/platform/database/databasetest"
)

type failingSaver struct{ err error }

func (s failingSaver) SaveItems(context.Context, []catalog.Item) error { return s.err }

// gatedSaver stores the batch, then blocks SaveItems until release is closed.
type gatedSaver struct {
	entered chan struct{}
	release chan struct{}
	store   *catalog.MemoryStore
}

func (s *gatedSaver) SaveItems(ctx context.Context, items []catalog.Item) error {
	if err := s.store.SaveItems(ctx, items); err != nil {
		return err
	}
	close(s.entered)
	<-s.release
	return nil
}

var batch = []catalog.Record{
	{ItemID: "n1", ConceptID: "algebra", IntrinsicDifficulty: 0.3, Kind: "mcq"},
	{ItemID: " n2 ", ConceptID: "probability", IntrinsicDifficulty: 0.6, PayloadRef: "s3://items/n2"},
}

func TestIngestAndSave_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()

	before := catalog.New()
	if _, err := before.IngestAndSave(ctx, batch, store); err != nil {
		t.Fatalf("IngestAndSave() error = %v", err)
	}

	after := catalog.New()
	added, err := after.Sync(ctx, store)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if added != 2 {
		t.Errorf("Sync() added = %d, want 2", added)
	}
	for _, id := range []string{"n1", "n2"} {
		want, _ := before.Get(id)
		got, err := after.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) after restart error = %v", id, err)
		}
		if got != want {
			t.Errorf("Get(%s) = %+v, want %+v", id, got, want)
		}
	}

	if added, err := after.Sync(ctx, store); err != nil || added != 0 {
		t.Errorf("second Sync() = %d, %v, want 0, nil", added, err)
	}
}

func TestIngestAndSave_SaveFailureLeavesCatalogUnchanged(t *testing.T) {
	ctx := context.Background()
	c := catalog.New()

	_, err := c.IngestAndSave(ctx, batch, failingSaver{err: errors.New("db down")})
	if err == nil {
		t.Fatal("IngestAndSave() error = nil, want save error")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed save, want 0", c.Len())
	}
	if _, err := c.IngestAndSave(ctx, batch, catalog.NewMemoryStore()); err != nil {
		t.Errorf("retry IngestAndSave() error = %v, want IDs released", err)
	}
}

func TestIngestAndSave_ReservesIDsWhileSaving(t *testing.T) {
	ctx := context.Background()
	c := catalog.New()
	saver := &gatedSaver{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		store:   catalog.NewMemoryStore(),
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.IngestAndSave(ctx, batch, saver)
		done <- err
	}()
	<-saver.entered

	if err := c.Register(catalog.Item{ID: "n1", ConceptID: "algebra", Difficulty: 0.9}); !errors.Is(err, catalog.ErrDuplicateItem) {
		t.Errorf("Register() during save error = %v, want ErrDuplicateItem", err)
	}
	if _, err := c.Get("n1"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Get() during save error = %v, want ErrNotFound", err)
	}
	// A sync racing the save must not insert the reserved items itself.
	if added, err := c.Sync(ctx, saver.store); err != nil || added != 0 {
		t.Errorf("Sync() during save = %d, %v, want 0, nil", added, err)
	}

	close(saver.release)
	if err := <-done; err != nil {
		t.Fatalf("IngestAndSave() error = %v", err)
	}
	if it, err := c.Get("n1"); err != nil || it.Difficulty != 0.3 {
		t.Errorf("Get(n1) = %+v, %v, want the ingested item", it, err)
	}
}

func TestSync_KeepsKnownItems(t *testing.T) {
	ctx := context.Background()
	c := catalog.New()
	if err := c.Register(catalog.Item{ID: "n1", ConceptID: "algebra", Difficulty: 0.2}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	store := catalog.NewMemoryStore()
	other := catalog.New()
	if _, err := other.IngestAndSave(ctx, batch, store); err != nil {
		t.Fatalf("IngestAndSave() error = %v", err)
	}

	added, err := c.Sync(ctx, store)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if added != 1 {
		t.Errorf("Sync() added = %d, want 1", added)
	}
	if it, _ := c.Get("n1"); it.Difficulty != 0.2 {
		t.Errorf("n1 difficulty = %v, want the local 0.2", it.Difficulty)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := catalog.NewPostgresStore(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	db := databasetest.Start(t)
	ctx := t.Context()

	store, err := catalog.NewPostgresStore(ctx, db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	first := catalog.New()
	if _, err := first.IngestAndSave(ctx, batch, store); err != nil {
		t.Fatalf("IngestAndSave() error = %v", err)
	}

	// Another instance racing on the same ID loses at the primary key.
	second := catalog.New()
	_, err = second.IngestAndSave(ctx, []catalog.Record{{ItemID: "n1", ConceptID: "algebra", IntrinsicDifficulty: 0.5}}, store)
	if !errors.Is(err, catalog.ErrDuplicateItem) {
		t.Fatalf("IngestAndSave() of a stored ID error = %v, want ErrDuplicateItem", err)
	}
	if second.Len() != 0 {
		t.Errorf("Len() = %d after rejected batch, want 0", second.Len())
	}

	if _, err := second.Sync(ctx, store); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	n2, err := second.Get("n2")
	if err != nil {
		t.Fatalf("Get(n2) error = %v", err)
	}
	want := catalog.Item{ID: "n2", ConceptID: "probability", Difficulty: 0.6, Kind: catalog.KindOpen, PayloadRef: "s3://items/n2"}
	if n2 != want {
		t.Errorf("Get(n2) = %+v, want %+v", n2, want)
	}
}
