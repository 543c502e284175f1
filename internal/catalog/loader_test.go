package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
)

func TestLoadDir_LoadsConcepts(t *testing.T) {
	dir := setupTestCatalog(t)
	c := catalog.New()

	res, err := catalog.LoadDir(c, dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if res.Items != 3 {
		t.Errorf("Items = %d, want 3", res.Items)
	}

	concept, err := c.Concept("F1-01")
	if err != nil {
		t.Fatalf("Concept(F1-01) error = %v", err)
	}
	if concept.Label != "Variables & Algebraic Expressions" {
		t.Errorf("Label = %q", concept.Label)
	}

	item, err := c.Get("F1-01-q2")
	if err != nil {
		t.Fatalf("Get(F1-01-q2) error = %v", err)
	}
	if item.ConceptID != "F1-01" {
		t.Errorf("ConceptID = %q, want inherited F1-01", item.ConceptID)
	}
	if item.Kind != catalog.KindTrueFalse {
		t.Errorf("Kind = %q, want true_false", item.Kind)
	}
}

func TestLoadDir_SkipsNonConceptYAML(t *testing.T) {
	dir := setupTestCatalog(t)

	os.WriteFile(filepath.Join(dir, "algebra", "notes.yaml"), []byte(`
title: teaching notes
sections: [intro, practice]
`), 0o644)
	os.WriteFile(filepath.Join(dir, "algebra", "broken.yaml"), []byte("concept: [unterminated"), 0o644)

	c := catalog.New()
	if _, err := catalog.LoadDir(c, dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLoadDir_DuplicateAcrossFiles(t *testing.T) {
	dir := setupTestCatalog(t)

	os.WriteFile(filepath.Join(dir, "algebra", "02-copy.yaml"), []byte(`
concept:
  id: F1-02
  label: Copy
items:
  - id: F1-01-q1
    difficulty: 0.3
`), 0o644)

	_, err := catalog.LoadDir(catalog.New(), dir)
	if !errors.Is(err, catalog.ErrDuplicateItem) {
		t.Fatalf("LoadDir() error = %v, want ErrDuplicateItem", err)
	}
}

func TestLoadDir_EmptyDir(t *testing.T) {
	c := catalog.New()
	if _, err := catalog.LoadDir(c, t.TempDir()); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for empty dir", c.Len())
	}
}

func setupTestCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	conceptDir := filepath.Join(dir, "algebra")
	os.MkdirAll(conceptDir, 0o755)

	os.WriteFile(filepath.Join(conceptDir, "01-variables.yaml"), []byte(`
concept:
  id: F1-01
  label: "Variables & Algebraic Expressions"
items:
  - id: F1-01-q1
    difficulty: 0.2
    kind: mcq
    payload: slides/f1-01/q1.json
  - id: F1-01-q2
    difficulty: 0.5
    kind: true_false
  - id: F1-01-q3
    difficulty: 0.9
    kind: fill_blank
`), 0o644)

	return dir
}
