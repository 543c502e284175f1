package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// conceptFile is the on-disk layout of one concept and its items.
type conceptFile struct {
	Concept Concept  `yaml:"concept"`
	Items   []Record `yaml:"items"`
}

// LoadDir walks rootDir and registers every concept YAML file it finds.
// Files without a concept ID are skipped, as are unparsable files.
func LoadDir(c *Catalog, rootDir string) (IngestResult, error) {
	var total IngestResult
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		res, err := loadConceptFile(c, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		total.Items += res.Items
		total.NewConcepts += res.NewConcepts
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "dir", rootDir, "items", total.Items, "concepts", len(c.Concepts()))
	return total, nil
}

func loadConceptFile(c *Catalog, path string) (IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IngestResult{}, err
	}

	var f conceptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return IngestResult{}, nil
	}
	if f.Concept.ID == "" {
		return IngestResult{}, nil // Not a concept file
	}

	if err := c.RegisterConcept(f.Concept); err != nil {
		return IngestResult{}, err
	}
	for i := range f.Items {
		if f.Items[i].ConceptID == "" {
			f.Items[i].ConceptID = f.Concept.ID
		}
	}
	return c.Ingest(f.Items)
}
