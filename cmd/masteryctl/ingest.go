package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/pai-mastery/internal/catalog"
)

func newIngestCmd() *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "ingest <file|dir>",
		Short: "Validate a catalog file and summarise its contents",
		Long: `Validate a catalog source: a directory or .yaml file of concept files,
an .xlsx spreadsheet, or a JSON ingestion batch. The batch is applied to an
empty catalog, so duplicate IDs and invalid records are reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := catalog.New()
			res, err := ingestPath(c, args[0], sheet)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "items: %d\n", res.Items)
			fmt.Fprintf(out, "concepts: %d\n", len(c.Concepts()))
			for _, cn := range c.Concepts() {
				n := 0
				for range c.ByConcept(cn.ID) {
					n++
				}
				fmt.Fprintf(out, "  %s (%s): %d\n", cn.ID, cn.Label, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "spreadsheet sheet name (default first sheet)")
	return cmd
}

// ingestPath loads path into c according to its type.
func ingestPath(c *catalog.Catalog, path, sheet string) (catalog.IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return catalog.IngestResult{}, err
	}
	if info.IsDir() {
		return catalog.LoadDir(c, path)
	}

	var records []catalog.Record
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return catalog.LoadDir(c, path)
	case ".xlsx":
		records, err = catalog.ImportSpreadsheet(path, sheet)
	case ".json":
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			records, err = catalog.DecodeBatch(data)
		}
	default:
		return catalog.IngestResult{}, fmt.Errorf("unsupported catalog file %q", ext)
	}
	if err != nil {
		return catalog.IngestResult{}, err
	}
	return c.Ingest(records)
}
