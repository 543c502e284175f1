package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-mastery/internal/platform/config"
)

const conceptYAML = `concept:
  id: fractions
  label: Fractions
items:
  - id: frac-1
    difficulty: 0.2
  - id: frac-2
    difficulty: 0.5
    kind: mcq
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var out, errOut bytes.Buffer
	root := newRootCmd(cfg)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(t.Context())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "fractions.yaml", conceptYAML)
	jsonPath := writeFile(t, dir, "batch.json", `{"items":[
		{"item_id":"dec-1","concept_id":"decimals","difficulty":0.3},
		{"item_id":"dec-2","concept_id":"decimals","difficulty":0.6,"kind":"true_false"}
	]}`)
	dupPath := writeFile(t, dir, "dup.json", `{"items":[
		{"item_id":"x","concept_id":"c","difficulty":0.3},
		{"item_id":"x","concept_id":"c","difficulty":0.6}
	]}`)
	txtPath := writeFile(t, dir, "notes.txt", "hello")

	tests := []struct {
		name    string
		path    string
		wantErr bool
		wantOut []string
	}{
		{"yaml file", yamlPath, false, []string{"items: 2", "fractions (Fractions): 2"}},
		{"json batch", jsonPath, false, []string{"items: 2", "decimals (decimals): 2"}},
		{"duplicate ids", dupPath, true, nil},
		{"unsupported extension", txtPath, true, nil},
		{"missing file", filepath.Join(dir, "nope.json"), true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, "ingest", tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ingest error = %v, wantErr %v", err, tt.wantErr)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out, want) {
					t.Errorf("output %q missing %q", out, want)
				}
			}
		})
	}
}

func TestRecordAndReplay(t *testing.T) {
	dir := t.TempDir()
	catalogDir := filepath.Join(dir, "catalog")
	if err := os.Mkdir(catalogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, catalogDir, "fractions.yaml", conceptYAML)
	db := filepath.Join(dir, "attempts.db")

	attempts := [][]string{
		{"ana", "frac-1", "1", "2026-03-01T09:00:00Z"},
		{"ana", "frac-2", "0", "2026-03-01T09:01:00Z"},
		{"ben", "frac-1", "1", "2026-03-01T09:02:00Z"},
	}
	for i, a := range attempts {
		out, err := run(t, "record", "--db", db, "--at", a[3], a[0], a[1], a[2])
		if err != nil {
			t.Fatalf("record %v error = %v", a, err)
		}
		if want := "recorded attempt " + string(rune('1'+i)); !strings.HasPrefix(out, want) {
			t.Errorf("record output = %q, want prefix %q", out, want)
		}
	}

	out, err := run(t, "replay", "--sqlite", db, "--catalog", catalogDir, "--json")
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	var reports []learnerReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("decode replay output: %v\n%s", err, out)
	}
	if len(reports) != 2 || reports[0].LearnerID != "ana" || reports[1].LearnerID != "ben" {
		t.Fatalf("reports = %+v, want ana and ben", reports)
	}
	ana := reports[0]
	if ana.Folded != 2 || ana.LastSeq != 2 || ana.Digest == "" {
		t.Errorf("ana = folded %d, last seq %d, digest %q; want 2, 2, non-empty", ana.Folded, ana.LastSeq, ana.Digest)
	}
	if len(ana.Mastery) != 1 || ana.Mastery[0].ConceptID != "fractions" || ana.Mastery[0].Attempts != 2 {
		t.Errorf("ana mastery = %+v, want two attempts on fractions", ana.Mastery)
	}
	if len(ana.Schedules) != 2 {
		t.Errorf("ana schedules = %d, want 2", len(ana.Schedules))
	}

	out, err = run(t, "replay", "--sqlite", db, "--catalog", catalogDir, "--learner", "ben")
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if !strings.Contains(out, "learner ben") || strings.Contains(out, "learner ana") {
		t.Errorf("filtered output = %q, want only ben", out)
	}
}

func TestRecord_InvalidInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "attempts.db")

	tests := []struct {
		name string
		args []string
	}{
		{"score not a number", []string{"record", "--db", db, "ana", "frac-1", "high"}},
		{"score out of range", []string{"record", "--db", db, "ana", "frac-1", "1.5"}},
		{"bad timestamp", []string{"record", "--db", db, "--at", "yesterday", "ana", "frac-1", "1"}},
		{"missing args", []string{"record", "--db", db, "ana"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Fatal("record should fail")
			}
		})
	}
}

func TestReplay_RequiresOneSource(t *testing.T) {
	tests := [][]string{
		{"replay"},
		{"replay", "--sqlite", "a.db", "--postgres", "postgres://localhost/x"},
	}
	for _, args := range tests {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}
