// Package testutil provides shared fixtures: temporary changelog databases
// and docs directories seeded with a small project.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/taskgraph/internal/docs"
	"github.com/starford/taskgraph/internal/history"
)

// ArchitectureJSON declares the data structures used by FunctionsJSON.
const ArchitectureJSON = `{
  "project_name": "notes",
  "created": "2026-01-05",
  "overview": "Markdown notes with tags",
  "technical_stack": {"language": "go", "storage": "sqlite"},
  "project_structure": "cmd/ and internal/",
  "data_structures": [
    {"name": "Note", "description": "a parsed note", "fields": [{"name": "title", "type": "string"}]},
    {"name": "Index", "fields": [{"name": "tags", "type": "map[string][]string"}]}
  ]
}
`

// FunctionsJSON is F1 and F2 with no dependencies and F3 depending on both.
const FunctionsJSON = `{
  "functions": [
    {"id": "F1", "name": "parseNote", "file": "internal/note/parse.go", "signature": "func parseNote(b []byte) (Note, error)",
     "business_logic": "read a note", "code_logic": "split front matter", "test_cases": ["empty input"], "uses": ["Note"]},
    {"id": "F2", "name": "openIndex", "file": "internal/index/open.go", "signature": "func openIndex(path string) (*Index, error)",
     "business_logic": "open the tag index", "code_logic": "sqlite open", "uses": ["Index"]},
    {"id": "F3", "name": "indexNote", "file": "internal/index/note.go", "signature": "func indexNote(ix *Index, n Note) error",
     "business_logic": "add a note to the index", "code_logic": "upsert tags", "dependencies": ["F1", "F2"], "uses": ["Note", "Index"]}
  ]
}
`

// TestDB creates a temporary changelog database that is cleaned up with t.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "taskgraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDocs creates a temporary docs directory holding ArchitectureJSON and
// FunctionsJSON.
func TestDocs(t *testing.T) (string, *docs.FS) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "docs")
	d, err := docs.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	WriteDoc(t, dir, "architecture.json", ArchitectureJSON)
	WriteDoc(t, dir, "functions.json", FunctionsJSON)
	return dir, d
}

// WriteDoc writes content to dir/name.
func WriteDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
