// Package docs reads and writes the project documents (architecture,
// function definitions and progress) kept in a project's docs directory.
package docs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/taskgraph/internal/checksum"
)

// Kind identifies one of the project documents.
type Kind string

const (
	Architecture Kind = "architecture"
	Functions    Kind = "functions"
	Progress     Kind = "progress"
)

var extensions = []string{".json", ".yaml", ".yml"}

// FS reads and writes project documents under one directory.
type FS struct {
	root string // absolute path to the docs directory
}

// NewFS returns a provider rooted at dir, creating the directory if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("docs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("docs: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("docs: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute docs directory.
func (f *FS) Root() string { return f.root }

// Path returns the file backing kind: the first existing of .json, .yaml and
// .yml, or the .json path when none exists yet.
func (f *FS) Path(kind Kind) string {
	for _, ext := range extensions {
		p := filepath.Join(f.root, string(kind)+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(f.root, string(kind)+".json")
}

// KindOf maps a file name to the document it holds.
func KindOf(name string) (Kind, bool) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if !slices.Contains(extensions, ext) {
		return "", false
	}
	switch k := Kind(strings.TrimSuffix(base, ext)); k {
	case Architecture, Functions, Progress:
		return k, true
	}
	return "", false
}

// Checksum returns the SHA-256 of the document's bytes. A missing document
// yields an empty checksum.
func (f *FS) Checksum(kind Kind) (string, error) {
	sum, err := checksum.File(f.Path(kind))
	if err != nil {
		return "", fmt.Errorf("docs: checksum %s: %w", kind, err)
	}
	return sum, nil
}

// read loads a document and normalizes it to JSON, so the decoders below
// only deal with one encoding. Missing documents report fs.ErrNotExist.
func (f *FS) read(kind Kind) ([]byte, error) {
	p := f.Path(kind)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("docs: read %s: %w", kind, err)
	}
	if filepath.Ext(p) == ".json" {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("docs: parse %s: %w", filepath.Base(p), err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docs: normalize %s: %w", filepath.Base(p), err)
	}
	return out, nil
}

// write encodes v in the format of the document's current file and replaces
// it atomically: temp file, fsync, rename.
func (f *FS) write(kind Kind, v any) error {
	p := f.Path(kind)
	var (
		content []byte
		err     error
	)
	if filepath.Ext(p) == ".json" {
		content, err = json.MarshalIndent(v, "", "  ")
		content = append(content, '\n')
	} else {
		content, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("docs: encode %s: %w", kind, err)
	}

	tmp, err := os.CreateTemp(f.root, ".taskgraph-tmp-*")
	if err != nil {
		return fmt.Errorf("docs: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("docs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("docs: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("docs: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("docs: rename: %w", err)
	}
	success = true
	return nil
}
