package uabean

import (
	"bytes"
	"os"
	"path/filepath"
)

// Importer converts one provider's statement files into ledger directives.
// Implementations are stateless between files; any prior ledger state they
// need (cost-basis lots, opened accounts) is passed to Extract explicitly.
type Importer interface {
	// Name identifies the importer, used to route files and name output.
	Name() string
	// Identify reports whether the file looks like this provider's export.
	Identify(f *File) bool
	// Account returns the archive account the file should be filed under.
	Account(f *File) string
	// Date returns the latest operation date found in the file.
	Date(f *File) (Date, error)
	// Extract converts the file into directives. The existing entries are
	// read-only context: used to seed cost-basis state and to detect
	// accounts that are already open, never re-emitted.
	Extract(f *File, existing []Directive) ([]Directive, error)
}

// File wraps a statement file with cached contents, so that several
// importers can sniff the same file during identification without rereading
// it.
type File struct {
	Path string

	contents []byte
	err      error
	loaded   bool
}

// NewFile returns a lazily loaded File for path.
func NewFile(path string) *File { return &File{Path: path} }

// NewFileFromBytes returns a File backed by in-memory contents, used by
// tests and by downloaders that pipe straight into an importer.
func NewFileFromBytes(path string, contents []byte) *File {
	return &File{Path: path, contents: contents, loaded: true}
}

// Name returns the base name of the file.
func (f *File) Name() string { return filepath.Base(f.Path) }

// Contents returns the whole file, reading it at most once.
func (f *File) Contents() ([]byte, error) {
	if !f.loaded {
		f.contents, f.err = os.ReadFile(f.Path)
		f.loaded = true
	}
	return f.contents, f.err
}

// Head returns up to n leading bytes of the file, for cheap content sniffing.
func (f *File) Head(n int) []byte {
	data, err := f.Contents()
	if err != nil {
		return nil
	}
	if len(data) > n {
		return data[:n]
	}
	return data
}

// HeadContains reports whether the leading bytes of the file contain the
// marker, the usual way statement exports are identified.
func (f *File) HeadContains(marker string) bool {
	return bytes.Contains(f.Head(4096), []byte(marker))
}

// Identify returns the importers claiming the file.
func Identify(importers []Importer, f *File) []Importer {
	var claimed []Importer
	for _, imp := range importers {
		if imp.Identify(f) {
			claimed = append(claimed, imp)
		}
	}
	return claimed
}
