package dbgen

import (
	"fmt"
	"os"
	"path/filepath"
)

// MigrationFile is a migration the generator wrote. It is never edited
// afterwards; later changes go in new files.
type MigrationFile struct {
	Version  int
	Basename string
	Path     string
	Up       string
	Down     string
	Content  string
}

// Writer numbers and persists new migration files.
type Writer struct {
	Dir Dir

	// Source supplies existing versions. Defaults to Dir itself.
	Source VersionSource

	// Perm is the mode of new files. Defaults to 0644.
	Perm os.FileMode
}

// NewWriter returns a Writer that numbers files from the contents of dir.
func NewWriter(dir Dir) *Writer {
	return &Writer{Dir: dir, Source: dir, Perm: 0644}
}

// Filename builds <%03d>_<underscored basename><ext>.
func (w *Writer) Filename(version int, basename string) string {
	return fmt.Sprintf("%s_%s%s", FormatVersion(version), Underscore(basename), w.Dir.Ext)
}

// Write picks the next version, renders the content for it and creates the
// file. An existing file is never overwritten, and a failed write leaves no
// file behind.
func (w *Writer) Write(basename string, render func(version int) string) (MigrationFile, error) {
	src := w.Source
	if src == nil {
		src = w.Dir
	}
	version, err := NextVersion(src)
	if err != nil {
		return MigrationFile{}, err
	}
	content := render(version)

	if err := os.MkdirAll(w.Dir.Path, 0755); err != nil {
		return MigrationFile{}, &FileSystemError{Op: "create directory", Path: w.Dir.Path, Err: err}
	}
	path := filepath.Join(w.Dir.Path, w.Filename(version, basename))
	perm := w.Perm
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return MigrationFile{}, &FileSystemError{Op: "create", Path: path, Err: err}
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return MigrationFile{}, &FileSystemError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return MigrationFile{}, &FileSystemError{Op: "write", Path: path, Err: err}
	}
	return MigrationFile{
		Version:  version,
		Basename: basename,
		Path:     path,
		Content:  content,
	}, nil
}
