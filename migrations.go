package dbgen

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Section headers inside a SQL migration file.
const (
	UpSection   = "-- migrate:up"
	DownSection = "-- migrate:down"
)

// Migration represents a single migration file on disk.
type Migration struct {
	// Version is the leading number of the filename.
	Version int

	// Name is the rest of the filename, without extension.
	Name string

	// Filename is the path to the migration file.
	Filename string

	// Md5 is the MD5 checksum of the migration file.
	Md5 string
}

// MigrationSource lists the migrations that exist right now, in ascending order.
type MigrationSource interface {
	Migrations() ([]Migration, error)
}

// Up returns the statements of the file's up section.
func (m Migration) Up() (string, error) {
	up, _, err := m.sections()
	return up, err
}

// Down returns the statements of the file's down section.
func (m Migration) Down() (string, error) {
	_, down, err := m.sections()
	return down, err
}

// sections splits the file on its -- migrate:up / -- migrate:down headers.
func (m Migration) sections() (up, down string, err error) {
	data, err := os.ReadFile(m.Filename)
	if err != nil {
		return "", "", &FileSystemError{Op: "read", Path: m.Filename, Err: err}
	}

	var upB, downB strings.Builder
	var cur *strings.Builder
	found := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch strings.TrimSpace(line) {
		case UpSection:
			cur, found = &upB, true
			continue
		case DownSection:
			cur, found = &downB, true
			continue
		}
		if cur != nil {
			cur.WriteString(line)
			cur.WriteByte('\n')
		}
	}
	if !found {
		return "", "", fmt.Errorf("%w: %s has no %q section", ErrNotRunnable, m.Filename, UpSection)
	}
	return strings.TrimSpace(upB.String()), strings.TrimSpace(downB.String()), nil
}

// Migrations reads every <version>_<name><ext> file in the directory with
// the directory's extension, sorted by version. Two files with the same version are an error.
func (d Dir) Migrations() ([]Migration, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}
	var migs []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ext, ok, err := parseFilename(e.Name())
		if err != nil {
			return nil, err
		}
		if !ok || ext != d.Ext {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("%w: version %d found in both %s and %s", ErrDuplicateVersion, version, prev, e.Name())
		}
		seen[version] = e.Name()

		path := filepath.Join(d.Path, e.Name())
		sum, err := fileChecksum(path, d.Newline)
		if err != nil {
			return nil, err
		}
		migs = append(migs, Migration{
			Version:  version,
			Name:     name,
			Filename: path,
			Md5:      sum,
		})
	}
	sortMigrationsAsc(migs)
	return migs, nil
}

// sortMigrationsAsc sorts migrations in ascending order based on version.
func sortMigrationsAsc(migs []Migration) {
	sort.Slice(migs, func(i, j int) bool {
		return migs[i].Version < migs[j].Version
	})
}

// sortMigrationsDesc sorts migrations in descending order based on version.
func sortMigrationsDesc(migs []Migration) {
	sort.Slice(migs, func(i, j int) bool {
		return migs[i].Version > migs[j].Version
	})
}

var anyNewline = regexp.MustCompile(`\r\n|\r|\n`)

// convertLineEnding converts all newline variations in content to the target style.
func convertLineEnding(content, lineEnding string) (string, error) {
	var target string
	switch lineEnding {
	case "LF":
		target = "\n"
	case "CR":
		target = "\r"
	case "CRLF":
		target = "\r\n"
	default:
		return "", fmt.Errorf("newline must be one of: LF, CR, CRLF")
	}
	return anyNewline.ReplaceAllString(content, target), nil
}

// checksum computes the MD5 checksum of the content after converting line endings if set.
func checksum(content, lineEnding string) (string, error) {
	if lineEnding != "" {
		var err error
		content, err = convertLineEnding(content, lineEnding)
		if err != nil {
			return "", err
		}
	}
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:]), nil
}

// fileChecksum reads a file and returns its MD5 checksum.
func fileChecksum(filename, lineEnding string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", &FileSystemError{Op: "read", Path: filename, Err: err}
	}
	return checksum(string(data), lineEnding)
}
