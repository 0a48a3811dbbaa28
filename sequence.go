package dbgen

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// VersionSource lists the versions of the migrations that exist right now.
type VersionSource interface {
	Versions() ([]int, error)
}

// Dir is a directory of migration files named <version>_<name><ext>.
type Dir struct {
	Path string
	Ext  string

	// Newline, when set, normalizes line endings before checksumming.
	Newline string
}

// migrationFile matches <version>_<name> once the extension is removed.
var migrationFile = regexp.MustCompile(`^(\d+)_(.+)$`)

// parseFilename splits a <version>_<name><ext> file name. ok is false for
// names that do not follow that shape.
func parseFilename(filename string) (version int, name, ext string, ok bool, err error) {
	ext = filepath.Ext(filename)
	if ext == "" {
		return 0, "", "", false, nil
	}
	parts := migrationFile.FindStringSubmatch(strings.TrimSuffix(filename, ext))
	if parts == nil {
		return 0, "", "", false, nil
	}
	version, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", "", false, &FileSystemError{Op: "parse version", Path: filename, Err: err}
	}
	return version, parts[2], ext, true, nil
}

// Versions returns the version of every migration file in the directory,
// whatever its extension, so SQL and ActiveRecord migrations share one
// sequence. A directory that does not exist yet holds no migrations.
func (d Dir) Versions() ([]int, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}
	var versions []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, _, _, ok, err := parseFilename(e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

func (d Dir) entries() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &FileSystemError{Op: "scan", Path: d.Path, Err: err}
	}
	return entries, nil
}

// NextVersion returns one more than the highest version src reports, or 1
// when there are none. It asks src every time; nothing is cached, so two
// generators racing on the same directory can pick the same number.
func NextVersion(src VersionSource) (int, error) {
	versions, err := src.Versions()
	if err != nil {
		return 0, err
	}
	max := 0
	for _, v := range versions {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

// FormatVersion zero-pads a version to three digits.
func FormatVersion(v int) string {
	return fmt.Sprintf("%03d", v)
}
