package adapter

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DumpSchema writes the database structure to path, followed by the ledger
// contents when l is not nil.
func DumpSchema(ctx context.Context, a Adapter, l *Ledger, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if err := a.DumpStructure(ctx, w); err != nil {
		return fmt.Errorf("dump %s structure: %w", a.Name(), err)
	}
	if l != nil {
		info, err := l.SchemaInformation(ctx)
		if err != nil {
			return err
		}
		if _, err := w.WriteString(info); err != nil {
			return err
		}
	}
	return w.Flush()
}

// LoadSchema executes the schema file at path against db.
func LoadSchema(ctx context.Context, db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s doesn't exist yet. Run \"dbgen migrate\" to create it then try again", path)
	}
	if err != nil {
		return err
	}
	script := stripMetaCommands(string(data))
	if strings.TrimSpace(script) == "" {
		return nil
	}
	if _, err := db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// stripMetaCommands drops psql backslash commands such as \restrict, which
// pg_dump writes but only psql understands.
func stripMetaCommands(script string) string {
	lines := strings.SplitAfter(script, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), `\`) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "")
}
