package dbgen

import (
	"fmt"
	"strings"
)

// Component is the set of templates for one flavour of migration file.
type Component struct {
	Name string
	Ext  string

	// MigrationBase is the whole file, holding !UP! and !DOWN! lines.
	MigrationBase string

	// ModelUp and ModelDown are the bodies of a model migration.
	ModelUp   string
	ModelDown string

	// ColumnFormat renders one column declaration of a model migration;
	// FieldSeparator joins them.
	ColumnFormat   func(c ColumnSpec) string
	FieldSeparator string

	// ChangeFormat wraps the statements of a standalone migration. Add and
	// Remove render one statement each; ColumnSeparator joins them.
	ChangeFormat    string
	Add             func(table string, c ColumnSpec) string
	Remove          func(table string, c ColumnSpec) string
	ColumnSeparator string
}

// Runnable reports whether the migrator can execute files of this component.
func (c Component) Runnable() bool {
	return c.Ext == ".sql"
}

// SQL writes plain SQL migrations with -- migrate:up / -- migrate:down
// sections, the format the migrator runs.
var SQL = Component{
	Name: "sql",
	Ext:  ".sql",
	MigrationBase: `-- !FILECLASS! (version !VERSION!)
` + UpSection + `
    !UP!
` + DownSection + `
    !DOWN!
`,
	ModelUp: `CREATE TABLE !TABLE! (
  id INTEGER PRIMARY KEY,
  !FIELDS!
  created_at TIMESTAMP,
  updated_at TIMESTAMP
);
`,
	ModelDown: "DROP TABLE !TABLE!;\n",
	ColumnFormat: func(c ColumnSpec) string {
		return fmt.Sprintf("%s %s,", c.Name, SQLType(c.Type))
	},
	FieldSeparator: "\n  ",
	ChangeFormat:   "!COLUMNS!\n",
	Add: func(table string, c ColumnSpec) string {
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, c.Name, SQLType(c.Type))
	},
	Remove: func(table string, c ColumnSpec) string {
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, c.Name)
	},
	ColumnSeparator: "\n",
}

// ActiveRecord writes Ruby migrations for ActiveRecord applications.
var ActiveRecord = Component{
	Name: "activerecord",
	Ext:  ".rb",
	MigrationBase: `class !FILECLASS! < ActiveRecord::Migration
  def self.up
    !UP!
  end

  def self.down
    !DOWN!
  end
end
`,
	ModelUp: `    create_table :!TABLE! do |t|
      # t.column <name>, <type>
      # t.column :age, :integer
      !FIELDS!
    end
`,
	ModelDown: "    drop_table :!TABLE!\n",
	ColumnFormat: func(c ColumnSpec) string {
		return fmt.Sprintf("t.column :%s, :%s", c.Name, strings.ToLower(c.Type))
	},
	FieldSeparator: "\n      ",
	ChangeFormat: `    change_table :!TABLE! do |t|
      !COLUMNS!
    end
`,
	Add: func(table string, c ColumnSpec) string {
		return fmt.Sprintf("t.column :%s, :%s", c.Name, strings.ToLower(c.Type))
	},
	Remove: func(table string, c ColumnSpec) string {
		return fmt.Sprintf("t.remove :%s", c.Name)
	},
	ColumnSeparator: "\n      ",
}

// Components lists the built-in components by name.
var Components = map[string]Component{
	SQL.Name:          SQL,
	ActiveRecord.Name: ActiveRecord,
}

// sqlTypes maps field types from the command line to portable SQL types.
var sqlTypes = map[string]string{
	"string":   "VARCHAR(255)",
	"text":     "TEXT",
	"integer":  "INTEGER",
	"bigint":   "BIGINT",
	"float":    "REAL",
	"decimal":  "DECIMAL",
	"boolean":  "BOOLEAN",
	"date":     "DATE",
	"time":     "TIME",
	"datetime": "TIMESTAMP",
	"binary":   "BLOB",
}

// SQLType maps a field type to a SQL column type. Unknown types are passed
// through untouched so dialect-specific types keep working.
func SQLType(kind string) string {
	if t, ok := sqlTypes[strings.ToLower(kind)]; ok {
		return t
	}
	return kind
}
