package dbgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderReplacesBlockLines(t *testing.T) {
	tmpl := "begin\n    !UP!\nmiddle\n  !DOWN!\nend\n"
	got := Render(tmpl, Values{
		MarkerUp:   "CREATE TABLE t;\n",
		MarkerDown: "DROP TABLE t;\n",
	})
	assert.Equal(t, "begin\nCREATE TABLE t;\nmiddle\nDROP TABLE t;\nend\n", got)
}

func TestRenderBlockWithoutTrailingNewline(t *testing.T) {
	got := Render("a\n    !UP!\n-- migrate:down\n", Values{MarkerUp: "CREATE TABLE x;"})
	assert.Equal(t, "a\nCREATE TABLE x;\n-- migrate:down\n", got)

	got = Render("a\r\n!DOWN!\r\nb", Values{MarkerDown: "DROP TABLE x;"})
	assert.Equal(t, "a\r\nDROP TABLE x;\r\nb", got)

	got = Render("a\n!UP!", Values{MarkerUp: "CREATE TABLE x;"})
	assert.Equal(t, "a\nCREATE TABLE x;", got)
}

// A component whose change format has no line ending still keeps the
// down section header intact.
func TestRenderCustomChangeFormatKeepsSections(t *testing.T) {
	c := SQL
	c.ChangeFormat = "!COLUMNS!"
	content := Render(c.MigrationBase, Values{
		MarkerUp:        c.ChangeFormat,
		MarkerDown:      c.ChangeFormat,
		MarkerColumns:   "ALTER TABLE users ADD COLUMN email VARCHAR(255);",
		MarkerFileClass: "AddEmailToUsers",
		MarkerVersion:   "1",
	})
	assert.Contains(t, content, "ADD COLUMN email VARCHAR(255);\n-- migrate:down\n")
}

func TestRenderInlineAndNested(t *testing.T) {
	tmpl := "-- !FILECLASS! (version !VERSION!)\n!UP!\n"
	got := Render(tmpl, Values{
		MarkerUp:        "CREATE TABLE !TABLE! (!FIELDS!);\n",
		MarkerTable:     "users",
		MarkerFields:    "name TEXT",
		MarkerFileClass: "CreateUsers",
		MarkerVersion:   "7",
	})
	assert.Equal(t, "-- CreateUsers (version 7)\nCREATE TABLE users (name TEXT);\n", got)
}

func TestRenderLeavesUnknownMarkers(t *testing.T) {
	tmpl := "!NAME! !TABLE! !NOT_A_MARKER!"
	assert.Equal(t, "Users !TABLE! !NOT_A_MARKER!", Render(tmpl, Values{MarkerName: "Users"}))
}

// Rendering with every marker mapped to itself gives back the template.
func TestRenderIdentity(t *testing.T) {
	tmpl := SQL.MigrationBase + SQL.ModelUp + ActiveRecord.MigrationBase + ActiveRecord.ChangeFormat
	vals := Values{}
	for _, m := range renderOrder {
		if _, block := blockLines[m]; !block {
			vals[m] = string(m)
		}
	}
	assert.Equal(t, tmpl, Render(tmpl, vals))
}

func TestRenderEmptyFragments(t *testing.T) {
	got := Render(SQL.MigrationBase, Values{MarkerUp: "", MarkerDown: "", MarkerFileClass: "UpdateThings", MarkerVersion: "1"})
	assert.Equal(t, "-- UpdateThings (version 1)\n-- migrate:up\n-- migrate:down\n", got)
}

func TestJoinFragments(t *testing.T) {
	specs := []ColumnSpec{{"a", "string"}, {"b", "integer"}}
	got := JoinFragments(specs, func(c ColumnSpec) string { return c.Name + " " + c.Type }, ", ")
	assert.Equal(t, "a string, b integer", got)
	assert.Empty(t, JoinFragments(nil, func(ColumnSpec) string { return "x" }, ", "))
}
