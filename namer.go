package dbgen

import (
	"regexp"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
)

// Direction is what a standalone migration does to its table's columns.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionAdd
	DirectionRemove
)

func (d Direction) String() string {
	switch d {
	case DirectionAdd:
		return "add"
	case DirectionRemove:
		return "remove"
	default:
		return "none"
	}
}

// MigrationName is what a migration's name says about it.
type MigrationName struct {
	Direction Direction
	Table     string
}

var namePattern = regexp.MustCompile(`(Add|Remove)(?:.*?)(?:To|From)(.*?)$`)

// ParseMigrationName reads the direction and table out of names such as
// AddEmailToUsers or remove_age_from_people. Names that do not follow the
// convention return DirectionNone along with ErrAmbiguousMigrationName.
func ParseMigrationName(name string) (MigrationName, error) {
	m := namePattern.FindStringSubmatch(strcase.ToCamel(name))
	if m == nil || m[2] == "" {
		return MigrationName{Direction: DirectionNone}, ErrAmbiguousMigrationName
	}
	dir := DirectionAdd
	if m[1] == "Remove" {
		dir = DirectionRemove
	}
	return MigrationName{Direction: dir, Table: TableName(m[2])}, nil
}

// TableName turns a model or table name into its plural, underscored form.
func TableName(name string) string {
	return inflection.Plural(strings.ToLower(strcase.ToSnake(name)))
}

// Underscore converts CamelCase to snake_case.
func Underscore(s string) string {
	return strcase.ToSnake(s)
}

// Camelize converts snake_case to CamelCase.
func Camelize(s string) string {
	return strcase.ToCamel(s)
}
