package dbgen

import (
	"regexp"
	"strings"
)

// Marker is a sentinel placeholder in a migration template.
type Marker string

const (
	MarkerUp        Marker = "!UP!"
	MarkerDown      Marker = "!DOWN!"
	MarkerName      Marker = "!NAME!"
	MarkerTable     Marker = "!TABLE!"
	MarkerFilename  Marker = "!FILENAME!"
	MarkerFileClass Marker = "!FILECLASS!"
	MarkerFields    Marker = "!FIELDS!"
	MarkerColumns   Marker = "!COLUMNS!"
	MarkerVersion   Marker = "!VERSION!"
)

// Values maps markers to their replacement text.
type Values map[Marker]string

// renderOrder is the order markers are substituted in. Fragments put in for
// the block markers may contain any marker that comes after them.
var renderOrder = []Marker{
	MarkerUp,
	MarkerDown,
	MarkerName,
	MarkerTable,
	MarkerFilename,
	MarkerFileClass,
	MarkerFields,
	MarkerColumns,
	MarkerVersion,
}

// blockLines matches a block marker alone on its line, indentation and line
// ending included.
var blockLines = map[Marker]*regexp.Regexp{
	MarkerUp:   regexp.MustCompile(`(?m)^[ \t]*!UP![ \t]*(?:\r?\n|$)`),
	MarkerDown: regexp.MustCompile(`(?m)^[ \t]*!DOWN![ \t]*(?:\r?\n|$)`),
}

// Render substitutes vals into tmpl. A block marker (!UP!, !DOWN!) that sits
// on its own line has the whole line replaced by its fragment, which always
// ends on a line of its own; every other
// occurrence of a marker is replaced in place. Markers missing from vals are
// left as they are.
func Render(tmpl string, vals Values) string {
	out := tmpl
	for _, m := range renderOrder {
		v, ok := vals[m]
		if !ok {
			continue
		}
		if re, block := blockLines[m]; block {
			out = re.ReplaceAllStringFunc(out, func(line string) string {
				return blockFragment(line, v)
			})
		}
		out = strings.ReplaceAll(out, string(m), v)
	}
	return out
}

// blockFragment is what replaces a matched block line. A fragment that does
// not end its last line gets the line ending the marker line had.
func blockFragment(line, fragment string) string {
	if fragment == "" || strings.HasSuffix(fragment, "\n") {
		return fragment
	}
	if strings.HasSuffix(line, "\r\n") {
		return fragment + "\r\n"
	}
	if strings.HasSuffix(line, "\n") {
		return fragment + "\n"
	}
	return fragment
}

// JoinFragments formats each column and joins the results with sep.
func JoinFragments(specs []ColumnSpec, format func(ColumnSpec) string, sep string) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, format(s))
	}
	return strings.Join(parts, sep)
}
