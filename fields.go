package dbgen

import (
	"fmt"
	"strings"
)

// TypeDateTime is the canonical temporal column type.
const TypeDateTime = "DateTime"

// ColumnSpec is one column requested on the command line as name:type.
type ColumnSpec struct {
	Name string
	Type string
}

// ParseFields turns name:type tokens into column specs, keeping their order.
// Any type containing "datetime", in any letter case, becomes TypeDateTime.
func ParseFields(tokens []string) ([]ColumnSpec, error) {
	specs := make([]ColumnSpec, 0, len(tokens))
	for _, tok := range tokens {
		name, kind, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q is missing a ':' separator", ErrInvalidFieldSpec, tok)
		}
		name = strings.TrimSpace(name)
		kind = strings.TrimSpace(kind)
		if name == "" || kind == "" {
			return nil, fmt.Errorf("%w: %q needs both a name and a type", ErrInvalidFieldSpec, tok)
		}
		specs = append(specs, ColumnSpec{Name: name, Type: normalizeType(kind)})
	}
	return specs, nil
}

func normalizeType(kind string) string {
	if strings.Contains(strings.ToLower(kind), "datetime") {
		return TypeDateTime
	}
	return kind
}
