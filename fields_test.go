package dbgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFields(t *testing.T) {
	specs, err := ParseFields([]string{"title:string", "published_at:datetime"})
	require.NoError(t, err)
	assert.Equal(t, []ColumnSpec{
		{Name: "title", Type: "string"},
		{Name: "published_at", Type: TypeDateTime},
	}, specs)
}

func TestParseFieldsDateTimeAnyCase(t *testing.T) {
	for _, kind := range []string{"datetime", "DATETIME", "DateTime", "smalldatetime"} {
		specs, err := ParseFields([]string{"at:" + kind})
		require.NoError(t, err, kind)
		assert.Equal(t, TypeDateTime, specs[0].Type, kind)
	}
}

func TestParseFieldsSplitsOnFirstColon(t *testing.T) {
	specs, err := ParseFields([]string{"price:decimal:10"})
	require.NoError(t, err)
	assert.Equal(t, ColumnSpec{Name: "price", Type: "decimal:10"}, specs[0])
}

func TestParseFieldsInvalid(t *testing.T) {
	for _, tok := range []string{"name", ":string", "name:", "  :  "} {
		_, err := ParseFields([]string{"ok:string", tok})
		assert.ErrorIs(t, err, ErrInvalidFieldSpec, tok)
	}
}

func TestParseFieldsEmpty(t *testing.T) {
	specs, err := ParseFields(nil)
	require.NoError(t, err)
	assert.Empty(t, specs)
}
