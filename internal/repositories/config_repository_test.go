package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Schema names reach FetchActiveConfig from tenant configuration and are
// interpolated into the query text, so the allow-list must reject anything
// outside [A-Za-z0-9_]+ before the database is touched. A nil db proves the
// guard runs first.
func TestFetchActiveConfigRejectsInvalidSchemaName(t *testing.T) {
	repo := NewConfigRepo(nil)

	cases := []struct {
		name   string
		schema string
	}{
		{"empty", ""},
		{"hyphen", "clinic-a"},
		{"statement injection", "clinic;drop"},
		{"quoted", `clinic"a`},
		{"whitespace", "clinic a"},
		{"dotted", "public.clinic"},
		{"non ascii", "clínic"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.FetchActiveConfig(context.Background(), tc.schema)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchemaName)
		})
	}
}

func TestSchemaNamePatternAcceptsConfiguredNames(t *testing.T) {
	for _, schema := range []string{"clinic_a", "Clinic2", "t_0"} {
		assert.True(t, schemaNamePattern.MatchString(schema), schema)
	}
}
