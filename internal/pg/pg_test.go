package pg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "duplicate_object code",
			err:  &pgconn.PgError{Code: "42710", Message: "constraint already defined"},
			want: true,
		},
		{
			name: "duplicate_table code",
			err:  &pgconn.PgError{Code: "42P07", Message: "relation exists"},
			want: true,
		},
		{
			name: "wrapped pg error",
			err:  fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42701"}),
			want: true,
		},
		{
			name: "message fallback",
			err:  errors.New(`ERROR: index "idx_siswa_kelas" already exists`),
			want: true,
		},
		{
			name: "syntax error",
			err:  &pgconn.PgError{Code: "42601", Message: "syntax error at or near"},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("connection refused"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicate(tt.err))
		})
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "CREATE TABLE public.guru (", firstLine("CREATE TABLE public.guru (\n    id uuid\n);"))
	assert.Equal(t, "DROP TABLE x;", firstLine("DROP TABLE x;"))
}
