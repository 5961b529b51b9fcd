package ddl

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakelola/skema/internal/schema"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func schoolEntities() []*schema.Entity {
	return []*schema.Entity{
		{
			Path:          "struktur_data/kelas.yml",
			TechnicalName: "kelas",
			Comment:       "Rombongan belajar",
			Fields: []schema.Field{
				{TechnicalName: "id", Type: "uuid", PK: true, Generated: "uuid_v4"},
				{TechnicalName: "nama", Type: "varchar", Length: 50, NotNull: true, Unique: true},
			},
		},
		{
			Path:          "struktur_data/siswa.yml",
			TechnicalName: "siswa",
			Comment:       "Data pokok siswa",
			Fields: []schema.Field{
				{TechnicalName: "id", Type: "uuid", PK: true, Generated: "uuid_v4"},
				{TechnicalName: "nama_lengkap", Type: "varchar", NotNull: true, Comment: "Nama lengkap siswa"},
				{TechnicalName: "aktif", Type: "boolean", Default: true},
				{TechnicalName: "kelas_id", Type: "uuid", FK: &schema.ForeignKey{
					RefTable: "kelas", RefField: "id", OnDelete: "cascade",
				}},
			},
			Constraints: []schema.Constraint{
				{Name: "chk_nama", Expression: "CHECK (char_length(nama_lengkap) > 0)"},
			},
			Indexes: []schema.Index{
				{Name: "idx_siswa_kelas", Columns: []string{"kelas_id"}},
			},
		},
	}
}

func TestScriptSchoolCorpus(t *testing.T) {
	script, errs := Script(schoolEntities(), Options{
		WithDrop:   true,
		Owner:      "skema_app",
		Extensions: []string{"uuid-ossp"},
	})
	require.Empty(t, errs)

	newGoldie(t).Assert(t, "school", []byte(script))
}

func TestScriptSchemaOverrideAndIndexes(t *testing.T) {
	entities := []*schema.Entity{
		{
			Path:          "struktur_data/inventaris.yml",
			TechnicalName: "inventaris",
			Schema:        "aset",
			Fields: []schema.Field{
				{TechnicalName: "id", Type: "integer", PK: true},
				{TechnicalName: "kode", Type: "char", Length: 8},
				{TechnicalName: "jumlah", Type: "integer", Default: 1},
				{TechnicalName: "keterangan", Type: "text"},
			},
			Indexes: []schema.Index{
				{Name: "idx_inventaris_kode", Columns: []string{"kode"}, Unique: true, Method: "btree", Where: "jumlah > 0"},
			},
		},
	}

	script, errs := Script(entities, Options{})
	require.Empty(t, errs)

	newGoldie(t).Assert(t, "inventaris", []byte(script))
}

func TestStatementsUUIDDefaultWithoutExtension(t *testing.T) {
	e := &schema.Entity{
		TechnicalName: "guru",
		Fields: []schema.Field{
			{TechnicalName: "id", Type: "uuid", PK: true, Generated: "uuid_v4"},
		},
	}

	stmts, err := Statements(e, Options{})
	require.NoError(t, err)
	require.NotEmpty(t, stmts)
	assert.Contains(t, stmts[0], "DEFAULT gen_random_uuid()")
}

func TestStatementsVarcharDefaultLength(t *testing.T) {
	e := &schema.Entity{
		TechnicalName: "guru",
		Fields: []schema.Field{
			{TechnicalName: "id", Type: "integer", PK: true},
			{TechnicalName: "nip", Type: "varchar"},
		},
	}

	stmts, err := Statements(e, Options{DefaultVarcharLen: 64})
	require.NoError(t, err)
	assert.Contains(t, stmts[0], "nip varchar(64)")

	stmts, err = Statements(e, Options{})
	require.NoError(t, err)
	assert.Contains(t, stmts[0], "nip varchar(255)")
}

func TestStatementsErrors(t *testing.T) {
	tests := []struct {
		name   string
		entity *schema.Entity
		want   string
	}{
		{
			name:   "empty fields",
			entity: &schema.Entity{TechnicalName: "kosong"},
			want:   "fields list is required",
		},
		{
			name: "serial forbidden",
			entity: &schema.Entity{
				TechnicalName: "guru",
				Fields:        []schema.Field{{TechnicalName: "id", Type: "serial", PK: true}},
			},
			want: "serial is forbidden",
		},
		{
			name: "unknown type",
			entity: &schema.Entity{
				TechnicalName: "guru",
				Fields:        []schema.Field{{TechnicalName: "id", Type: "blob", PK: true}},
			},
			want: "unknown type",
		},
		{
			name: "two primary keys",
			entity: &schema.Entity{
				TechnicalName: "guru",
				Fields: []schema.Field{
					{TechnicalName: "id", Type: "uuid", PK: true},
					{TechnicalName: "nip", Type: "text", PK: true},
				},
			},
			want: "more than one pk column",
		},
		{
			name: "fk without ref_table",
			entity: &schema.Entity{
				TechnicalName: "siswa",
				Fields: []schema.Field{
					{TechnicalName: "id", Type: "uuid", PK: true},
					{TechnicalName: "kelas_id", Type: "uuid", FK: &schema.ForeignKey{}},
				},
			},
			want: "fk.ref_table is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Statements(tt.entity, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScriptSkipsFailingEntities(t *testing.T) {
	entities := []*schema.Entity{
		{
			Path:          "a.yml",
			TechnicalName: "rusak",
			Fields:        []schema.Field{{TechnicalName: "id", Type: "serial", PK: true}},
		},
		{
			Path:          "b.yml",
			TechnicalName: "utuh",
			Fields:        []schema.Field{{TechnicalName: "id", Type: "integer", PK: true}},
		},
	}

	script, errs := Script(entities, Options{})
	require.Len(t, errs, 1)

	var entityErr *EntityError
	require.ErrorAs(t, errs[0], &entityErr)
	assert.Equal(t, "rusak", entityErr.Entity)

	assert.Contains(t, script, "CREATE TABLE public.utuh")
	assert.NotContains(t, script, "rusak")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "siswa", QuoteIdent("siswa"))
	assert.Equal(t, "_internal", QuoteIdent("_internal"))
	assert.Equal(t, `"uuid-ossp"`, QuoteIdent("uuid-ossp"))
	assert.Equal(t, `"order"""`, QuoteIdent(`order"`))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "NULL", QuoteLiteral(nil))
	assert.Equal(t, "TRUE", QuoteLiteral(true))
	assert.Equal(t, "FALSE", QuoteLiteral(false))
	assert.Equal(t, "42", QuoteLiteral(42))
	assert.Equal(t, "'aktif'", QuoteLiteral("aktif"))
	assert.Equal(t, "'it''s'", QuoteLiteral("it's"))
}
