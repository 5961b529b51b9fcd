package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFileCurrentFormat(t *testing.T) {
	path := writeSchemaFile(t, "siswa.yml", `
spec_version: "1.0"
entity:
  name: Siswa
  technical_name: siswa
  comment: Data pokok siswa
fields:
  - technical_name: id
    type: uuid
    pk: true
    generated: uuid_v4
  - name: Nama Lengkap
    technical_name: nama_lengkap
    type: varchar
    length: 120
    not_null: true
  - technical_name: kelas_id
    type: uuid
    fk:
      ref_table: kelas
      on_delete: cascade
constraints:
  - name: chk_nama
    expression: "char_length(nama_lengkap) > 0"
indexes:
  - name: idx_siswa_kelas
    columns: [kelas_id]
`)

	entities, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entities, 1)

	e := entities[0]
	assert.Equal(t, "siswa", e.TechnicalName)
	assert.Equal(t, "Siswa", e.Name)
	assert.Equal(t, "Data pokok siswa", e.Comment)
	require.Len(t, e.Fields, 3)

	id := e.Fields[0]
	assert.True(t, id.PK)
	assert.Equal(t, "uuid_v4", id.Generated)
	assert.Equal(t, "Id", id.Name) // display name derived from technical name

	nama := e.Fields[1]
	assert.Equal(t, "nama_lengkap", nama.TechnicalName)
	assert.Equal(t, 120, nama.Length)
	assert.True(t, nama.NotNull)

	kelas := e.Fields[2]
	require.NotNil(t, kelas.FK)
	assert.Equal(t, "kelas", kelas.FK.RefTable)
	assert.Equal(t, "id", kelas.FK.RefField) // defaulted
	assert.Equal(t, "cascade", kelas.FK.OnDelete)

	require.Len(t, e.Constraints, 1)
	require.Len(t, e.Indexes, 1)
	assert.Equal(t, []string{"kelas_id"}, e.Indexes[0].Columns)
}

func TestParseFileLegacyColumns(t *testing.T) {
	path := writeSchemaFile(t, "guru.yaml", `
table: guru
description: Data guru
columns:
  - name: id
    type: uuid
    primary_key: true
  - name: nip
    label: NIP
    type: varchar
    nullable: false
    unique: yes
  - name: sekolah_id
    type: uuid
    ref_table: sekolah
`)

	entities, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entities, 1)

	e := entities[0]
	assert.Equal(t, "guru", e.TechnicalName)
	assert.Equal(t, "Data guru", e.Comment)
	require.Len(t, e.Fields, 3)

	assert.True(t, e.Fields[0].PK)
	assert.False(t, e.Fields[0].NotNull) // nullable unset stays nullable

	nip := e.Fields[1]
	assert.Equal(t, "NIP", nip.Name)
	assert.True(t, nip.NotNull) // nullable: false inverts
	assert.True(t, nip.Unique)  // loose "yes"

	require.NotNil(t, e.Fields[2].FK)
	assert.Equal(t, "sekolah", e.Fields[2].FK.RefTable)
	assert.Equal(t, "id", e.Fields[2].FK.RefField)
}

func TestParseFileMultiDocument(t *testing.T) {
	path := writeSchemaFile(t, "jadwal.yml", `
entity:
  technical_name: jadwal
fields:
  - technical_name: id
    type: integer
    pk: true
---
entity:
  technical_name: jadwal_detail
fields:
  - technical_name: id
    type: integer
    pk: true
`)

	entities, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "jadwal", entities[0].TechnicalName)
	assert.Equal(t, "jadwal_detail", entities[1].TechnicalName)
}

func TestParseFileNameDefaultsFromFileStem(t *testing.T) {
	path := writeSchemaFile(t, "wali_kelas.yml", `
fields:
  - technical_name: id
    type: integer
    pk: true
`)

	entities, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "wali_kelas", entities[0].TechnicalName)
	assert.Equal(t, "Wali Kelas", entities[0].Name)
}

func TestParseFileLooseBooleans(t *testing.T) {
	path := writeSchemaFile(t, "karyawan.yml", `
entity:
  technical_name: karyawan
fields:
  - technical_name: id
    type: integer
    pk: "1"
  - technical_name: aktif
    type: boolean
    not_null: "on"
  - technical_name: catatan
    type: text
    unique: 0
`)

	entities, err := ParseFile(path)
	require.NoError(t, err)
	e := entities[0]
	assert.True(t, e.Fields[0].PK)
	assert.True(t, e.Fields[1].NotNull)
	assert.False(t, e.Fields[2].Unique)
}

func TestParseFileFieldWithoutType(t *testing.T) {
	path := writeSchemaFile(t, "bad.yml", `
entity:
  technical_name: bad
fields:
  - technical_name: id
    pk: true
`)

	_, err := ParseFile(path)
	require.Error(t, err)
	var structErr *StructureError
	assert.ErrorAs(t, err, &structErr)
}

func TestParseFileFKWithoutRefTable(t *testing.T) {
	path := writeSchemaFile(t, "bad_fk.yml", `
entity:
  technical_name: bad_fk
fields:
  - technical_name: guru_id
    type: uuid
    fk:
      on_delete: cascade
`)

	_, err := ParseFile(path)
	require.Error(t, err)
}

func TestParseFileEmptyDocumentsSkipped(t *testing.T) {
	path := writeSchemaFile(t, "sparse.yml", `
---
entity:
  technical_name: sparse
fields:
  - technical_name: id
    type: integer
    pk: true
---
`)

	entities, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, entities, 1)
}

func TestRegistryDuplicateAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(&Entity{TechnicalName: "siswa", Path: "a.yml"}))

	err := reg.Add(&Entity{TechnicalName: "siswa", Path: "b.yml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entity")

	_, ok := reg.Lookup("siswa")
	assert.True(t, ok)
	assert.True(t, reg.Has("siswa"))
	assert.True(t, reg.Has("public.siswa")) // qualified reference
	assert.False(t, reg.Has("guru"))
}

func TestFindSchemaFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yml", "a.yaml", "c.txt", "sub"} {
		if name == "sub" {
			require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "d.yml"), []byte("fields: []"), 0644))
			continue
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("fields: []"), 0644))
	}

	files, err := FindSchemaFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.yml"), files[1])
	assert.Equal(t, filepath.Join(dir, "sub", "d.yml"), files[2])
}

func TestQualifiedName(t *testing.T) {
	e := &Entity{TechnicalName: "guru"}
	assert.Equal(t, "public.guru", e.QualifiedName("public"))
	e.Schema = "akademik"
	assert.Equal(t, "akademik.guru", e.QualifiedName("public"))
}
