package fkpatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datakelola/skema/internal/schema"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patches.yaml", `
- file: siswa.yml
  field: kelas_id
  ref_table: kelas
- file: guru.yml
  field: sekolah_id
  ref_table: sekolah
`)

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, Target{File: "siswa.yml", Field: "kelas_id", RefTable: "kelas"}, targets[0])
}

func TestLoadTargetsMissingKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patches.yaml", `
- file: siswa.yml
  field: kelas_id
`)

	_, err := LoadTargets(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ref_table")
}

func TestApplyCreatesFKBlock(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "siswa.yml", `# data pokok siswa
entity:
  technical_name: siswa
fields:
  - technical_name: id
    type: uuid
    pk: true
  - technical_name: kelas_id
    type: uuid
`)

	result, err := Apply(dir, []Target{{File: "siswa.yml", Field: "kelas_id", RefTable: "kelas"}})
	require.NoError(t, err)
	require.Len(t, result.Patched, 1)
	assert.Equal(t, 1, result.Patched[0].Changes)
	assert.False(t, result.Patched[0].Fallback)
	assert.Empty(t, result.NotFound)

	// The patched file must parse with the new reference in place.
	entities, err := schema.ParseFile(path)
	require.NoError(t, err)
	f := entities[0].FieldByName("kelas_id")
	require.NotNil(t, f.FK)
	assert.Equal(t, "kelas", f.FK.RefTable)

	// Comments survive the rewrite.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# data pokok siswa")

	// A backup with the original content exists.
	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.NotContains(t, string(bak), "ref_table")
}

func TestApplyLegacyFieldGetsRefTableKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guru.yml", `
table: guru
columns:
  - name: id
    type: uuid
    primary_key: true
  - name: sekolah_id
    type: uuid
`)

	result, err := Apply(dir, []Target{{File: "guru.yml", Field: "sekolah_id", RefTable: "sekolah"}})
	require.NoError(t, err)
	require.Len(t, result.Patched, 1)

	data, err := os.ReadFile(filepath.Join(dir, "guru.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ref_table: sekolah")
}

func TestApplyFallbackScansDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "murid.yml", `
entity:
  technical_name: murid
fields:
  - technical_name: kelas_id
    type: uuid
`)

	// The map points at a file that does not exist; the field lives elsewhere.
	result, err := Apply(dir, []Target{{File: "siswa.yml", Field: "kelas_id", RefTable: "kelas"}})
	require.NoError(t, err)
	require.Len(t, result.Patched, 1)
	assert.True(t, result.Patched[0].Fallback)
	assert.Equal(t, "murid.yml", result.Patched[0].File)
}

func TestApplyNotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "murid.yml", `
entity:
  technical_name: murid
fields:
  - technical_name: id
    type: uuid
    pk: true
`)

	result, err := Apply(dir, []Target{{File: "murid.yml", Field: "tidak_ada", RefTable: "kelas"}})
	require.NoError(t, err)
	assert.Empty(t, result.Patched)
	require.Len(t, result.NotFound, 1)
	assert.Equal(t, "tidak_ada", result.NotFound[0].Field)
}

func TestApplyUnchangedReferenceNotRewritten(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "siswa.yml", `
entity:
  technical_name: siswa
fields:
  - technical_name: kelas_id
    type: uuid
    fk:
      ref_table: kelas
`)

	result, err := Apply(dir, []Target{{File: "siswa.yml", Field: "kelas_id", RefTable: "kelas"}})
	require.NoError(t, err)
	assert.Empty(t, result.Patched)
	require.Len(t, result.NotFound, 1)

	// No backup: the file was never written.
	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestApplyUpdatesExistingReference(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "siswa.yml", `
entity:
  technical_name: siswa
fields:
  - technical_name: kelas_id
    type: uuid
    fk:
      ref_table: kelas_lama
`)

	result, err := Apply(dir, []Target{{File: "siswa.yml", Field: "kelas_id", RefTable: "kelas"}})
	require.NoError(t, err)
	require.Len(t, result.Patched, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ref_table: kelas")
	assert.NotContains(t, string(data), "kelas_lama")
}
