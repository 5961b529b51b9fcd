package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	led, err := Open(filepath.Join(t.TempDir(), "skema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	return led
}

func testRun(started time.Time) Run {
	return Run{
		ID:         uuid.NewString(),
		Target:     "postgres://localhost:5432/sekolah",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Outcome:    "ok",
	}
}

func TestRecordAndReadRun(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	run := testRun(time.Now().UTC())
	stmts := []Statement{
		{Entity: "guru", Hash: StatementHash("CREATE TABLE guru ();"), Status: StatusApplied},
		{Entity: "siswa", Hash: StatementHash("CREATE TABLE siswa ();"), Status: StatusUnchanged},
	}
	require.NoError(t, led.RecordRun(ctx, run, stmts))

	runs, err := led.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, run.Target, runs[0].Target)
	assert.Equal(t, "ok", runs[0].Outcome)
	assert.WithinDuration(t, run.StartedAt, runs[0].StartedAt, time.Millisecond)

	got, err := led.RunStatements(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by entity name.
	assert.Equal(t, "guru", got[0].Entity)
	assert.Equal(t, "siswa", got[1].Entity)
	assert.Equal(t, StatusApplied, got[0].Status)
}

func TestLastAppliedHash(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	_, ok, err := led.LastAppliedHash(ctx, "guru")
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Now().UTC().Add(-time.Hour)
	first := StatementHash("CREATE TABLE guru (id uuid);")
	second := StatementHash("CREATE TABLE guru (id uuid, nip varchar(18));")

	require.NoError(t, led.RecordRun(ctx, testRun(base), []Statement{
		{Entity: "guru", Hash: first, Status: StatusApplied},
	}))
	require.NoError(t, led.RecordRun(ctx, testRun(base.Add(time.Minute)), []Statement{
		{Entity: "guru", Hash: second, Status: StatusApplied},
	}))
	// Failed runs never count as the last applied state.
	require.NoError(t, led.RecordRun(ctx, testRun(base.Add(2*time.Minute)), []Statement{
		{Entity: "guru", Hash: StatementHash("broken"), Status: StatusFailed},
	}))

	hash, ok, err := led.LastAppliedHash(ctx, "guru")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, hash)
}

func TestLastAppliedHashCountsUnchanged(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	hash := StatementHash("CREATE TABLE siswa ();")

	require.NoError(t, led.RecordRun(ctx, testRun(base), []Statement{
		{Entity: "siswa", Hash: hash, Status: StatusApplied},
	}))
	require.NoError(t, led.RecordRun(ctx, testRun(base.Add(time.Minute)), []Statement{
		{Entity: "siswa", Hash: hash, Status: StatusUnchanged},
	}))

	got, ok, err := led.LastAppliedHash(ctx, "siswa")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hash, got)
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	led := openTestLedger(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		run := testRun(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, run.ID)
		require.NoError(t, led.RecordRun(ctx, run, nil))
	}

	runs, err := led.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	// Newest first.
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
	assert.Equal(t, ids[2], runs[2].ID)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skema.db")

	led, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, led.RecordRun(context.Background(), testRun(time.Now().UTC()), nil))
	require.NoError(t, led.Close())

	// Reopening an existing ledger keeps its data.
	led, err = Open(path)
	require.NoError(t, err)
	defer led.Close()

	runs, err := led.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStatementHash(t *testing.T) {
	a := StatementHash("CREATE TABLE guru ();")
	b := StatementHash("CREATE TABLE guru ();")
	c := StatementHash("CREATE TABLE siswa ();")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex SHA-256

	// Unicode normalization: composed and decomposed spellings hash the same.
	composed := StatementHash("COMMENT ON TABLE guru IS 'Ibu Andr\u00e9';")
	decomposed := StatementHash("COMMENT ON TABLE guru IS 'Ibu Andre\u0301';")
	assert.Equal(t, composed, decomposed)
}
