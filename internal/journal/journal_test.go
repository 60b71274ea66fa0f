package journal_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/rdm/internal/journal"
)

func openStore(t *testing.T) *journal.Store {
	t.Helper()
	s, err := journal.Open(filepath.Join(t.TempDir(), "rdm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	r, err := s.BeginRun(ctx, 42, "legacy:5432/helpdesk#42")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Finished())

	got, err := s.LastRun(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, int64(42), got.Tenant)
	assert.Equal(t, "legacy:5432/helpdesk#42", got.Fingerprint)
	assert.False(t, got.Finished())

	require.NoError(t, s.FinishRun(ctx, r.ID))
	got, err = s.LastRun(ctx, 42)
	require.NoError(t, err)
	assert.True(t, got.Finished())
}

func TestLastRunScopes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	first, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)
	second, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := s.LastRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	none, err := s.LastRun(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFinishUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	err := s.FinishRun(ctx, "no-such-run")
	assert.ErrorContains(t, err, "not found")
}

func TestStepLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)

	require.NoError(t, s.StartStep(ctx, r.ID, "companies"))
	recs, err := s.StepStatuses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, journal.StatusRunning, recs[0].Status)
	assert.Nil(t, recs[0].FinishedAt)

	counts := journal.Counts{Processed: 10, Inserted: 7, Existing: 2, Skipped: 1}
	require.NoError(t, s.CompleteStep(ctx, r.ID, "companies", counts))
	recs, err = s.StepStatuses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, journal.StatusDone, recs[0].Status)
	assert.Equal(t, counts, recs[0].Counts)
	assert.Empty(t, recs[0].Error)
	require.NotNil(t, recs[0].FinishedAt)
	assert.False(t, recs[0].FinishedAt.Before(recs[0].StartedAt))
}

func TestFailAndRestartStep(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)

	require.NoError(t, s.StartStep(ctx, r.ID, "tickets"))
	counts := journal.Counts{Processed: 5, Inserted: 3, Errored: 2}
	require.NoError(t, s.FailStep(ctx, r.ID, "tickets", counts, "write batch: connection reset"))

	recs, err := s.StepStatuses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, journal.StatusFailed, recs[0].Status)
	assert.Equal(t, "write batch: connection reset", recs[0].Error)
	assert.Equal(t, 2, recs[0].Counts.Errored)

	// Restarting wipes the failed attempt's counts and error.
	require.NoError(t, s.StartStep(ctx, r.ID, "tickets"))
	recs, err = s.StepStatuses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, journal.StatusRunning, recs[0].Status)
	assert.Equal(t, journal.Counts{}, recs[0].Counts)
	assert.Empty(t, recs[0].Error)
	assert.Nil(t, recs[0].FinishedAt)
}

func TestCompleteWithoutStart(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)
	err = s.CompleteStep(ctx, r.ID, "users", journal.Counts{})
	assert.ErrorContains(t, err, "no start record")
}

func TestDoneSteps(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)

	require.NoError(t, s.StartStep(ctx, r.ID, "companies"))
	require.NoError(t, s.CompleteStep(ctx, r.ID, "companies", journal.Counts{Processed: 1, Inserted: 1}))
	require.NoError(t, s.StartStep(ctx, r.ID, "users"))
	require.NoError(t, s.FailStep(ctx, r.ID, "users", journal.Counts{}, "boom"))
	require.NoError(t, s.StartStep(ctx, r.ID, "departments"))

	done, err := s.DoneSteps(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"companies": true}, done)
}

func TestStepStatusesKeepSequence(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)

	for _, step := range []string{"companies", "users", "departments"} {
		require.NoError(t, s.StartStep(ctx, r.ID, step))
		require.NoError(t, s.CompleteStep(ctx, r.ID, step, journal.Counts{}))
	}
	recs, err := s.StepStatuses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "companies", recs[0].Step)
	assert.Equal(t, "users", recs[1].Step)
	assert.Equal(t, "departments", recs[2].Step)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)
	require.NoError(t, s.StartStep(ctx, r.ID, "companies"))

	require.NoError(t, s.Reset(ctx))
	got, err := s.LastRun(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResetStep(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r, err := s.BeginRun(ctx, 1, "fp")
	require.NoError(t, err)
	require.NoError(t, s.StartStep(ctx, r.ID, "companies"))
	require.NoError(t, s.CompleteStep(ctx, r.ID, "companies", journal.Counts{}))
	require.NoError(t, s.StartStep(ctx, r.ID, "users"))

	require.NoError(t, s.ResetStep(ctx, "companies"))
	recs, err := s.StepStatuses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "users", recs[0].Step)

	err = s.ResetStep(ctx, "companies")
	assert.ErrorContains(t, err, "no journal records")
}

func TestJournalSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "rdm.db")

	s, err := journal.Open(path)
	require.NoError(t, err)
	r, err := s.BeginRun(ctx, 3, "fp")
	require.NoError(t, err)
	require.NoError(t, s.StartStep(ctx, r.ID, "companies"))
	require.NoError(t, s.CompleteStep(ctx, r.ID, "companies", journal.Counts{Processed: 4, Inserted: 4}))
	require.NoError(t, s.Close())

	s, err = journal.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LastRun(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)
	done, err := s.DoneSteps(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, done["companies"])
}
