package store_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/gradle-usage/internal/report"
	"github.com/askiada/gradle-usage/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "history", "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	runID, err := s.BeginRun(t.Context(), []string{"/work", "/src"})
	require.NoError(t, err)

	_, err = uuid.Parse(runID)
	require.NoError(t, err)

	run, err := s.Run(t.Context(), runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/work", "/src"}, run.Roots)
	assert.False(t, run.Finished())

	require.NoError(t, s.Record(t.Context(), runID, report.Entry{Path: "/work/b", Version: "7.4.2"}))
	require.NoError(t, s.Record(t.Context(), runID, report.Entry{Path: "/work/a", Version: "UNKNOWN"}))
	require.NoError(t, s.FinishRun(t.Context(), runID, 2))

	run, err = s.Run(t.Context(), runID[:8])
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.True(t, run.Finished())
	assert.Equal(t, 2, run.Total)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	projects, err := s.Projects(t.Context(), runID)
	require.NoError(t, err)
	assert.Equal(t, []report.Entry{
		{Path: "/work/a", Version: "UNKNOWN"},
		{Path: "/work/b", Version: "7.4.2"},
	}, projects)
}

func TestRuns(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	runs, err := s.Runs(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	ids := make([]string, 3)
	for i := range ids {
		ids[i], err = s.BeginRun(t.Context(), []string{"/work"})
		require.NoError(t, err)
	}

	runs, err = s.Runs(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	runs, err = s.Runs(t.Context(), 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunNotFound(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	_, err := s.Run(t.Context(), uuid.NewString())
	require.ErrorIs(t, err, store.ErrRunNotFound)

	_, err = s.Run(t.Context(), "")
	require.ErrorIs(t, err, store.ErrRunNotFound)

	err = s.FinishRun(t.Context(), uuid.NewString(), 1)
	require.ErrorIs(t, err, store.ErrRunNotFound)

	projects, err := s.Projects(t.Context(), uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestAmbiguousRun(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	for range 2 {
		_, err := s.BeginRun(t.Context(), nil)
		require.NoError(t, err)
	}

	// every identifier starts with the empty prefix once wildcards are dropped
	_, err := s.Run(t.Context(), "%")
	require.ErrorIs(t, err, store.ErrAmbiguousRun)
}

func TestReopen(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "usage.db")

	s, err := store.Open(t.Context(), dsn)
	require.NoError(t, err)

	runID, err := s.BeginRun(t.Context(), []string{"/work"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(t.Context(), dsn)
	require.NoError(t, err)

	defer s.Close()

	run, err := s.Run(t.Context(), runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
}
