package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/gradle-usage/internal/finder"
	"github.com/askiada/gradle-usage/internal/report"
	"github.com/askiada/gradle-usage/internal/scan"
	"github.com/askiada/gradle-usage/internal/store"
	"github.com/askiada/gradle-usage/internal/version"
	"github.com/askiada/gradle-usage/internal/wrapper"
)

func createProject(t *testing.T, dir, gradleVersion string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))

	if gradleVersion == "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, finder.SettingsGradle), []byte{}, 0o600))

		return
	}

	propsFile := filepath.Join(dir, wrapper.PropertiesFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(propsFile), 0o755))

	content := "distributionUrl=https\\://services.gradle.org/distributions/gradle-" + gradleVersion + "-bin.zip\n"
	require.NoError(t, os.WriteFile(propsFile, []byte(content), 0o600))
}

func createTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	createProject(t, filepath.Join(root, "a"), "7.4.2")
	createProject(t, filepath.Join(root, "b"), "")
	createProject(t, filepath.Join(root, "c"), "7.4.2")
	createProject(t, filepath.Join(root, "c", "samples", "d"), "6.9")
	createProject(t, filepath.Join(root, "excluded"), "8.0")

	return root
}

type memoryRecorder struct {
	mu      sync.Mutex
	runs    map[string]int
	entries map[string][]report.Entry
	err     error
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{runs: map[string]int{}, entries: map[string][]report.Entry{}}
}

func (r *memoryRecorder) BeginRun(context.Context, []string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs["run-1"] = -1

	return "run-1", nil
}

func (r *memoryRecorder) Record(_ context.Context, runID string, entry report.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.entries[runID] = append(r.entries[runID], entry)

	return nil
}

func (r *memoryRecorder) FinishRun(_ context.Context, runID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[runID] = total

	return nil
}

func TestRun(t *testing.T) {
	t.Parallel()

	root := createTree(t)

	tcs := map[string]struct {
		concurrency int
	}{
		"default concurrency": {},
		"sequential":          {concurrency: 1},
		"concurrent":          {concurrency: 8},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res, err := scan.Run(t.Context(), scan.Options{
				Roots:       []string{root},
				Excludes:    []string{filepath.Join(root, "excluded"), filepath.Join(root, "missing")},
				Concurrency: tc.concurrency,
			})
			require.NoError(t, err)
			assert.Empty(t, res.RunID)

			assert.Equal(t, []report.Entry{
				{Path: filepath.Join(root, "a"), Version: "7.4.2"},
				{Path: filepath.Join(root, "b"), Version: version.Unknown},
				{Path: filepath.Join(root, "c"), Version: "7.4.2"},
				{Path: filepath.Join(root, "c", "samples", "d"), Version: "6.9"},
			}, res.Report.Projects)
			assert.Equal(t, []report.Count{
				{Version: "7.4.2", Projects: 2},
				{Version: "6.9", Projects: 1},
				{Version: version.Unknown, Projects: 1},
			}, res.Report.Summary)
		})
	}
}

func TestRunNoRoots(t *testing.T) {
	t.Parallel()

	res, err := scan.Run(t.Context(), scan.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Report.Projects)
	assert.Equal(t, []string{"Found 0 Gradle projects", "Summary"}, report.Lines(res.Report))
}

func TestRunMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := scan.Run(t.Context(), scan.Options{Roots: []string{filepath.Join(t.TempDir(), "missing")}})
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "unable to scan path")
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	root := createTree(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := scan.Run(ctx, scan.Options{Roots: []string{root}})
	require.ErrorIs(t, err, context.Canceled)
}

type fixedResolver string

func (r fixedResolver) Resolve(context.Context, finder.Project) string {
	return string(r)
}

func TestRunCustomResolver(t *testing.T) {
	t.Parallel()

	root := createTree(t)

	res, err := scan.Run(t.Context(), scan.Options{
		Roots:    []string{root},
		Resolver: fixedResolver(version.Failed),
	})
	require.NoError(t, err)
	assert.Equal(t, []report.Count{
		{Version: version.Failed, Projects: 4},
		{Version: version.Unknown, Projects: 1},
	}, res.Report.Summary)
}

func TestRunRecorder(t *testing.T) {
	t.Parallel()

	root := createTree(t)
	rec := newMemoryRecorder()

	res, err := scan.Run(t.Context(), scan.Options{
		Roots:    []string{root},
		Excludes: []string{filepath.Join(root, "c")},
		Recorder: rec,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Len(t, res.Report.Projects, 3)
	assert.ElementsMatch(t, res.Report.Projects, rec.entries["run-1"])
	assert.Equal(t, 3, rec.runs["run-1"])
}

func TestRunRecorderError(t *testing.T) {
	t.Parallel()

	root := createTree(t)
	rec := newMemoryRecorder()
	rec.err = assert.AnError

	_, err := scan.Run(t.Context(), scan.Options{Roots: []string{root}, Recorder: rec})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "record")
	assert.Equal(t, -1, rec.runs["run-1"])
}

func TestRunHistoryStore(t *testing.T) {
	t.Parallel()

	root := createTree(t)

	history, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)

	defer history.Close()

	res, err := scan.Run(t.Context(), scan.Options{Roots: []string{root}, Recorder: history})
	require.NoError(t, err)

	run, err := history.Run(t.Context(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 5, run.Total)
	assert.Equal(t, []string{root}, run.Roots)

	projects, err := history.Projects(t.Context(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Report.Projects, projects)
}

func TestRunGraphFile(t *testing.T) {
	t.Parallel()

	root := createTree(t)
	graphFile := filepath.Join(t.TempDir(), "pipeline.gv")

	_, err := scan.Run(t.Context(), scan.Options{
		Roots:     []string{root},
		Recorder:  newMemoryRecorder(),
		GraphFile: graphFile,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(graphFile)
	require.NoError(t, err)

	for _, edge := range []string{
		`"start" -> "find"`,
		`"find" -> "route"`,
		`"route" -> "resolve"`,
		`"route" -> "unknown"`,
		`"resolve" -> "merge"`,
		`"unknown" -> "merge"`,
		`"merge" -> "fan out"`,
		`"fan out" -> "collect"`,
		`"fan out" -> "record"`,
		`"collect" -> "end"`,
		`"record" -> "end"`,
	} {
		assert.Contains(t, string(content), edge)
	}
}
