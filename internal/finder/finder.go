// Package finder locates Gradle projects below a set of directories.
package finder

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/gradle-usage/internal/wrapper"
)

const (
	SettingsGradle    = "settings.gradle"
	SettingsGradleKts = "settings.gradle.kts"
)

// Project is a directory holding a Gradle build.
type Project struct {
	Path       string
	HasWrapper bool
}

// Finder walks directory trees looking for Gradle projects.
type Finder struct {
	// Excludes are directories skipped together with everything below them.
	Excludes []string
	// FollowLinks makes the walk descend into symbolic links to directories.
	FollowLinks bool
	Logger      *slog.Logger
}

// IsGradleProject reports whether dir holds a settings script or a wrapper configuration.
func IsGradleProject(dir string) bool {
	return exists(filepath.Join(dir, SettingsGradle)) ||
		exists(filepath.Join(dir, SettingsGradleKts)) ||
		HasWrapper(dir)
}

// HasWrapper reports whether dir holds a wrapper configuration.
func HasWrapper(dir string) bool {
	return exists(filepath.Join(dir, wrapper.PropertiesFile))
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func (f *Finder) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return f.Logger
}

// ValidateExcludes returns the excludes that do not exist.
func (f *Finder) ValidateExcludes() []string {
	invalid := []string{}

	for _, exclude := range f.Excludes {
		if _, err := os.Stat(exclude); err != nil {
			invalid = append(invalid, exclude)
		}
	}

	return invalid
}

func normalise(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", errors.Wrapf(err, "unable to resolve %s", path)
	}

	return abs, nil
}

// Find returns every Gradle project below roots, in walk order.
func (f *Finder) Find(ctx context.Context, roots []string) ([]Project, error) {
	projects := []Project{}

	err := f.Walk(ctx, roots, func(project Project) error {
		projects = append(projects, project)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return projects, nil
}

// Walk calls fn for every Gradle project below roots. A directory is visited before its children.
// Walking stops at the first error returned by fn.
func (f *Finder) Walk(ctx context.Context, roots []string, fn func(Project) error) error {
	excludes := make(map[string]struct{}, len(f.Excludes))

	for _, exclude := range f.Excludes {
		abs, err := normalise(exclude)
		if err != nil {
			return err
		}

		excludes[abs] = struct{}{}
	}

	w := &walker{
		excludes:    excludes,
		followLinks: f.FollowLinks,
		logger:      f.logger(),
		fn:          fn,
	}

	seen := make(map[string]struct{}, len(roots))

	for _, root := range roots {
		abs, err := normalise(root)
		if err != nil {
			return err
		}

		if _, ok := seen[abs]; ok {
			continue
		}

		seen[abs] = struct{}{}

		err = w.walkRoot(ctx, filepath.Clean(root), abs)
		if err != nil {
			return err
		}
	}

	return nil
}

type walker struct {
	excludes    map[string]struct{}
	followLinks bool
	logger      *slog.Logger
	fn          func(Project) error
}

func (w *walker) walkRoot(ctx context.Context, root, abs string) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrapf(err, "unable to scan path %s", root)
	}

	if !info.IsDir() {
		w.logger.Warn("not a directory, skipping", "path", root)

		return nil
	}

	// the entries are read up front so that an unreadable root fails the scan
	if _, err := os.ReadDir(root); err != nil {
		return errors.Wrapf(err, "unable to scan path %s", root)
	}

	return w.walk(ctx, root, abs, map[string]struct{}{})
}

func (w *walker) walk(ctx context.Context, dir, abs string, ancestors map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "walk interrupted")
	}

	if _, ok := w.excludes[abs]; ok {
		w.logger.Debug("excluded", "path", dir)

		return nil
	}

	if w.followLinks {
		target, err := filepath.EvalSymlinks(dir)
		if err != nil {
			w.logger.Warn("unable to resolve directory, skipping", "path", dir, "error", err)

			return nil
		}

		if _, ok := ancestors[target]; ok {
			w.logger.Debug("symbolic link cycle, skipping", "path", dir, "target", target)

			return nil
		}

		ancestors[target] = struct{}{}
		defer delete(ancestors, target)
	}

	if IsGradleProject(dir) {
		err := w.fn(Project{Path: dir, HasWrapper: HasWrapper(dir)})
		if err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("unable to read directory, skipping", "path", dir, "error", err)

		return nil
	}

	for _, entry := range entries {
		if !w.descend(dir, entry) {
			continue
		}

		err := w.walk(ctx, filepath.Join(dir, entry.Name()), filepath.Join(abs, entry.Name()), ancestors)
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *walker) descend(dir string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}

	if entry.Type()&fs.ModeSymlink == 0 || !w.followLinks {
		return false
	}

	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	if err != nil {
		w.logger.Debug("dangling symbolic link", "path", filepath.Join(dir, entry.Name()))

		return false
	}

	return info.IsDir()
}
