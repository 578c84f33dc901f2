package version

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/askiada/gradle-usage/internal/finder"
	"github.com/askiada/gradle-usage/internal/wrapper"
)

const (
	DefaultTimeout   = 2 * time.Minute
	DefaultCacheSize = 128
)

// ErrNoVersion is returned when the wrapper script output holds no Gradle version.
var ErrNoVersion = errors.New("no gradle version in output")

var gradleVersionRe = regexp.MustCompile(`(?m)^Gradle (\S+)\s*$`)

// Runner executes script with args in dir and returns its combined output.
type Runner func(ctx context.Context, dir, script string, args ...string) ([]byte, error)

// ExecRunner runs the script as a child process.
func ExecRunner(ctx context.Context, dir, script string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, script, args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.Wrapf(err, "unable to run %s", script)
	}

	return out, nil
}

// ScriptName is the wrapper script for the current platform.
func ScriptName() string {
	if runtime.GOOS == "windows" {
		return "gradlew.bat"
	}

	return "gradlew"
}

// ParseVersionOutput extracts the version from the output of "gradlew --version".
func ParseVersionOutput(out []byte) (string, error) {
	match := gradleVersionRe.FindSubmatch(out)
	if match == nil {
		return "", ErrNoVersion
	}

	return string(match[1]), nil
}

// GradlewResolver asks the wrapper script of each project for its version.
// Versions are cached per distribution URL and concurrent lookups of the same
// distribution share a single invocation.
type GradlewResolver struct {
	opts  Options
	cache *lru.Cache[string, string]
	group singleflight.Group
}

// NewGradlewResolver creates a gradlew resolver. Zero options take their defaults.
func NewGradlewResolver(opts Options) (*GradlewResolver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}

	opts.Logger = opts.logger()

	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create version cache")
	}

	return &GradlewResolver{opts: opts, cache: cache}, nil
}

func (r *GradlewResolver) Resolve(ctx context.Context, project finder.Project) string {
	if !project.HasWrapper {
		return Unknown
	}

	url, err := wrapper.DistributionURL(project.Path)
	if err != nil {
		// still worth asking the script, but there is nothing to cache on
		r.opts.Logger.Debug("no distribution url", "path", project.Path, "error", err)

		return r.versionOrFailed(r.run(ctx, project.Path))
	}

	if version, ok := r.cache.Get(url); ok {
		r.opts.Logger.Debug("version cache hit", "path", project.Path, "url", url)

		return version
	}

	res, err, _ := r.group.Do(url, func() (any, error) {
		version, err := r.run(ctx, project.Path)
		if err != nil {
			return "", err
		}

		r.cache.Add(url, version)

		return version, nil
	})
	if err != nil {
		return r.versionOrFailed("", errors.Wrap(err, project.Path))
	}

	version, _ := res.(string)

	return version
}

func (r *GradlewResolver) versionOrFailed(version string, err error) string {
	if err != nil {
		r.opts.Logger.Warn("unable to determine gradle version", "error", err)

		return Failed
	}

	return version
}

func (r *GradlewResolver) run(ctx context.Context, dir string) (string, error) {
	script := filepath.Join(dir, ScriptName())
	if _, err := os.Stat(script); err != nil {
		return "", errors.Wrap(err, "missing wrapper script")
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()

	out, err := r.opts.Runner(ctx, dir, script, "--version", "--quiet")
	if ctx.Err() != nil {
		return "", errors.Wrapf(ctx.Err(), "%s after %s", script, time.Since(start).Round(time.Millisecond))
	}

	if err != nil {
		return "", err
	}

	return ParseVersionOutput(out)
}

var _ Resolver = (*GradlewResolver)(nil)
