// Package version works out the Gradle version used by a project.
package version

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/gradle-usage/internal/finder"
	"github.com/askiada/gradle-usage/internal/wrapper"
)

const (
	// Unknown is reported for projects without a wrapper configuration.
	Unknown = "UNKNOWN"
	// Failed is reported when a wrapper is configured but its version cannot be determined.
	Failed = "FAILED"
)

const (
	WrapperKind = "wrapper"
	GradlewKind = "gradlew"
)

// ErrUnknownResolver is returned by New for an unsupported resolver name.
var ErrUnknownResolver = errors.New("unknown resolver")

// Resolver returns the Gradle version of a project. It never fails: problems are reported
// through the Unknown and Failed versions.
type Resolver interface {
	Resolve(ctx context.Context, project finder.Project) string
}

// Options configures the resolvers built by New.
type Options struct {
	// Timeout bounds a single wrapper script invocation.
	Timeout time.Duration
	// CacheSize is the number of distributions whose version is remembered.
	CacheSize int
	Logger    *slog.Logger
	// Runner replaces the process execution of the gradlew resolver.
	Runner Runner
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return o.Logger
}

// Kinds lists the resolver names accepted by New.
func Kinds() []string {
	return []string{WrapperKind, GradlewKind}
}

// New returns the resolver registered under kind. An empty kind selects the wrapper resolver.
func New(kind string, opts Options) (Resolver, error) {
	switch kind {
	case "", WrapperKind:
		return &WrapperResolver{Logger: opts.logger()}, nil
	case GradlewKind:
		return NewGradlewResolver(opts)
	default:
		return nil, errors.Wrapf(ErrUnknownResolver, "%q", kind)
	}
}

// WrapperResolver reads the version from the distribution URL of the wrapper configuration.
type WrapperResolver struct {
	Logger *slog.Logger
}

func (r *WrapperResolver) Resolve(_ context.Context, project finder.Project) string {
	if !project.HasWrapper {
		return Unknown
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	url, err := wrapper.DistributionURL(project.Path)
	if err != nil {
		logger.Debug("unable to read distribution url", "path", project.Path, "error", err)

		return Failed
	}

	version, err := wrapper.VersionFromDistributionURL(url)
	if err != nil {
		logger.Debug("unable to parse distribution url", "path", project.Path, "error", err)

		return Failed
	}

	return version
}

var _ Resolver = (*WrapperResolver)(nil)
