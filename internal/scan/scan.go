// Package scan assembles the pipeline finding Gradle projects and resolving their versions.
package scan

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/pkg/errors"

	"github.com/askiada/gradle-usage/internal/finder"
	"github.com/askiada/gradle-usage/internal/report"
	"github.com/askiada/gradle-usage/internal/version"
	"github.com/askiada/gradle-usage/pkg/pipeline"
	"github.com/askiada/gradle-usage/pkg/pipeline/drawer"
	"github.com/askiada/gradle-usage/pkg/pipeline/measure"
	"github.com/askiada/gradle-usage/pkg/pipeline/model"
)

// Recorder persists the projects found by a scan.
type Recorder interface {
	BeginRun(ctx context.Context, roots []string) (string, error)
	Record(ctx context.Context, runID string, entry report.Entry) error
	FinishRun(ctx context.Context, runID string, total int) error
}

type Options struct {
	Roots       []string
	Excludes    []string
	FollowLinks bool
	// Concurrency is the number of projects resolved at once. It defaults to the number of CPUs.
	Concurrency int
	// Resolver defaults to reading the wrapper configuration.
	Resolver version.Resolver
	// Recorder, when set, receives every project under a new run.
	Recorder Recorder
	// GraphFile, when set, receives a DOT rendering of the pipeline.
	GraphFile string
	Logger    *slog.Logger
}

// Result is the outcome of a scan.
type Result struct {
	Report report.Report
	// RunID identifies the recorded run. It is empty without a Recorder.
	RunID string
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	if o.Concurrency <= 0 {
		o.Concurrency = runtime.NumCPU()
	}

	if o.Resolver == nil {
		o.Resolver = &version.WrapperResolver{Logger: o.Logger}
	}
}

// Run scans the roots and builds the report.
func Run(ctx context.Context, opts Options) (Result, error) {
	opts.setDefaults()
	logger := opts.Logger

	f := &finder.Finder{
		Excludes:    opts.Excludes,
		FollowLinks: opts.FollowLinks,
		Logger:      logger,
	}

	for _, exclude := range f.ValidateExcludes() {
		logger.Warn("invalid exclude path", "path", exclude)
	}

	msr := measure.NewDefaultMeasure()
	pipeOpts := []model.PipelineOption{measure.PipelineMeasure(msr)}

	if opts.GraphFile != "" {
		pipeOpts = append(pipeOpts, drawer.PipelineDrawer(drawer.NewDotDrawer(opts.GraphFile), msr))
	}

	pipe, err := pipeline.New(ctx, pipeOpts...)
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to create scan pipeline")
	}

	var runID string

	if opts.Recorder != nil {
		runID, err = opts.Recorder.BeginRun(ctx, opts.Roots)
		if err != nil {
			return Result{}, errors.Wrap(err, "unable to begin run")
		}

		logger.Info("recording scan", "run", runID)
	}

	entries := []report.Entry{}

	err = build(pipe, f, opts, runID, &entries)
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to build scan pipeline")
	}

	err = pipe.Run()
	if err != nil {
		return Result{}, errors.Wrap(err, "scan failed")
	}

	for _, name := range msr.StepNames() {
		mt := msr.GetMetric(name)
		if mt.Count() == 0 {
			continue
		}

		logger.Debug("step timing", "step", name, "elements", mt.Count(), "avg", mt.AVGDuration())
	}

	if opts.Recorder != nil {
		err = opts.Recorder.FinishRun(ctx, runID, len(entries))
		if err != nil {
			return Result{}, errors.Wrap(err, "unable to finish run")
		}
	}

	return Result{Report: report.Build(entries), RunID: runID}, nil
}

func build(pipe *pipeline.Pipeline, f *finder.Finder, opts Options, runID string, entries *[]report.Entry) error {
	logger := opts.Logger

	found, err := pipeline.AddRootStep(pipe, "find", func(ctx context.Context, out chan<- finder.Project) error {
		return f.Walk(ctx, opts.Roots, func(project finder.Project) error {
			logger.Debug("found gradle project", "path", project.Path, "wrapper", project.HasWrapper)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- project:
				return nil
			}
		})
	})
	if err != nil {
		return err
	}

	route, err := pipeline.AddSplitterFn(pipe, "route", found, []pipeline.SplitterFn[finder.Project]{
		func(project finder.Project) (bool, error) { return project.HasWrapper, nil },
		func(project finder.Project) (bool, error) { return !project.HasWrapper, nil },
	}, pipeline.SplitterBufferSize[finder.Project](opts.Concurrency))
	if err != nil {
		return err
	}

	wrapped, _ := route.Get()
	bare, _ := route.Get()

	resolved, err := pipeline.AddStepOneToOne(pipe, "resolve", wrapped,
		func(ctx context.Context, project finder.Project) (report.Entry, error) {
			v := opts.Resolver.Resolve(ctx, project)
			logger.Debug("resolved gradle version", "path", project.Path, "version", v)

			return report.Entry{Path: project.Path, Version: v}, nil
		}, pipeline.StepConcurrency[report.Entry](opts.Concurrency))
	if err != nil {
		return err
	}

	unknown, err := pipeline.AddStepOneToOne(pipe, "unknown", bare,
		func(_ context.Context, project finder.Project) (report.Entry, error) {
			return report.Entry{Path: project.Path, Version: version.Unknown}, nil
		})
	if err != nil {
		return err
	}

	merged, err := pipeline.AddMerger(pipe, "merge", resolved, unknown)
	if err != nil {
		return err
	}

	collectInput := merged

	if opts.Recorder != nil {
		fanOut, err := pipeline.AddSplitter(pipe, "fan out", merged, 2)
		if err != nil {
			return err
		}

		collectInput, _ = fanOut.Get()
		recordInput, _ := fanOut.Get()

		err = pipeline.AddSink(pipe, "record", recordInput, func(ctx context.Context, entry report.Entry) error {
			return opts.Recorder.Record(ctx, runID, entry)
		})
		if err != nil {
			return err
		}
	}

	return pipeline.AddSink(pipe, "collect", collectInput, func(_ context.Context, entry report.Entry) error {
		*entries = append(*entries, entry)

		return nil
	})
}
