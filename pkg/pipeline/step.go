package pipeline

import (
	"context"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/gradle-usage/pkg/pipeline/model"
)

// outputHook is called every time a step pushes an element to its output.
type outputHook func(iterationDuration, computationDuration time.Duration) error

func isZero[O any](out O) bool {
	return reflect.ValueOf(&out).Elem().IsZero()
}

func concurrency(details *model.StepInfo) int {
	if details == nil || details.Concurrent < 1 {
		return 1
	}

	return details.Concurrent
}

func push[O any](ctx context.Context, goIdx int, output *model.Step[O], out O, start time.Time, computation time.Duration, hooks []outputHook) error {
	// we check the context again to make sure all go routines currently running
	// stop to add new elements to the pipeline
	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
	case output.Output <- out:
	}

	iteration := time.Since(start) - computation
	for _, hook := range hooks {
		err := hook(iteration, computation)
		if err != nil {
			return errors.Wrapf(err, "go routine %d", goIdx)
		}
	}

	return nil
}

func sequentialOneToOne[I, O any](ctx context.Context, goIdx int, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error), skipZero bool, hooks []outputHook) error {
	for {
		// a cancelled context wins over a ready input
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		}

		start := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}

			startFn := time.Now()

			out, err := oneToOneFn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d", goIdx)
			}

			if skipZero && isZero(out) {
				continue
			}

			err = push(ctx, goIdx, output, out, start, time.Since(startFn), hooks)
			if err != nil {
				return err
			}
		}
	}
}

func sequentialOneToMany[I, O any](ctx context.Context, goIdx int, input *model.Step[I], output *model.Step[O], oneToManyFn func(context.Context, I) ([]O, error), hooks []outputHook) error {
	for {
		// a cancelled context wins over a ready input
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		}

		start := time.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}

			startFn := time.Now()

			outs, err := oneToManyFn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d", goIdx)
			}

			computation := time.Since(startFn)
			for _, out := range outs {
				err = push(ctx, goIdx, output, out, start, computation, hooks)
				if err != nil {
					return err
				}
			}
		}
	}
}

// runConcurrently starts as many consumers as the output step allows.
// Each consumer stops as soon as one of them fails.
func runConcurrently[O any](ctx context.Context, output *model.Step[O], consumer func(ctx context.Context, goIdx int) error) error {
	concurrent := concurrency(output.Details)
	if concurrent == 1 {
		return consumer(ctx, 0)
	}

	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(concurrent)

	for goIdx := range concurrent {
		errGrp.Go(func() error {
			return consumer(dCtx, goIdx)
		})
	}

	return errGrp.Wait()
}

func runOneToOne[I, O any](ctx context.Context, input *model.Step[I], output *model.Step[O], oneToOneFn func(context.Context, I) (O, error), skipZero bool, hooks ...outputHook) error {
	return runConcurrently(ctx, output, func(ctx context.Context, goIdx int) error {
		return sequentialOneToOne(ctx, goIdx, input, output, oneToOneFn, skipZero, hooks)
	})
}

func runOneToMany[I, O any](ctx context.Context, input *model.Step[I], output *model.Step[O], oneToManyFn func(context.Context, I) ([]O, error), hooks ...outputHook) error {
	return runConcurrently(ctx, output, func(ctx context.Context, goIdx int) error {
		return sequentialOneToMany(ctx, goIdx, input, output, oneToManyFn, hooks)
	})
}

func prepareStep[I, O any](pipe *Pipeline, name string, input *model.Step[I], opts ...StepOption[O]) (*model.Step[O], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}

	if input == nil {
		return nil, ErrInputMustBeSet
	}

	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.NormalStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	for _, opt := range opts {
		opt(step)
	}

	step.Output = make(chan O, step.Details.BufferSize)

	for _, opt := range pipe.opts {
		err := opt.PrepareStep(input.Info(), step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before step function")
		}
	}

	return step, nil
}

func (p *Pipeline) stepOutputHook(parent, step *model.StepInfo) outputHook {
	return func(iterationDuration, computationDuration time.Duration) error {
		for _, opt := range p.opts {
			err := opt.OnStepOutput(parent, step, iterationDuration, computationDuration)
			if err != nil {
				return errors.Wrap(err, "unable to run step output function")
			}
		}

		return nil
	}
}

func startStep[I, O any](pipe *Pipeline, input *model.Step[I], step *model.Step[O], stepFn func(ctx context.Context, hook outputHook) error) {
	errC := make(chan error, 1)
	hook := pipe.stepOutputHook(input.Info(), step.Details)

	go func() {
		defer func() {
			close(step.Output)
			close(errC)
		}()

		err := stepFn(pipe.ctx, hook)
		if err != nil {
			errC <- err
		}
	}()

	pipe.errcList.add(newErrorChan(step.Details.Name, errC))
}

// AddStepOneToOne adds a step that maps every input element to exactly one output element.
func AddStepOneToOne[I, O any](pipe *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	startStep(pipe, input, step, func(ctx context.Context, hook outputHook) error {
		return runOneToOne(ctx, input, step, oneToOneFn, false, hook)
	})

	return step, nil
}

// AddStepOneToOneOrZero is like AddStepOneToOne but drops zero values returned by oneToOneFn.
func AddStepOneToOneOrZero[I, O any](pipe *Pipeline, name string, input *model.Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	startStep(pipe, input, step, func(ctx context.Context, hook outputHook) error {
		return runOneToOne(ctx, input, step, oneToOneFn, true, hook)
	})

	return step, nil
}

// AddStepOneToMany adds a step that maps every input element to any number of output elements.
func AddStepOneToMany[I, O any](pipe *Pipeline, name string, input *model.Step[I], oneToManyFn func(context.Context, I) ([]O, error), opts ...StepOption[O]) (*model.Step[O], error) {
	step, err := prepareStep(pipe, name, input, opts...)
	if err != nil {
		return nil, err
	}

	startStep(pipe, input, step, func(ctx context.Context, hook outputHook) error {
		return runOneToMany(ctx, input, step, oneToManyFn, hook)
	})

	return step, nil
}
