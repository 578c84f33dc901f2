package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/gradle-usage/pkg/pipeline/model"
)

func prepareRootStep[O any](pipe *Pipeline, name string, opts ...StepOption[O]) (*model.Step[O], error) {
	step := &model.Step[O]{
		Details: &model.StepInfo{
			Type:       model.RootStepType,
			Name:       name,
			Concurrent: 1,
		},
	}
	for _, opt := range opts {
		opt(step)
	}

	step.Output = make(chan O, step.Details.BufferSize)

	for _, opt := range pipe.opts {
		err := opt.PrepareStep(model.StartStep.Details, step.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before step function")
		}
	}

	return step, nil
}

// AddRootStep adds a step feeding the pipeline. stepFn pushes elements to rootChan, which is closed once
// stepFn returns unless the StepKeepOpen option is set.
func AddRootStep[O any](pipe *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*model.Step[O], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}

	step, err := prepareRootStep(pipe, name, opts...)
	if err != nil {
		return nil, err
	}

	errC := make(chan error, 1)

	go func() {
		defer func() {
			if !step.KeepOpen {
				close(step.Output)
			}
			close(errC)
		}()

		err := stepFn(pipe.ctx, step.Output)
		if err != nil {
			errC <- err
		}
	}()

	pipe.errcList.add(newErrorChan(name, errC))

	return step, nil
}
