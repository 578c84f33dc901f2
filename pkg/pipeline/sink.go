package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/gradle-usage/pkg/pipeline/model"
)

func prepareSink[I any](pipe *Pipeline, name string, input *model.Step[I]) (*model.StepInfo, error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}

	if input == nil {
		return nil, ErrInputMustBeSet
	}

	details := &model.StepInfo{
		Type:       model.SinkStepType,
		Name:       name,
		Concurrent: 1,
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareSink(input.Info(), details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before sink function")
		}
	}

	return details, nil
}

func (p *Pipeline) afterSink(details *model.StepInfo) error {
	for _, opt := range p.opts {
		err := opt.AfterSink(details, time.Since(p.startTime))
		if err != nil {
			return errors.Wrap(err, "unable to run after sink function")
		}
	}

	return nil
}

func (p *Pipeline) onSinkOutput(parent, details *model.StepInfo, iterationDuration, computationDuration time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnSinkOutput(parent, details, iterationDuration, computationDuration)
		if err != nil {
			return errors.Wrap(err, "unable to run sink output function")
		}
	}

	return nil
}

func consumeSink[I any](pipe *Pipeline, input *model.Step[I], details *model.StepInfo, sinkFn func(ctx context.Context, input I) error) error {
	for {
		startInputChan := time.Now()
		select {
		case <-pipe.ctx.Done():
			return pipe.ctx.Err()
		case in, ok := <-input.Output:
			if !ok {
				return nil
			}

			startFn := time.Now()

			err := sinkFn(pipe.ctx, in)
			if err != nil {
				return err
			}

			endFn := time.Since(startFn)

			err = pipe.onSinkOutput(input.Info(), details, startFn.Sub(startInputChan), endFn)
			if err != nil {
				return err
			}
		}
	}
}

// AddSink adds a final step calling sinkFn for every element of input.
func AddSink[I any](pipe *Pipeline, name string, input *model.Step[I], sinkFn func(ctx context.Context, input I) error) error {
	details, err := prepareSink(pipe, name, input)
	if err != nil {
		return err
	}

	errC := make(chan error, 1)

	go func() {
		defer close(errC)

		err := consumeSink(pipe, input, details, sinkFn)
		if err == nil {
			err = pipe.afterSink(details)
		}

		if err != nil {
			errC <- err
		}
	}()

	pipe.errcList.add(newErrorChan(name, errC))

	return nil
}

// AddSinkFromChan adds a final step handing the whole input channel to stepFn.
func AddSinkFromChan[I any](pipe *Pipeline, name string, input *model.Step[I], stepFn func(ctx context.Context, input <-chan I) error) error {
	details, err := prepareSink(pipe, name, input)
	if err != nil {
		return err
	}

	errC := make(chan error, 1)

	go func() {
		defer close(errC)

		err := stepFn(pipe.ctx, input.Output)
		if err == nil {
			err = pipe.afterSink(details)
		}

		if err != nil {
			errC <- err
		}
	}()

	pipe.errcList.add(newErrorChan(name, errC))

	return nil
}
