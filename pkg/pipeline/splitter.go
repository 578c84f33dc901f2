package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/gradle-usage/pkg/pipeline/model"
)

// Splitter copies every element of its input to Total branches.
type Splitter[I any] struct {
	mu            sync.Mutex
	currIdx       int
	mainStep      *model.Step[I]
	splittedSteps []*model.Step[I]
	bufferSize    int
	Total         int
}

// Get returns the next unclaimed branch.
func (s *Splitter[I]) Get() (*model.Step[I], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currIdx >= len(s.splittedSteps) {
		return nil, false
	}

	step := s.splittedSteps[s.currIdx]
	s.currIdx++

	return step, true
}

// SplitterFn reports whether an element belongs to a branch.
type SplitterFn[I any] func(input I) (bool, error)

func prepareSplitter[I any](pipe *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}

	if input == nil {
		return nil, ErrInputMustBeSet
	}

	if total <= 0 {
		return nil, ErrSplitterTotal
	}

	splitter := &Splitter[I]{
		Total: total,
		mainStep: &model.Step[I]{
			Details: &model.StepInfo{
				Type:       model.SplitterStepType,
				Name:       name,
				Concurrent: 1,
			},
		},
	}
	for _, opt := range opts {
		opt(splitter)
	}

	if splitter.bufferSize <= 0 {
		splitter.bufferSize = 1
	}

	splitter.mainStep.Details.BufferSize = splitter.bufferSize

	splitter.splittedSteps = make([]*model.Step[I], total)
	for i := range total {
		splitter.splittedSteps[i] = &model.Step[I]{
			Details: splitter.mainStep.Details,
			Output:  make(chan I),
		}
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareSplitter(input.Info(), splitter.mainStep.Details)
		if err != nil {
			return nil, errors.Wrap(err, "unable to run before splitter function")
		}
	}

	return splitter, nil
}

func runSplitterBranch[I any](ctx context.Context, buf <-chan I, output chan<- I, keep SplitterFn[I]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case elem, ok := <-buf:
			if !ok {
				return nil
			}

			if keep != nil {
				ok, err := keep(elem)
				if err != nil {
					return errors.Wrap(err, "unable to run splitter function")
				}

				if !ok {
					continue
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case output <- elem:
			}
		}
	}
}

func runSplitterInput[I any](pipe *Pipeline, input *model.Step[I], splitter *Splitter[I], buffers []chan I) error {
	ctx := pipe.ctx

	for {
		startIter := time.Now()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-input.Output:
			if !ok {
				return nil
			}

			startFn := time.Now()

			for _, buf := range buffers {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case buf <- entry:
				}
			}

			endFn := time.Since(startFn)
			endIter := startFn.Sub(startIter)

			for _, opt := range pipe.opts {
				err := opt.OnSplitterOutput(input.Info(), splitter.mainStep.Details, endIter, endFn)
				if err != nil {
					return errors.Wrap(err, "unable to run splitter output function")
				}
			}
		}
	}
}

func startSplitter[I any](pipe *Pipeline, input *model.Step[I], splitter *Splitter[I], fns []SplitterFn[I]) {
	// one error per branch plus one for the input loop
	errC := make(chan error, splitter.Total+1)

	buffers := make([]chan I, splitter.Total)
	for i := range buffers {
		buffers[i] = make(chan I, splitter.bufferSize)
	}

	wgrp := &sync.WaitGroup{}
	wgrp.Add(len(buffers))

	for i, buf := range buffers {
		var keep SplitterFn[I]
		if fns != nil {
			keep = fns[i]
		}

		go func() {
			defer func() {
				close(splitter.splittedSteps[i].Output)
				wgrp.Done()
			}()

			err := runSplitterBranch(pipe.ctx, buf, splitter.splittedSteps[i].Output, keep)
			if err != nil {
				errC <- err
			}
		}()
	}

	go func() {
		defer func() {
			for _, buf := range buffers {
				close(buf)
			}
			wgrp.Wait()
			close(errC)
		}()

		err := runSplitterInput(pipe, input, splitter, buffers)
		if err != nil {
			errC <- err
		}
	}()

	pipe.errcList.add(newErrorChan(splitter.mainStep.Details.Name, errC))
}

// AddSplitter adds a step copying every element of input to total branches. Use Get to claim each branch.
func AddSplitter[I any](pipe *Pipeline, name string, input *model.Step[I], total int, opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := prepareSplitter(pipe, name, input, total, opts...)
	if err != nil {
		return nil, err
	}

	startSplitter(pipe, input, splitter, nil)

	return splitter, nil
}

// AddSplitterFn adds a step routing elements of input to one branch per function.
// An element reaches every branch whose function returns true.
func AddSplitterFn[I any](pipe *Pipeline, name string, input *model.Step[I], fns []SplitterFn[I], opts ...SplitterOption[I]) (*Splitter[I], error) {
	splitter, err := prepareSplitter(pipe, name, input, len(fns), opts...)
	if err != nil {
		return nil, err
	}

	startSplitter(pipe, input, splitter, fns)

	return splitter, nil
}
