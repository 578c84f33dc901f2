package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/askiada/gradle-usage/pkg/pipeline/model"
)

var concurrencyCases = map[string]struct {
	concurrent int
}{
	"sequential":     {concurrent: 1},
	"sequential v2":  {concurrent: 0},
	"concurrent 2":   {concurrent: 2},
	"concurrent 100": {concurrent: 100},
}

func TestOneToOne(t *testing.T) {
	t.Parallel()

	for name, tc := range concurrencyCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: createInputChan(t, 10)}
			got := make(chan []int, 1)
			output := &model.Step[int]{Output: make(chan int), Details: &model.StepInfo{Concurrent: tc.concurrent}}

			go func() {
				got <- processOutputChan(t, output.Output)
			}()

			go func() {
				defer close(output.Output)
				err := runOneToOne(ctx, input, output, func(ctx context.Context, i int) (int, error) {
					return i, nil
				}, false)
				assert.NoError(t, err)
			}()

			assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, <-got)
		})
	}
}

func TestOneToOneOrZero(t *testing.T) {
	t.Parallel()

	for name, tc := range concurrencyCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: createInputChan(t, 10)}
			got := make(chan []int, 1)
			output := &model.Step[int]{Output: make(chan int), Details: &model.StepInfo{Concurrent: tc.concurrent}}

			go func() {
				got <- processOutputChan(t, output.Output)
			}()

			go func() {
				defer close(output.Output)
				err := runOneToOne(ctx, input, output, func(ctx context.Context, i int) (int, error) {
					if i%2 == 0 {
						return 0, nil
					}

					return i, nil
				}, true)
				assert.NoError(t, err)
			}()

			assert.ElementsMatch(t, []int{1, 3, 5, 7, 9}, <-got)
		})
	}
}

func TestOneToOneCancelInput(t *testing.T) {
	t.Parallel()

	for name, tc := range concurrencyCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: createInputChanWithCancel(t, 10, 5, cancel)}
			got := make(chan []int, 1)
			output := &model.Step[int]{Output: make(chan int), Details: &model.StepInfo{Concurrent: tc.concurrent}}

			go func() {
				got <- processOutputChan(t, output.Output)
			}()

			go func() {
				defer close(output.Output)
				err := runOneToOne(ctx, input, output, func(ctx context.Context, i int) (int, error) {
					return i, nil
				}, false)
				assert.ErrorIs(t, err, context.Canceled)
			}()

			assert.NotZero(t, <-got)
		})
	}
}

func TestOneToOneError(t *testing.T) {
	t.Parallel()

	for name, tc := range concurrencyCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: createInputChan(t, 10)}
			got := make(chan []int, 1)
			output := &model.Step[int]{Output: make(chan int), Details: &model.StepInfo{Concurrent: tc.concurrent}}

			go func() {
				got <- processOutputChan(t, output.Output)
			}()

			go func() {
				defer close(output.Output)
				err := runOneToOne(ctx, input, output, func(ctx context.Context, i int) (int, error) {
					if i == 5 {
						return 0, assert.AnError
					}

					return i, nil
				}, false)
				assert.Error(t, err)
			}()

			assert.NotContains(t, <-got, 5)
		})
	}
}

func TestOneToOneOutputHook(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	input := &model.Step[int]{Output: createInputChan(t, 10)}
	output := &model.Step[int]{Output: make(chan int, 10), Details: &model.StepInfo{Concurrent: 1}}

	calls := 0
	err := runOneToOne(ctx, input, output, func(ctx context.Context, i int) (int, error) {
		return i, nil
	}, false, func(iterationDuration, computationDuration time.Duration) error {
		calls++

		return nil
	})
	close(output.Output)

	assert.NoError(t, err)
	assert.Equal(t, 10, calls)
}

func TestOneToMany(t *testing.T) {
	t.Parallel()

	for name, tc := range concurrencyCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: createInputChan(t, 10)}
			got := make(chan []int, 1)
			output := &model.Step[int]{Output: make(chan int), Details: &model.StepInfo{Concurrent: tc.concurrent}}

			go func() {
				got <- processOutputChan(t, output.Output)
			}()

			go func() {
				defer close(output.Output)
				err := runOneToMany(ctx, input, output, func(ctx context.Context, i int) ([]int, error) {
					return []int{i, i * 10}, nil
				})
				assert.NoError(t, err)
			}()

			assert.ElementsMatch(t, []int{0, 0, 1, 10, 2, 20, 3, 30, 4, 40, 5, 50, 6, 60, 7, 70, 8, 80, 9, 90}, <-got)
		})
	}
}

func TestOneToManyError(t *testing.T) {
	t.Parallel()

	for name, tc := range concurrencyCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			input := &model.Step[int]{Output: createInputChan(t, 10)}
			got := make(chan []int, 1)
			output := &model.Step[int]{Output: make(chan int), Details: &model.StepInfo{Concurrent: tc.concurrent}}

			go func() {
				got <- processOutputChan(t, output.Output)
			}()

			go func() {
				defer close(output.Output)

				err := runOneToMany(ctx, input, output, func(ctx context.Context, i int) ([]int, error) {
					if i == 5 {
						return nil, assert.AnError
					}

					return []int{i, i * 10}, nil
				})
				assert.ErrorIs(t, err, assert.AnError)
			}()

			assert.NotContains(t, <-got, 50)
		})
	}
}

func TestIsZero(t *testing.T) {
	t.Parallel()

	type project struct {
		Path    string
		Version string
	}

	assert.True(t, isZero(0))
	assert.True(t, isZero(""))
	assert.True(t, isZero(project{}))
	assert.True(t, isZero[*project](nil))
	assert.False(t, isZero(project{Path: "app"}))
	assert.False(t, isZero(7))
}
