package model

// StepType identifies the role of a step in a pipeline.
type StepType string

const (
	RootStepType     StepType = "root"
	NormalStepType   StepType = "step"
	SplitterStepType StepType = "splitter"
	SinkStepType     StepType = "sink"
	MergerStepType   StepType = "merger"
)

// StepInfo describes a step. Options receive it in every hook.
type StepInfo struct {
	Type       StepType
	Name       string
	Concurrent int
	BufferSize int
}

// StartStep and EndStep are virtual steps. Root steps hang off StartStep and sinks lead to EndStep.
var (
	StartStep = &Step[any]{Details: &StepInfo{Name: "start"}}
	EndStep   = &Step[any]{Details: &StepInfo{Name: "end"}}
)

// Step is the output side of a pipeline stage.
type Step[O any] struct {
	Output   chan O
	KeepOpen bool
	Details  *StepInfo
}

// Info returns the step details, falling back to StartStep for steps created outside a pipeline.
func (s *Step[O]) Info() *StepInfo {
	if s == nil || s.Details == nil {
		return StartStep.Details
	}

	return s.Details
}
