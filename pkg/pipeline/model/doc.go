// Package model provides the data structures shared by the pipeline package and its options.
// It defines the steps moving data through a pipeline, the details describing each step,
// and the hooks a pipeline option implements to observe a run.
package model
