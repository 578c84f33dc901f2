// Package pipeline assembles concurrent data flows out of typed steps connected by channels.
//
// A pipeline starts with one or more root steps producing elements, transforms them through
// one-to-one or one-to-many steps (optionally run by several goroutines), can copy or route
// elements with splitters and join branches with mergers, and ends with sinks.
//
// Steps start as soon as they are added and stop when the pipeline context is done. Run waits
// for every step and returns the first error, wrapped with the name of the step that failed;
// that error cancels the remaining steps.
//
// Options implementing model.PipelineOption observe every step. The measure subpackage records
// step durations and the drawer subpackage renders the step graph as a Graphviz DOT file.
package pipeline
