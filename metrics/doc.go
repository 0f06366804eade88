// Package metrics exposes Prometheus metrics for the dialogue pipeline.
//
// A Collector is a graph.TraceHook: add it to pipeline.Workflow.Hooks to record stage
// durations, stage failures, filled nodes and the latest validation score. Wrap each
// stage's generator with InstrumentGenerator to count model calls.
package metrics
