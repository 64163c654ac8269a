package rcd

import (
	"log/slog"
)

// Tracer receives the progress facts of a run. Tracing never influences the
// ranking.
type Tracer interface {
	TraceStep(s StepResult)
	TraceFailure(err *UnrankableError)
}

// DefaultTracer discards everything.
type DefaultTracer struct{}

func (DefaultTracer) TraceStep(StepResult) {}

func (DefaultTracer) TraceFailure(*UnrankableError) {}

// LoggingTracer writes one structured record per step.
type LoggingTracer struct {
	Logger *slog.Logger
}

func (t LoggingTracer) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t LoggingTracer) TraceStep(s StepResult) {
	t.logger().Debug("RCD step",
		"iteration", s.Iteration,
		"ranked", s.Ranked(),
		"explained", s.Explained,
		"pruned", s.Pruned,
		"rows_left", s.Grid.Rows(),
		"constraints_left", s.Grid.Columns(),
		"done", s.Done)
}

func (t LoggingTracer) TraceFailure(err *UnrankableError) {
	t.logger().Warn("RCD failed",
		"iteration", err.Iteration,
		"reason", string(err.Reason),
		"ranked_so_far", err.Order.String())
}

// Tracers fans out to several tracers in order.
type Tracers []Tracer

func (ts Tracers) TraceStep(s StepResult) {
	for _, t := range ts {
		t.TraceStep(s)
	}
}

func (ts Tracers) TraceFailure(err *UnrankableError) {
	for _, t := range ts {
		t.TraceFailure(err)
	}
}
