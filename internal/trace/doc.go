// Package trace is the diagnostic output layer of xpeep.
//
// Passes and the driver report what they do as trace events instead of
// printing: spans mark the boundaries of a driver run, a pass over one
// function, or a single rewrite, and point events record individual
// decisions (a block visited, a candidate rejected, an instruction erased).
//
// # Usage
//
//	xpeep opt --trace=- --trace-level=detail prog.s
//
// # Tracers
//
//   - Nop: no-op tracer used when tracing is off
//   - StreamTracer: writes every event immediately (file or stderr)
//   - RingTracer: keeps the last N events in memory for crash dumps
//   - MultiTracer: fans events out to several tracers
//
// # Levels and scopes
//
// Levels off, error, phase, detail and debug select which scopes are emitted:
// phase shows driver and pass events, detail adds per-function events and
// debug adds per-block decisions.
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "xcal-peephole", 0)
//	defer span.End("")
package trace
