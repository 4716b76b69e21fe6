// Package kernel defines the contract between the orchestration layer and
// the numerical engine, together with the in-memory model container the
// reference engine works on.
//
// A [Model] owns root [ModelPart]s. Sub model parts share nodes, elements,
// conditions, properties and the [ProcessInfo] of their root; they only
// record membership. The process info carries the simulation clock (step,
// time, delta time). Out-of-band evaluations must go through
// [ProcessInfo.Probe] so the clock is restored on every exit path:
//
//	err := info.Probe(kernel.Clock{Step: s - 1, Time: t - 1}, func() error {
//	    return response.CalculateValue()
//	})
//
// Engine failures are reported as [*EngineError] and match [ErrEngine].
package kernel
