// Package plugin is the typed extension registry and lifecycle hook bus.
//
// Plugins come in a fixed taxonomy (policy evaluators, risk scorers,
// risk engines, compliance modules, lifecycle hooks, data sanitizers)
// and the registry indexes them by id and by type. Lifecycle hooks
// additionally bind to one pipeline stage and are fanned out at that
// stage by the executor.
//
// Hook execution is isolated: a panic or error in one hook is captured
// into its result and never prevents the remaining hooks from running.
// What to do with the collected results is the caller's decision; the
// one convention the bus defines is that a pre-request hook may answer
// with an abort status to veto the request, or a continue status with a
// replacement context.
package plugin
