// Package metrics exposes Prometheus instrumentation for the sync engine.
//
// A Recorder registers its collectors on a caller-supplied registry, so tests
// and embedders never touch the global default. Every method is safe on a nil
// *Recorder, which lets components run uninstrumented.
package metrics
