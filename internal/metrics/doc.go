// Package metrics provides build metrics for the site builder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics never need nil checks at call sites:
//
//	b := build.New(cfg) // NoopRecorder
//	b.WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// The dev server registers a PrometheusRecorder and exposes it through
// HTTPHandler at /metrics. One-shot builds keep the NoopRecorder.
package metrics
