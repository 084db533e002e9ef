// Package metrics provides build and cache metrics for the bundle pipeline.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	svc := build.NewService(deps).WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// PrometheusRecorder registers its collectors on the given registry. The CLI
// dumps that registry to a node-exporter textfile after a build with
// WriteTextfile.
package metrics
