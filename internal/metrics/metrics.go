// Package metrics records upload pipeline counters and timings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Upload outcomes.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Pipeline stages.
const (
	StageMetadata = "metadata"
	StageDecode   = "decode"
	StageOriginal = "encode_original"
	StageResize   = "resize"
)

// Pipeline observes the upload pipeline.
type Pipeline interface {
	IncFilesProcessed(result string)
	IncArtifactsWritten(class string)
	ObserveStage(stage string, durationSeconds float64)
	IncEventsPublished(status string)
}

// Noop implements Pipeline without emitting anything.
type Noop struct{}

func (Noop) IncFilesProcessed(string)     {}
func (Noop) IncArtifactsWritten(string)   {}
func (Noop) ObserveStage(string, float64) {}
func (Noop) IncEventsPublished(string)    {}

// Prom implements Pipeline backed by Prometheus collectors.
type Prom struct {
	filesProcessed   *prometheus.CounterVec
	artifactsWritten *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	eventsPublished  *prometheus.CounterVec
}

// NewProm registers the collectors on reg, or on the default registerer
// when reg is nil.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_files_total",
			Help:      "Uploaded files by outcome",
		}, []string{"result"}),
		artifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Artifacts persisted by class",
		}, []string{"class"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent per upload pipeline stage",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Upload events by publish status",
		}, []string{"status"}),
	}
	reg.MustRegister(p.filesProcessed, p.artifactsWritten, p.stageDuration, p.eventsPublished)
	return p
}

func (p *Prom) IncFilesProcessed(result string) {
	p.filesProcessed.WithLabelValues(result).Inc()
}

func (p *Prom) IncArtifactsWritten(class string) {
	p.artifactsWritten.WithLabelValues(class).Inc()
}

func (p *Prom) ObserveStage(stage string, durationSeconds float64) {
	p.stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

func (p *Prom) IncEventsPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}
