package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smallnest/dialoggraph/graph"
	"github.com/smallnest/dialoggraph/llm"
)

// Collector holds the pipeline's Prometheus metrics and records them from workflow trace
// events.
type Collector struct {
	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	GenerationCalls *prometheus.CounterVec
	GenerationTime  *prometheus.HistogramVec
	NodesFilled     prometheus.Counter
	MinScore        prometheus.Gauge
	Runs            *prometheus.CounterVec
}

var _ graph.TraceHook = (*Collector)(nil)

// NewCollector creates the collectors and registers them on reg. A nil reg skips
// registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dialoggraph_stage_duration_seconds",
				Help:    "Duration of workflow stages",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialoggraph_stage_errors_total",
				Help: "Total number of failed workflow stage attempts",
			},
			[]string{"stage"},
		),
		GenerationCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialoggraph_generation_calls_total",
				Help: "Total number of model generation calls",
			},
			[]string{"stage", "outcome"},
		),
		GenerationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dialoggraph_generation_duration_seconds",
				Help:    "Duration of model generation calls",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"stage"},
		),
		NodesFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dialoggraph_nodes_filled_total",
			Help: "Total number of dialogue nodes filled with content",
		}),
		MinScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dialoggraph_validation_min_score",
			Help: "Lowest criterion score of the most recent validation",
		}),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialoggraph_runs_total",
				Help: "Total number of workflow runs by result",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.StageDuration, c.StageErrors, c.GenerationCalls, c.GenerationTime,
			c.NodesFilled, c.MinScore, c.Runs)
	}
	return c
}

// OnEvent implements graph.TraceHook.
func (c *Collector) OnEvent(_ context.Context, span *graph.TraceSpan) {
	switch span.Event {
	case graph.TraceEventNodeEnd:
		c.StageDuration.WithLabelValues(span.NodeName).Observe(span.Duration.Seconds())
		if span.NodeName == "content" {
			if n, ok := span.Metadata["nodes_filled"].(int); ok {
				c.NodesFilled.Add(float64(n))
			}
		}
		if score, ok := span.Metadata["min_score"].(int); ok {
			c.MinScore.Set(float64(score))
		}
	case graph.TraceEventNodeError:
		c.StageErrors.WithLabelValues(span.NodeName).Inc()
	case graph.TraceEventGraphEnd:
		result := "ok"
		if span.Error != nil {
			result = "error"
		}
		c.Runs.WithLabelValues(result).Inc()
	}
}

// InstrumentGenerator counts and times every call gen makes, labelled with stage.
func (c *Collector) InstrumentGenerator(stage string, gen llm.Generator) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, prompt, systemPrompt string) (map[string]any, error) {
		start := time.Now()
		out, err := gen.Generate(ctx, prompt, systemPrompt)
		c.GenerationTime.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.GenerationCalls.WithLabelValues(stage, outcome).Inc()
		return out, err
	})
}
