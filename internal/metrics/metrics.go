package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GraphChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcode_graph_changes_total",
		Help: "Graph change records applied by editors, labelled by kind.",
	}, []string{"kind"})

	ConnectionValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcode_connection_validations_total",
		Help: "Connection validations, labelled by resulting status.",
	}, []string{"status"})

	CodeGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcode_code_generations_total",
		Help: "Code generation requests, labelled by mode and outcome.",
	}, []string{"mode", "outcome"})

	NodesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowcode_nodes_generated_total",
		Help: "Nodes whose template produced code.",
	})

	NodesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowcode_nodes_skipped_total",
		Help: "Nodes skipped because no template exists for the target language.",
	})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowcode_generation_duration_ms",
		Help:    "Whole-graph code generation latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
	})

	CompileQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowcode_compile_queue_utilization_ratio",
		Help: "Current compile queue utilization (0–1).",
	})

	CompileJobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowcode_compile_jobs_dropped_total",
		Help: "Compile jobs rejected because the queue was full.",
	})

	CatalogReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcode_catalog_reloads_total",
		Help: "Template catalog reloads, labelled by outcome.",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowcode_active_sessions",
		Help: "Editor sessions currently held by the API.",
	})
)

// Mode labels for CodeGenerations.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// ObserveProgram records per-node outcomes of one generation.
func ObserveProgram(generated, skipped int) {
	NodesGenerated.Add(float64(generated))
	NodesSkipped.Add(float64(skipped))
}
