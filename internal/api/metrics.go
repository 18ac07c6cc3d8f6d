package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdict_evaluations_total",
		Help: "Completed risk evaluations by tier and decision.",
	}, []string{"tier", "decision"})

	evaluationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "verdict_evaluation_seconds",
		Help:    "Evaluation latency from decode to persisted assessment.",
		Buckets: prometheus.DefBuckets,
	})

	ruleTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdict_rule_triggers_total",
		Help: "Business rule hits by rule code, hard and soft.",
	}, []string{"rule_code"})

	modelPublishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdict_model_publishes_total",
		Help: "Model versions published.",
	})
)
