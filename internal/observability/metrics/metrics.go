package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "funcionariopro"

// GenerationMetrics exposes counters/histograms for LLM-backed flows.
type GenerationMetrics struct {
	llmLatency         *prometheus.HistogramVec
	llmTotal           *prometheus.CounterVec
	simulationAttempts *prometheus.CounterVec
	simulationTotal    *prometheus.CounterVec
	followUpTotal      *prometheus.CounterVec
	chatTotal          *prometheus.CounterVec
}

func NewGenerationMetrics(reg prometheus.Registerer) *GenerationMetrics {
	m := &GenerationMetrics{
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "Latency of chat-completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30, 60},
		}, []string{"provider", "outcome"}),
		llmTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total chat-completion calls",
		}, []string{"provider", "outcome"}),
		simulationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "attempts_total",
			Help:      "Script generation attempts by validation result",
		}, []string{"result"}),
		simulationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Finished script generation runs by terminal state",
		}, []string{"state"}),
		followUpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "followup_total",
			Help:      "Follow-up questions by outcome",
		}, []string{"outcome"}),
		chatTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Live chat replies by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.llmLatency, m.llmTotal, m.simulationAttempts, m.simulationTotal, m.followUpTotal, m.chatTotal)
	return m
}

func (m *GenerationMetrics) ObserveLLMCall(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.llmLatency.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
	m.llmTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveAttempt records one validation result ("accepted" or "rejected").
func (m *GenerationMetrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.simulationAttempts.WithLabelValues(result).Inc()
}

// ObserveRun records a terminal retry state ("accepted" or "exhausted").
func (m *GenerationMetrics) ObserveRun(state string) {
	if m == nil {
		return
	}
	m.simulationTotal.WithLabelValues(state).Inc()
}

// ObserveFollowUp records "answered" or "dropped".
func (m *GenerationMetrics) ObserveFollowUp(outcome string) {
	if m == nil {
		return
	}
	m.followUpTotal.WithLabelValues(outcome).Inc()
}

// ObserveChat records the outcome of a live chat reply.
func (m *GenerationMetrics) ObserveChat(outcome string) {
	if m == nil {
		return
	}
	m.chatTotal.WithLabelValues(outcome).Inc()
}
