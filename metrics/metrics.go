package metrics

import (
	"time"

	"github.com/PeladoCollado/rpcload/types"
	"github.com/prometheus/client_golang/prometheus"
)

type SuccessEvent struct {
	Status       int
	ResponseSize int64
	Duration     time.Duration
}

type ErrorEvent struct {
	Kind     string
	Status   int
	ErrMsg   string
	Duration time.Duration
}

type MetricsCollector interface {
	PostSuccess(event SuccessEvent)
	PostFailure(event ErrorEvent)
}

func NewPrometheusMetricsCollector(r prometheus.Registerer) MetricsCollector {
	c := &PrometheusMetricsCollector{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "request_duration_millis",
			Namespace: "rpcload",
			Help:      "Request duration",
			Buckets:   timeBuckets()}),
		successDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "success_duration_millis",
			Namespace: "rpcload",
			Help:      "Successful request duration",
			Buckets:   timeBuckets()}),
		responseSize: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "response_size_bytes",
			Namespace: "rpcload",
			Help:      "Response size",
			Buckets:   sizeBuckets()}),
		successCounter: prometheus.NewCounter(prometheus.CounterOpts{Name: "success_total",
			Namespace: "rpcload",
			Help:      "Number of successful requests"}),
		failedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "failed_total",
			Namespace: "rpcload",
			Help:      "Number of failed requests by failure kind"}, []string{"kind"}),
	}
	r.MustRegister(c.duration, c.successDuration, c.responseSize, c.successCounter, c.failedCounter)
	return c
}

func timeBuckets() []float64 {
	bucket := float64(1)
	buckets := make([]float64, 0, 128)
	for bucket <= 60000 {
		buckets = append(buckets, bucket)
		if bucket < 10 {
			bucket += 1
		} else if bucket < 100 {
			bucket += 5
		} else if bucket < 1000 {
			bucket += 50
		} else if bucket < 10000 {
			bucket += 500
		} else {
			bucket += 5000
		}
	}
	return buckets
}

const MB = 1 << 20

func sizeBuckets() []float64 {
	bucket := float64(64)
	buckets := make([]float64, 0, 32)
	for bucket < 64*MB {
		buckets = append(buckets, bucket)
		bucket *= 2
	}
	return buckets
}

type PrometheusMetricsCollector struct {
	duration        prometheus.Histogram
	successDuration prometheus.Histogram
	responseSize    prometheus.Histogram
	successCounter  prometheus.Counter
	failedCounter   *prometheus.CounterVec
}

func (b *PrometheusMetricsCollector) PostSuccess(event SuccessEvent) {
	b.duration.Observe(float64(event.Duration.Milliseconds()))
	b.successDuration.Observe(float64(event.Duration.Milliseconds()))
	b.responseSize.Observe(float64(event.ResponseSize))
	b.successCounter.Inc()
}

func (b *PrometheusMetricsCollector) PostFailure(event ErrorEvent) {
	b.duration.Observe(float64(event.Duration.Milliseconds()))
	b.failedCounter.WithLabelValues(event.Kind).Inc()
}

// RampMetrics publishes step level progress of the ramp and the state of the targets.
type RampMetrics struct {
	connections    prometheus.Gauge
	stepsCompleted prometheus.Counter
	stepRPS        prometheus.Gauge
	stepAvgMillis  prometheus.Gauge
	podCPU         *prometheus.GaugeVec
	podMemory      *prometheus.GaugeVec
}

func NewRampMetrics(r prometheus.Registerer) *RampMetrics {
	m := &RampMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcload",
			Subsystem: "ramp",
			Name:      "connections",
			Help:      "Connection count of the step currently running",
		}),
		stepsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rpcload",
			Subsystem: "ramp",
			Name:      "steps_completed_total",
			Help:      "Number of finished ramp steps",
		}),
		stepRPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcload",
			Subsystem: "ramp",
			Name:      "last_step_requests_per_second",
			Help:      "Average requests per second of the last finished step",
		}),
		stepAvgMillis: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcload",
			Subsystem: "ramp",
			Name:      "last_step_average_response_millis",
			Help:      "Average response time of the last finished step",
		}),
		podCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rpcload",
			Subsystem: "target",
			Name:      "pod_cpu_millicores",
			Help:      "CPU usage of target pods in millicores",
		}, []string{"namespace", "pod"}),
		podMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rpcload",
			Subsystem: "target",
			Name:      "pod_memory_bytes",
			Help:      "Memory usage of target pods in bytes",
		}, []string{"namespace", "pod"}),
	}
	r.MustRegister(m.connections, m.stepsCompleted, m.stepRPS, m.stepAvgMillis, m.podCPU, m.podMemory)
	return m
}

func (m *RampMetrics) SetConnections(count int) {
	m.connections.Set(float64(count))
}

func (m *RampMetrics) RecordStep(result types.RunResult) {
	m.stepsCompleted.Inc()
	m.stepRPS.Set(result.AverageRequestsPerSecond)
	m.stepAvgMillis.Set(float64(result.AverageResponseTime))
}

func (m *RampMetrics) SetTargetPodUsage(namespace string, pod string, cpuMillicores int64, memoryBytes int64) {
	m.podCPU.WithLabelValues(namespace, pod).Set(float64(cpuMillicores))
	m.podMemory.WithLabelValues(namespace, pod).Set(float64(memoryBytes))
}

func (m *RampMetrics) ResetTargetPodUsage() {
	m.podCPU.Reset()
	m.podMemory.Reset()
}
