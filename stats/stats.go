package stats

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/PeladoCollado/rpcload/types"
)

type Kind int

const (
	Success Kind = iota
	Timeout
	TransportFailure
	StatusFailure
	PayloadFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case TransportFailure:
		return "transport"
	case StatusFailure:
		return "status"
	case PayloadFailure:
		return "payload"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one dispatched request.
type Outcome struct {
	Kind        Kind
	Description string
	Elapsed     time.Duration
}

// Stats aggregates the outcomes of one ramp step. The completed counter is updated
// without locking; every other field changes inside a single critical section per
// outcome.
type Stats struct {
	completed atomic.Uint64

	lock           sync.Mutex
	successful     uint64
	failed         uint64
	timeouts       uint64
	responseMillis int64
	errors         map[string]uint64
	latency        *hdrhistogram.Histogram
}

func New() *Stats {
	return &Stats{
		errors: make(map[string]uint64),
		// 1us to 10min, 3 significant figures
		latency: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

func (s *Stats) Record(outcome Outcome) {
	s.completed.Add(1)

	s.lock.Lock()
	defer s.lock.Unlock()
	if outcome.Kind == Success {
		s.successful++
		s.responseMillis += outcome.Elapsed.Milliseconds()
		_ = s.latency.RecordValue(outcome.Elapsed.Microseconds())
		return
	}
	s.failed++
	if outcome.Kind == Timeout {
		s.timeouts++
	}
	if outcome.Description != "" {
		s.errors[outcome.Description]++
	}
}

// Completed may run ahead of the other counters while workers are active.
func (s *Stats) Completed() uint64 {
	return s.completed.Load()
}

type Latency struct {
	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
	Max time.Duration
}

type Snapshot struct {
	Completed      uint64
	Successful     uint64
	Failed         uint64
	Timeouts       uint64
	ResponseMillis int64
	Errors         map[string]uint64
	Latency        Latency
}

func (s *Stats) Snapshot() Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Snapshot{
		Completed:      s.completed.Load(),
		Successful:     s.successful,
		Failed:         s.failed,
		Timeouts:       s.timeouts,
		ResponseMillis: s.responseMillis,
		Errors:         maps.Clone(s.errors),
		Latency: Latency{
			P50: micros(s.latency.ValueAtQuantile(50)),
			P90: micros(s.latency.ValueAtQuantile(90)),
			P99: micros(s.latency.ValueAtQuantile(99)),
			Max: micros(s.latency.Max()),
		},
	}
}

// AverageResponseMillis divides the success-only response time by every completed
// request, truncating to whole milliseconds.
func (s Snapshot) AverageResponseMillis() int64 {
	if s.Completed == 0 {
		return 0
	}
	return s.ResponseMillis / int64(s.Completed)
}

func (s Snapshot) Result(connections int, elapsed time.Duration) types.RunResult {
	rps := 0.0
	if elapsed > 0 {
		rps = float64(s.Completed) / elapsed.Seconds()
	}
	return types.RunResult{
		Connections:              connections,
		TotalRequests:            s.Completed,
		SuccessfulRequests:       s.Successful,
		FailedRequests:           s.Failed,
		AverageResponseTime:      s.AverageResponseMillis(),
		AverageRequestsPerSecond: rps,
		ElapsedTime:              elapsed,
		TimeoutRequests:          s.Timeouts,
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
