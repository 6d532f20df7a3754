package manager

import (
	"context"
	"sync"
	"time"

	"github.com/PeladoCollado/rpcload/executor/transport"
	"github.com/PeladoCollado/rpcload/executor/worker"
	"github.com/PeladoCollado/rpcload/metrics"
	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/PeladoCollado/rpcload/orchestrator/shutdown"
	"github.com/PeladoCollado/rpcload/stats"
	"github.com/PeladoCollado/rpcload/types"
)

// defaultDrainGrace bounds the wait for in-flight requests when no request timeout is set.
const defaultDrainGrace = 15 * time.Second

// StepReport is handed to every StepReporter once a ramp step has been summarized.
type StepReport struct {
	Step     int
	Result   types.RunResult
	Snapshot stats.Snapshot
}

// StepReporter observes finished steps. Reporters own their failures: they log and move on.
type StepReporter interface {
	ReportStep(ctx context.Context, report StepReport)
}

type StepReporterFunc func(ctx context.Context, report StepReport)

func (f StepReporterFunc) ReportStep(ctx context.Context, report StepReport) {
	f(ctx, report)
}

// Controller walks the ramp plan one step at a time. Each step gets its own Stats and
// exactly as many workers as the plan says, all sharing the Source and the Transport.
type Controller struct {
	RunID       string
	Plan        LoadCalculator
	Config      types.RunConfig
	Source      types.RequestSource
	Endpoints   worker.EndpointSelector
	Transport   transport.Transport
	Classifier  worker.Classifier
	Shutdown    *shutdown.Signal
	Metrics     metrics.MetricsCollector
	RampMetrics *metrics.RampMetrics
	Progress    *Progress
	Reporters   []StepReporter
}

// Execute runs the ramp and returns one RunResult per executed step. A step cut short by
// shutdown is still reported, and no step starts after it.
func (c *Controller) Execute(ctx context.Context) []types.RunResult {
	plan := c.Plan.Plan()
	results := make([]types.RunResult, 0, len(plan))
	defer c.Progress.Finish()

	for i, connections := range plan {
		result, snapshot := c.runStep(connections)
		results = append(results, result)

		logger.Logger.Infow("Finished ramp step",
			"runId", c.RunID,
			"step", i+1,
			"connections", connections,
			"total", result.TotalRequests,
			"successful", result.SuccessfulRequests,
			"failed", result.FailedRequests,
			"timeouts", result.TimeoutRequests,
			"elapsed", result.ElapsedTime.String())
		if c.RampMetrics != nil {
			c.RampMetrics.RecordStep(result)
		}
		c.Progress.FinishStep(result)
		report := StepReport{Step: i + 1, Result: result, Snapshot: snapshot}
		for _, reporter := range c.Reporters {
			reporter.ReportStep(ctx, report)
		}

		if c.Shutdown.Raised() {
			logger.Logger.Warnw("Shutdown observed, skipping remaining ramp steps",
				"runId", c.RunID, "remaining", len(plan)-i-1)
			break
		}
	}
	return results
}

func (c *Controller) runStep(connections int) (types.RunResult, stats.Snapshot) {
	stepStats := stats.New()
	c.Progress.StartStep(connections, stepStats)
	if c.RampMetrics != nil {
		c.RampMetrics.SetConnections(connections)
	}
	logger.Logger.Infow("Starting ramp step", "runId", c.RunID, "connections", connections)

	var wg sync.WaitGroup
	finished := make(chan struct{})
	started := time.Now()
	for i := 0; i < connections; i++ {
		w := &worker.Worker{
			Config:     c.Config,
			Stats:      stepStats,
			Source:     c.Source,
			Endpoints:  c.Endpoints,
			Transport:  c.Transport,
			Classifier: c.Classifier,
			Shutdown:   c.Shutdown,
			Metrics:    c.Metrics,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run()
		}()
	}
	go func() {
		wg.Wait()
		close(finished)
	}()

	var elapsed time.Duration
	select {
	case <-finished:
		elapsed = time.Since(started)
	case <-c.Shutdown.Done():
		elapsed = time.Since(started)
		c.drain(finished)
	}

	snapshot := stepStats.Snapshot()
	return snapshot.Result(connections, elapsed), snapshot
}

// drain gives requests already in flight at shutdown one request timeout to land in
// Stats so the snapshot adds up.
func (c *Controller) drain(finished <-chan struct{}) {
	grace := c.Config.Timeout
	if grace <= 0 {
		grace = defaultDrainGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		logger.Logger.Warnw("Workers still busy after shutdown grace period", "runId", c.RunID, "grace", grace.String())
	}
}
