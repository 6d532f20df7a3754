package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/PeladoCollado/rpcload/executor/transport"
	"github.com/PeladoCollado/rpcload/metrics"
	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/PeladoCollado/rpcload/orchestrator/shutdown"
	"github.com/PeladoCollado/rpcload/stats"
	"github.com/PeladoCollado/rpcload/types"
)

// Worker is one connection: a loop that keeps issuing requests until its request
// limit, its duration, the request source, or the shutdown signal stops it.
type Worker struct {
	Config     types.RunConfig
	Stats      *stats.Stats
	Source     types.RequestSource
	Endpoints  EndpointSelector
	Transport  transport.Transport
	Classifier Classifier
	Shutdown   *shutdown.Signal
	Metrics    metrics.MetricsCollector
}

// Run executes the loop and returns the number of requests issued. A request already
// in flight is never interrupted by shutdown; the flag is checked between requests.
func (w *Worker) Run() int {
	started := time.Now()
	waitCtx := w.Shutdown.Context()
	if w.Config.Duration > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithDeadline(waitCtx, started.Add(w.Config.Duration))
		defer cancel()
	}

	issued := 0
	for {
		if w.Shutdown.Raised() {
			return issued
		}
		if w.Config.RequestsPerConnection > 0 && issued >= w.Config.RequestsPerConnection {
			return issued
		}
		if w.Config.Duration > 0 && time.Since(started) >= w.Config.Duration {
			return issued
		}

		request, err := w.Source.Next(waitCtx)
		if err != nil {
			logger.Logger.Debugw("Request source stopped worker", "error", err)
			return issued
		}
		issued++
		w.dispatch(w.Endpoints.Pick(), request)
	}
}

func (w *Worker) dispatch(target string, request types.Request) {
	payload, err := json.Marshal(request)
	if err != nil {
		w.record(transport.Reply{}, stats.Outcome{Kind: stats.TransportFailure, Description: err.Error()})
		return
	}

	callCtx := context.Background()
	cancel := context.CancelFunc(func() {})
	if w.Config.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, w.Config.Timeout)
	}
	start := time.Now()
	reply, timedOut, err := w.race(callCtx, target, payload)
	elapsed := time.Since(start)
	// losing the race drops interest and tells the transport to give up
	cancel()

	if err != nil {
		logger.Logger.Debugw("Request failed", "target", target, "error", err)
	}
	w.record(reply, w.Classifier.Classify(reply, err, timedOut, elapsed))
}

type callResult struct {
	reply transport.Reply
	err   error
}

// race runs the exchange against the deadline of ctx. The result wins a tie.
func (w *Worker) race(ctx context.Context, target string, payload []byte) (transport.Reply, bool, error) {
	done := make(chan callResult, 1)
	go func() {
		reply, err := w.Transport.Call(ctx, target, payload)
		done <- callResult{reply: reply, err: err}
	}()

	select {
	case result := <-done:
		timedOut := result.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
		return result.reply, timedOut, result.err
	case <-ctx.Done():
		select {
		case result := <-done:
			if result.err == nil {
				return result.reply, false, nil
			}
		default:
		}
		return transport.Reply{}, true, ctx.Err()
	}
}

func (w *Worker) record(reply transport.Reply, outcome stats.Outcome) {
	w.Stats.Record(outcome)
	if w.Metrics == nil {
		return
	}
	if outcome.Kind == stats.Success {
		w.Metrics.PostSuccess(metrics.SuccessEvent{
			Status:       reply.Status,
			ResponseSize: reply.Size,
			Duration:     outcome.Elapsed,
		})
		return
	}
	w.Metrics.PostFailure(metrics.ErrorEvent{
		Kind:     outcome.Kind.String(),
		Status:   reply.Status,
		ErrMsg:   outcome.Description,
		Duration: outcome.Elapsed,
	})
}
