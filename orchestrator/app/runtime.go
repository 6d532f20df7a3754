package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/rest"

	"github.com/PeladoCollado/rpcload/executor/transport"
	"github.com/PeladoCollado/rpcload/executor/worker"
	"github.com/PeladoCollado/rpcload/metrics"
	"github.com/PeladoCollado/rpcload/orchestrator/api"
	"github.com/PeladoCollado/rpcload/orchestrator/k8s"
	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/PeladoCollado/rpcload/orchestrator/manager"
	"github.com/PeladoCollado/rpcload/orchestrator/report"
	"github.com/PeladoCollado/rpcload/orchestrator/shutdown"
)

type RunOptions struct {
	RequestSourceFactory  RequestSourceFactory
	LoadCalculatorFactory LoadCalculatorFactory

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	// KubeClient replaces the client built from the kubeconfig in pod and service mode.
	KubeClient *k8s.Client

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// feeder is a request source that needs a producer running next to the ramp.
type feeder interface {
	Feed(ctx context.Context, r io.Reader, errOut io.Writer) error
	ParseFailures() uint64
}

// Run executes the whole ramp and writes the results file. It returns once the ramp is
// over, either because every step ran or because shutdown was requested.
func Run(ctx context.Context, cfg Config, opts RunOptions) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	logger.SetVerbosity(cfg.Verbosity)
	opts = withDefaultStreams(opts)
	runID := uuid.NewString()

	source, err := requestSourceFactoryOrDefault(opts.RequestSourceFactory).NewRequestSource(cfg)
	if err != nil {
		return fmt.Errorf("initialize request source: %w", err)
	}
	plan, err := loadCalculatorFactoryOrDefault(opts.LoadCalculatorFactory).NewLoadCalculator(cfg)
	if err != nil {
		return fmt.Errorf("initialize ramp plan: %w", err)
	}

	kubeClient, err := kubeClientFor(cfg, opts)
	if err != nil {
		return err
	}
	resolver, err := k8s.NewTargetResolver(kubeClient, k8s.TargetResolverConfig{
		Mode:       cfg.TargetMode,
		URLs:       cfg.URLs,
		Namespace:  cfg.TargetNamespace,
		Deployment: cfg.TargetDeployment,
		Service:    cfg.TargetService,
		PortName:   cfg.TargetPortName,
		Scheme:     cfg.TargetScheme,
		Path:       cfg.TargetPath,
	})
	if err != nil {
		return fmt.Errorf("initialize target resolver: %w", err)
	}
	targets, err := resolver.ResolveTargets(ctx)
	if err != nil {
		return fmt.Errorf("resolve targets: %w", err)
	}
	endpoints, err := worker.NewEndpointSelector(cfg.EndpointSelection, targets)
	if err != nil {
		return fmt.Errorf("initialize endpoints: %w", err)
	}

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	rampMetrics := metrics.NewRampMetrics(registerer)
	progress := manager.NewProgress(runID)
	signal := shutdown.NewSignal()

	reporters := []manager.StepReporter{report.NewConsole(opts.Stdout)}
	if kubeClient != nil {
		reporters = append(reporters, &k8s.UsageReporter{Resolver: resolver, Client: kubeClient, Metrics: rampMetrics})
	}
	controller := &manager.Controller{
		RunID:  runID,
		Plan:   plan,
		Config: cfg.RunConfig(),
		Source: source,
		Transport: transport.NewHTTPTransport(transport.Options{
			RetryMax:     cfg.RetryMax,
			CaptureBytes: max(cfg.MinBodyBytes, worker.DefaultMinBodyBytes),
		}),
		Endpoints:   endpoints,
		Classifier:  worker.Classifier{MinBodyBytes: cfg.MinBodyBytes},
		Shutdown:    signal,
		Metrics:     metrics.NewPrometheusMetricsCollector(registerer),
		RampMetrics: rampMetrics,
		Progress:    progress,
		Reporters:   reporters,
	}
	var statusListener net.Listener
	if cfg.ListenPort > 0 {
		statusListener, err = api.Bind(cfg.ListenPort)
		if err != nil {
			return err
		}
	}
	logger.Logger.Infow("Starting load test",
		"runId", runID,
		"targets", targets,
		"plan", plan.Plan(),
		"requestsPerConnection", cfg.Requests,
		"durationSeconds", cfg.DurationSeconds)

	// signals stay registered until the results are written
	listenCtx, stopListening := context.WithCancel(context.Background())
	defer stopListening()
	go shutdown.Listen(listenCtx, signal)
	stopRaise := context.AfterFunc(ctx, func() { signal.Raise() })
	defer stopRaise()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	if statusListener != nil {
		g.Go(func() error {
			return api.Serve(gctx, statusListener, api.NewHandler(progress, gatherer))
		})
	}
	stream, streaming := source.(feeder)
	if streaming {
		// blocked stdin reads cannot be interrupted, so the producer is not waited on
		go func() {
			if err := stream.Feed(runCtx, opts.Stdin, opts.Stderr); err != nil {
				logger.Logger.Warnw("Request stream stopped", "error", err)
			}
		}()
	}

	results := controller.Execute(runCtx)
	cancel()
	serveErr := g.Wait()

	if streaming && stream.ParseFailures() > 0 {
		logger.Logger.Warnw("Skipped malformed requests", "runId", runID, "count", stream.ParseFailures())
	}
	if err := report.ExportCSV(cfg.Output, results); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Results have been exported to %s\n", cfg.Output)
	return serveErr
}

func kubeClientFor(cfg Config, opts RunOptions) (*k8s.Client, error) {
	if cfg.TargetMode == k8s.TargetModeURL {
		return nil, nil
	}
	if opts.KubeClient != nil {
		return opts.KubeClient, nil
	}
	kubeConfig, err := initKubeConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize kubernetes config: %w", err)
	}
	client, err := k8s.NewClient(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("initialize kubernetes clients: %w", err)
	}
	return client, nil
}

func initKubeConfig(cfg Config) (*rest.Config, error) {
	if cfg.InCluster {
		return k8s.InitInCluster()
	}
	return k8s.InitOffCluster(cfg.Kubeconfig)
}

func withDefaultStreams(opts RunOptions) RunOptions {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}
