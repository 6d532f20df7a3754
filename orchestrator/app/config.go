package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/PeladoCollado/rpcload/executor/worker"
	"github.com/PeladoCollado/rpcload/orchestrator/k8s"
	"github.com/PeladoCollado/rpcload/types"
)

const (
	RampLinear      = "linear"
	RampExponential = "exponential"

	envPrefix = "RPCLOAD"
)

type Config struct {
	TimeoutMillis   int
	URLs            []string
	Connections     int
	Requests        int
	Step            int
	File            string
	DurationSeconds int
	Output          string
	Verbosity       int
	Pipe            bool

	MinBodyBytes      int64
	EndpointSelection string
	Ramp              string
	RetryMax          int
	StreamBuffer      int
	ListenPort        int

	TargetMode       string
	TargetNamespace  string
	TargetDeployment string
	TargetService    string
	TargetPortName   string
	TargetScheme     string
	TargetPath       string
	InCluster        bool
	Kubeconfig       string

	ConfigFile string
}

func DefaultConfig() Config {
	return Config{
		TimeoutMillis: 15000,
		Output:        "results.csv",

		MinBodyBytes:      worker.DefaultMinBodyBytes,
		EndpointSelection: worker.SelectRandom,
		Ramp:              RampLinear,
		StreamBuffer:      1024,

		TargetMode:      k8s.TargetModeURL,
		TargetNamespace: "default",
		TargetPortName:  "http",
		TargetScheme:    "http",
	}
}

func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.IntVarP(&cfg.TimeoutMillis, "timeout", "t", cfg.TimeoutMillis, "Request timeout in milliseconds")
	fs.StringSliceVarP(&cfg.URLs, "url", "u", cfg.URLs, "List of server URLs separated by commas")
	fs.IntVarP(&cfg.Connections, "connections", "c", cfg.Connections, "Number of concurrent connections to establish")
	fs.IntVarP(&cfg.Requests, "requests", "r", cfg.Requests, "Number of requests per connection (0 for time-based test)")
	fs.IntVarP(&cfg.Step, "step", "s", cfg.Step, "Connection step size for testing with varying connection counts")
	fs.StringVarP(&cfg.File, "file", "f", cfg.File, "Path to the file containing the JSON-RPC request")
	fs.IntVarP(&cfg.DurationSeconds, "duration", "d", cfg.DurationSeconds, "Test duration in seconds (0 for no time limit)")
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output filename for the results (CSV format)")
	fs.CountVarP(&cfg.Verbosity, "verbose", "v", "Increase output verbosity")
	fs.BoolVarP(&cfg.Pipe, "pipe", "p", cfg.Pipe, "Take requests from stdin, one JSON-RPC request per line")

	fs.Int64Var(&cfg.MinBodyBytes, "min-body-bytes", cfg.MinBodyBytes, "Smallest response body counted as a success")
	fs.StringVar(&cfg.EndpointSelection, "endpoint-selection", cfg.EndpointSelection, "Endpoint selection: random or round-robin")
	fs.StringVar(&cfg.Ramp, "ramp", cfg.Ramp, "Ramp shape: linear or exponential")
	fs.IntVar(&cfg.RetryMax, "retry-max", cfg.RetryMax, "Transport level retries per request")
	fs.IntVar(&cfg.StreamBuffer, "stream-buffer", cfg.StreamBuffer, "Queued requests read ahead from stdin")
	fs.IntVar(&cfg.ListenPort, "listen-port", cfg.ListenPort, "Port of the status and metrics server (0 disables it)")

	fs.StringVar(&cfg.TargetMode, "target-mode", cfg.TargetMode, "Target mode: url, pod or service")
	fs.StringVar(&cfg.TargetNamespace, "target-namespace", cfg.TargetNamespace, "Kubernetes namespace for the target")
	fs.StringVar(&cfg.TargetDeployment, "target-deployment", cfg.TargetDeployment, "Target deployment name (pod mode)")
	fs.StringVar(&cfg.TargetService, "target-service", cfg.TargetService, "Target service name (service mode)")
	fs.StringVar(&cfg.TargetPortName, "target-port-name", cfg.TargetPortName, "Target port name")
	fs.StringVar(&cfg.TargetScheme, "target-scheme", cfg.TargetScheme, "Target request URL scheme")
	fs.StringVar(&cfg.TargetPath, "target-path", cfg.TargetPath, "Path appended to resolved target URLs")
	fs.BoolVar(&cfg.InCluster, "in-cluster", cfg.InCluster, "Use in-cluster Kubernetes config")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", cfg.Kubeconfig, "Kubeconfig path for out-of-cluster mode")

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Optional config file (yaml, json or toml)")
}

func ParseConfig(args []string) (Config, error) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("rpcload", pflag.ContinueOnError)
	BindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := ApplyOverlay(fs, cfg.ConfigFile); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyOverlay fills every flag the command line left unset from RPCLOAD_<FLAG>
// environment variables, then from configFile. Dashes in flag names become
// underscores in the environment.
func ApplyOverlay(fs *pflag.FlagSet, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	pending := make(map[string]string)
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !v.IsSet(f.Name) {
			return
		}
		pending[f.Name] = overlayValue(v.Get(f.Name))
	})
	for name, value := range pending {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", value, name, err)
		}
	}
	return nil
}

func overlayValue(value any) string {
	switch typed := value.(type) {
	case []any:
		parts := make([]string, 0, len(typed))
		for _, part := range typed {
			parts = append(parts, fmt.Sprint(part))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(typed, ",")
	default:
		return fmt.Sprint(typed)
	}
}

func ValidateConfig(cfg Config) error {
	if cfg.Connections <= 0 {
		return fmt.Errorf("connections must be > 0")
	}
	if cfg.TimeoutMillis < 0 || cfg.Requests < 0 || cfg.Step < 0 || cfg.DurationSeconds < 0 {
		return fmt.Errorf("timeout, requests, step and duration must be >= 0")
	}
	if !cfg.Pipe && cfg.File == "" {
		return fmt.Errorf("file is required unless requests are piped on stdin")
	}
	if cfg.Output == "" {
		return fmt.Errorf("output is required")
	}
	if cfg.MinBodyBytes < 0 {
		return fmt.Errorf("min-body-bytes must be >= 0")
	}
	if cfg.RetryMax < 0 {
		return fmt.Errorf("retry-max must be >= 0")
	}
	switch cfg.EndpointSelection {
	case worker.SelectRandom, worker.SelectRoundRobin:
	default:
		return fmt.Errorf("unsupported endpoint-selection %q", cfg.EndpointSelection)
	}
	switch cfg.Ramp {
	case RampLinear, RampExponential:
	default:
		return fmt.Errorf("unsupported ramp %q", cfg.Ramp)
	}
	switch cfg.TargetMode {
	case k8s.TargetModeURL:
		if len(cfg.URLs) == 0 {
			return fmt.Errorf("url is required in url mode")
		}
	case k8s.TargetModePod:
		if cfg.TargetDeployment == "" {
			return fmt.Errorf("target-deployment is required in pod mode")
		}
	case k8s.TargetModeService:
		if cfg.TargetService == "" {
			return fmt.Errorf("target-service is required in service mode")
		}
	default:
		return fmt.Errorf("unsupported target-mode %q", cfg.TargetMode)
	}
	return nil
}

// RunConfig converts the flag units into the per-connection limits of a worker.
func (c Config) RunConfig() types.RunConfig {
	return types.RunConfig{
		Connections:           c.Connections,
		RequestsPerConnection: c.Requests,
		Duration:              time.Duration(c.DurationSeconds) * time.Second,
		Timeout:               time.Duration(c.TimeoutMillis) * time.Millisecond,
	}
}
