package app

import (
	"fmt"

	"github.com/PeladoCollado/rpcload/orchestrator/manager"
	"github.com/PeladoCollado/rpcload/orchestrator/requests"
	"github.com/PeladoCollado/rpcload/types"
)

type RequestSourceFactory interface {
	NewRequestSource(cfg Config) (types.RequestSource, error)
}

type LoadCalculatorFactory interface {
	NewLoadCalculator(cfg Config) (manager.LoadCalculator, error)
}

type RequestSourceFactoryFunc func(cfg Config) (types.RequestSource, error)

func (f RequestSourceFactoryFunc) NewRequestSource(cfg Config) (types.RequestSource, error) {
	return f(cfg)
}

type LoadCalculatorFactoryFunc func(cfg Config) (manager.LoadCalculator, error)

func (f LoadCalculatorFactoryFunc) NewLoadCalculator(cfg Config) (manager.LoadCalculator, error) {
	return f(cfg)
}

// NewBuiltInRequestSource streams stdin when piping, otherwise it repeats the template file.
// A streaming source is fed by Run.
func NewBuiltInRequestSource(cfg Config) (types.RequestSource, error) {
	if cfg.Pipe {
		return requests.NewStreamSource(cfg.StreamBuffer), nil
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("file is required unless requests are piped on stdin")
	}
	template, err := requests.ReadTemplate(cfg.File)
	if err != nil {
		return nil, err
	}
	return requests.NewStaticSource(template), nil
}

func NewBuiltInLoadCalculator(cfg Config) (manager.LoadCalculator, error) {
	if cfg.Connections <= 0 {
		return nil, fmt.Errorf("connections must be > 0")
	}
	switch cfg.Ramp {
	case RampLinear, "":
		return manager.NewStepFunctionLoadCalculator(cfg.Connections, cfg.Step), nil
	case RampExponential:
		return manager.NewExponentialLoadCalculator(cfg.Connections), nil
	default:
		return nil, fmt.Errorf("unsupported ramp %q", cfg.Ramp)
	}
}

func requestSourceFactoryOrDefault(factory RequestSourceFactory) RequestSourceFactory {
	if factory != nil {
		return factory
	}
	return RequestSourceFactoryFunc(NewBuiltInRequestSource)
}

func loadCalculatorFactoryOrDefault(factory LoadCalculatorFactory) LoadCalculatorFactory {
	if factory != nil {
		return factory
	}
	return LoadCalculatorFactoryFunc(NewBuiltInLoadCalculator)
}
