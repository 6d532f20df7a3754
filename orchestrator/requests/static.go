package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/PeladoCollado/rpcload/types"
)

// StaticSource hands every caller a fresh copy of one request template. It is never
// exhausted.
type StaticSource struct {
	template types.Request
}

func NewStaticSource(template types.Request) *StaticSource {
	return &StaticSource{template: template.Clone()}
}

func (s *StaticSource) Next(context.Context) (types.Request, error) {
	return s.template.Clone(), nil
}

// ReadTemplate loads the single request used in static mode.
func ReadTemplate(file string) (types.Request, error) {
	contents, err := os.ReadFile(file)
	if err != nil {
		return types.Request{}, fmt.Errorf("read request file %s: %w", file, err)
	}
	var request types.Request
	if err := json.Unmarshal(contents, &request); err != nil {
		return types.Request{}, fmt.Errorf("parse request file %s: %w", file, err)
	}
	if err := request.Validate(); err != nil {
		return types.Request{}, fmt.Errorf("invalid request in %s: %w", file, err)
	}
	logger.Logger.Debugw("Read JSON-RPC request template", "file", file, "method", request.Method)
	return request, nil
}
