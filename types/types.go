package types

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Request is a JSON-RPC call payload. Values are treated as immutable once parsed;
// use Clone to hand a copy to a worker.
type Request struct {
	ID      uint64            `json:"id"`
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func (r Request) Clone() Request {
	params := make([]json.RawMessage, len(r.Params))
	for i := range r.Params {
		params[i] = append(json.RawMessage(nil), r.Params[i]...)
	}
	r.Params = params
	return r
}

func (r Request) Validate() error {
	if r.JSONRPC == "" {
		return fmt.Errorf("jsonrpc version is required")
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

type RPCError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Response struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RequestSource supplies the payload for each dispatched call. Next blocks only for
// streaming sources and must return when ctx is done.
type RequestSource interface {
	Next(ctx context.Context) (Request, error)
}

// RunConfig holds the parameters fixed for one ramp step.
type RunConfig struct {
	Connections           int
	RequestsPerConnection int
	Duration              time.Duration
	Timeout               time.Duration
}

// RunResult is the summary row of one ramp step.
type RunResult struct {
	Connections              int           `json:"connections"`
	TotalRequests            uint64        `json:"totalRequests"`
	SuccessfulRequests       uint64        `json:"successfulRequests"`
	FailedRequests           uint64        `json:"failedRequests"`
	AverageResponseTime      int64         `json:"averageResponseTimeMillis"`
	AverageRequestsPerSecond float64       `json:"averageRequestsPerSecond"`
	ElapsedTime              time.Duration `json:"elapsedTime"`
	TimeoutRequests          uint64        `json:"timeoutRequests"`
}
