package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/hashicorp/go-retryablehttp"
)

// Reply is what came back from one exchange. Body holds at most the capture limit; Size
// counts every byte of the body.
type Reply struct {
	Status int
	Body   []byte
	Size   int64
}

// Transport performs one request/response exchange. An error means no usable response
// was produced.
type Transport interface {
	Call(ctx context.Context, url string, payload []byte) (Reply, error)
}

type Options struct {
	RetryMax        int
	RetryWaitMin    time.Duration
	MaxConnsPerHost int
	// CaptureBytes bounds how much of each body is kept in memory.
	CaptureBytes int64
}

type HTTPTransport struct {
	client  *retryablehttp.Client
	capture int64
}

// NewHTTPTransport builds the single shared client used by every worker.
func NewHTTPTransport(opts Options) *HTTPTransport {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	client.Logger = logger.Leveled{S: logger.Logger}
	// status codes are classified by the caller, so never swap a response for an error
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	maxConns := opts.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 2000
	}
	if t, ok := client.HTTPClient.Transport.(*http.Transport); ok {
		t.MaxIdleConns = maxConns
		t.MaxIdleConnsPerHost = maxConns
		t.MaxConnsPerHost = maxConns
	}
	return &HTTPTransport{client: client, capture: opts.CaptureBytes}
}

func (h *HTTPTransport) Call(ctx context.Context, url string, payload []byte) (Reply, error) {
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return Reply{}, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := h.client.Do(request)
	if err != nil {
		return Reply{}, err
	}
	defer response.Body.Close()

	captured, err := io.ReadAll(io.LimitReader(response.Body, h.capture))
	if err != nil {
		return Reply{}, fmt.Errorf("read response body: %w", err)
	}
	rest, err := io.Copy(io.Discard, response.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response body: %w", err)
	}
	return Reply{
		Status: response.StatusCode,
		Body:   bytes.Clone(captured),
		Size:   int64(len(captured)) + rest,
	}, nil
}
