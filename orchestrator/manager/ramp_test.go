package manager

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PeladoCollado/rpcload/executor/transport"
	"github.com/PeladoCollado/rpcload/executor/worker"
	"github.com/PeladoCollado/rpcload/orchestrator/requests"
	"github.com/PeladoCollado/rpcload/orchestrator/shutdown"
	"github.com/PeladoCollado/rpcload/types"
)

type fakeTransport struct {
	lock  sync.Mutex
	calls int
	delay time.Duration
}

func (f *fakeTransport) Call(ctx context.Context, url string, payload []byte) (transport.Reply, error) {
	f.lock.Lock()
	f.calls++
	f.lock.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return transport.Reply{Status: 200, Size: 2048}, nil
}

func (f *fakeTransport) total() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

func newController(t *testing.T, plan LoadCalculator, cfg types.RunConfig, source types.RequestSource, tr transport.Transport, url string) *Controller {
	t.Helper()
	selector, err := worker.NewEndpointSelector(worker.SelectRandom, []string{url})
	if err != nil {
		t.Fatalf("unable to create selector: %v", err)
	}
	return &Controller{
		RunID:      "test-run",
		Plan:       plan,
		Config:     cfg,
		Source:     source,
		Endpoints:  selector,
		Transport:  tr,
		Classifier: worker.Classifier{MinBodyBytes: worker.DefaultMinBodyBytes},
		Shutdown:   shutdown.NewSignal(),
		Progress:   NewProgress("test-run"),
	}
}

func template() types.Request {
	return types.Request{ID: 1, JSONRPC: "2.0", Method: "eth_blockNumber"}
}

func TestExecuteRunsEveryStepWithRequestLimit(t *testing.T) {
	tr := &fakeTransport{}
	c := newController(t, NewStepFunctionLoadCalculator(3, 1),
		types.RunConfig{RequestsPerConnection: 5, Timeout: time.Second},
		requests.NewStaticSource(template()), tr, "http://target.local/")

	reported := make([]int, 0)
	c.Reporters = []StepReporter{StepReporterFunc(func(ctx context.Context, report StepReport) {
		reported = append(reported, report.Step)
	})}

	results := c.Execute(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(results))
	}
	for i, result := range results {
		connections := i + 1
		if result.Connections != connections {
			t.Fatalf("row %d: expected %d connections, got %d", i, connections, result.Connections)
		}
		if result.TotalRequests != uint64(connections*5) {
			t.Fatalf("row %d: expected %d requests, got %d", i, connections*5, result.TotalRequests)
		}
		if result.SuccessfulRequests+result.FailedRequests != result.TotalRequests {
			t.Fatalf("row %d: successful + failed != total: %+v", i, result)
		}
	}
	if tr.total() != 30 {
		t.Fatalf("expected 30 calls, got %d", tr.total())
	}
	if len(reported) != 3 || reported[2] != 3 {
		t.Fatalf("expected 3 reported steps, got %v", reported)
	}

	status := c.Progress.Status()
	if status.Running || len(status.Results) != 3 || status.CurrentStep != 3 {
		t.Fatalf("unexpected final status %+v", status)
	}
}

func TestExecuteStopsRampOnShutdown(t *testing.T) {
	tr := &fakeTransport{delay: 5 * time.Millisecond}
	c := newController(t, NewStepFunctionLoadCalculator(4, 2),
		types.RunConfig{Timeout: time.Second},
		requests.NewStaticSource(template()), tr, "http://target.local/")

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Shutdown.Raise()
	}()

	done := make(chan []types.RunResult, 1)
	go func() {
		done <- c.Execute(context.Background())
	}()

	select {
	case results := <-done:
		if len(results) != 1 {
			t.Fatalf("expected the ramp to stop after the interrupted step, got %d rows", len(results))
		}
		result := results[0]
		if result.TotalRequests == 0 {
			t.Fatalf("expected requests before shutdown")
		}
		if result.SuccessfulRequests+result.FailedRequests != result.TotalRequests {
			t.Fatalf("snapshot not drained: %+v", result)
		}
		if result.ElapsedTime <= 0 || result.AverageRequestsPerSecond <= 0 {
			t.Fatalf("expected elapsed time and throughput, got %+v", result)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("controller did not stop on shutdown")
	}
}

func TestExecuteStaticAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"id":1,"jsonrpc":"2.0","result":"` + strings.Repeat("a", 1200) + `"}`))
	}))
	defer server.Close()

	client := transport.NewHTTPTransport(transport.Options{CaptureBytes: worker.DefaultMinBodyBytes})
	c := newController(t, NewStepFunctionLoadCalculator(1, 0),
		types.RunConfig{RequestsPerConnection: 5, Timeout: 2 * time.Second},
		requests.NewStaticSource(template()), client, server.URL)

	results := c.Execute(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 row, got %d", len(results))
	}
	result := results[0]
	if result.Connections != 1 || result.TotalRequests != 5 || result.SuccessfulRequests != 5 ||
		result.FailedRequests != 0 || result.TimeoutRequests != 0 {
		t.Fatalf("unexpected row %+v", result)
	}
}

func TestExecuteStreamingSkipsMalformedLines(t *testing.T) {
	var lock sync.Mutex
	bodies := make([]string, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lock.Lock()
		bodies = append(bodies, string(body))
		lock.Unlock()
		_, _ = w.Write([]byte(`{"id":1,"jsonrpc":"2.0","result":"` + strings.Repeat("b", 1200) + `"}`))
	}))
	defer server.Close()

	source := requests.NewStreamSource(8)
	input := strings.Join([]string{
		`{"id":1,"jsonrpc":"2.0","method":"a","params":[]}`,
		`{not json`,
		`{"id":2,"jsonrpc":"2.0","method":"b","params":[]}`,
		`{"id":3,"jsonrpc":"2.0","method":"c","params":[]}`,
	}, "\n")
	if err := source.Feed(context.Background(), strings.NewReader(input), io.Discard); err != nil {
		t.Fatalf("unexpected feed error: %v", err)
	}

	client := transport.NewHTTPTransport(transport.Options{CaptureBytes: worker.DefaultMinBodyBytes})
	c := newController(t, NewStepFunctionLoadCalculator(1, 0),
		types.RunConfig{Timeout: 2 * time.Second}, source, client, server.URL)

	results := c.Execute(context.Background())
	if len(results) != 1 || results[0].TotalRequests != 3 || results[0].SuccessfulRequests != 3 {
		t.Fatalf("expected 3 dispatched requests, got %+v", results)
	}
	if source.ParseFailures() != 1 {
		t.Fatalf("expected 1 parse failure, got %d", source.ParseFailures())
	}
	lock.Lock()
	defer lock.Unlock()
	if len(bodies) != 3 {
		t.Fatalf("expected 3 requests on the wire, got %d", len(bodies))
	}
}

func TestProgressTracksCurrentStep(t *testing.T) {
	tr := &fakeTransport{delay: 2 * time.Millisecond}
	c := newController(t, NewStepFunctionLoadCalculator(2, 0),
		types.RunConfig{Duration: 150 * time.Millisecond, Timeout: time.Second},
		requests.NewStaticSource(template()), tr, "http://target.local/")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Execute(context.Background())
	}()

	time.Sleep(60 * time.Millisecond)
	status := c.Progress.Status()
	if !status.Running || status.CurrentConnections != 2 || status.RunID != "test-run" {
		t.Fatalf("unexpected live status %+v", status)
	}
	if status.CurrentCompleted == 0 {
		t.Fatalf("expected live completed count, got %+v", status)
	}
	<-done
	if status := c.Progress.Status(); status.Running || len(status.Results) != 1 {
		t.Fatalf("unexpected final status %+v", status)
	}
}
