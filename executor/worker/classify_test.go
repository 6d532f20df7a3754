package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PeladoCollado/rpcload/executor/transport"
	"github.com/PeladoCollado/rpcload/stats"
)

func TestClassify(t *testing.T) {
	classifier := Classifier{MinBodyBytes: 1000}
	large := transport.Reply{Status: 200, Size: 1000}

	cases := []struct {
		name        string
		reply       transport.Reply
		err         error
		timedOut    bool
		kind        stats.Kind
		description string
	}{
		{name: "success at threshold", reply: large, kind: stats.Success},
		{name: "timeout", err: context.DeadlineExceeded, timedOut: true, kind: stats.Timeout, description: "request timed out"},
		{name: "transport", err: errors.New("dial tcp: connection refused"), kind: stats.TransportFailure, description: "dial tcp: connection refused"},
		{name: "status", reply: transport.Reply{Status: 502, Size: 5000}, kind: stats.StatusFailure, description: "HTTP error: 502 Bad Gateway"},
		{name: "unknown status", reply: transport.Reply{Status: 599, Size: 5000}, kind: stats.StatusFailure, description: "HTTP error: 599"},
		{
			name: "json-rpc error payload",
			reply: transport.Reply{
				Status: 200,
				Body:   []byte(`{"id":1,"jsonrpc":"2.0","error":{"code":-32000,"message":"header not found"}}`),
				Size:   78,
			},
			kind:        stats.PayloadFailure,
			description: "JSON-RPC error -32000: header not found",
		},
		{
			name:        "short unparseable payload",
			reply:       transport.Reply{Status: 200, Body: []byte("oops"), Size: 4},
			kind:        stats.PayloadFailure,
			description: "JSON-RPC response below 1000 bytes",
		},
	}
	for _, tc := range cases {
		outcome := classifier.Classify(tc.reply, tc.err, tc.timedOut, 7*time.Millisecond)
		if outcome.Kind != tc.kind {
			t.Fatalf("%s: expected kind %s, got %s", tc.name, tc.kind, outcome.Kind)
		}
		if outcome.Description != tc.description {
			t.Fatalf("%s: expected description %q, got %q", tc.name, tc.description, outcome.Description)
		}
		if outcome.Elapsed != 7*time.Millisecond {
			t.Fatalf("%s: elapsed not carried through", tc.name)
		}
	}
}

func TestClassifyThresholdIsConfigurable(t *testing.T) {
	reply := transport.Reply{Status: 200, Body: []byte(`{"result":"0x1"}`), Size: 16}
	if outcome := (Classifier{MinBodyBytes: 0}).Classify(reply, nil, false, 0); outcome.Kind != stats.Success {
		t.Fatalf("expected success with a zero threshold, got %s", outcome.Kind)
	}
	if outcome := (Classifier{MinBodyBytes: 17}).Classify(reply, nil, false, 0); outcome.Kind != stats.PayloadFailure {
		t.Fatalf("expected payload failure below threshold, got %s", outcome.Kind)
	}
}

func TestNewEndpointSelector(t *testing.T) {
	if _, err := NewEndpointSelector(SelectRandom, nil); err == nil {
		t.Fatalf("expected error for empty endpoint set")
	}
	if _, err := NewEndpointSelector(SelectRandom, []string{"localhost:8545"}); err == nil {
		t.Fatalf("expected error for relative endpoint")
	}
	if _, err := NewEndpointSelector("weighted", []string{"http://a"}); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestRoundRobinSelectorCycles(t *testing.T) {
	selector, err := NewEndpointSelector(SelectRoundRobin, []string{"http://a", "http://b", "http://c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	picks := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		picks = append(picks, selector.Pick())
	}
	if got := strings.Join(picks, ","); got != "http://a,http://b,http://c,http://a,http://b,http://c" {
		t.Fatalf("unexpected round-robin order %s", got)
	}
}

func TestRandomSelectorStaysWithinSet(t *testing.T) {
	endpoints := []string{"http://a", "http://b", "http://c"}
	selector, err := NewEndpointSelector(SelectRandom, endpoints)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := make(map[string]int)
	for i := 0; i < 3000; i++ {
		seen[selector.Pick()]++
	}
	for _, endpoint := range endpoints {
		if seen[endpoint] < 500 {
			t.Fatalf("endpoint %s picked only %d of 3000 times", endpoint, seen[endpoint])
		}
	}
	if len(seen) != 3 {
		t.Fatalf("picked endpoints outside the set: %+v", seen)
	}
}
