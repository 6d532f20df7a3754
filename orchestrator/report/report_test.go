package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/PeladoCollado/rpcload/orchestrator/manager"
	"github.com/PeladoCollado/rpcload/stats"
	"github.com/PeladoCollado/rpcload/types"
)

func sampleResults() []types.RunResult {
	return []types.RunResult{
		{
			Connections:              1,
			TotalRequests:            5,
			SuccessfulRequests:       5,
			AverageResponseTime:      12,
			AverageRequestsPerSecond: 83.3333,
			ElapsedTime:              60 * time.Millisecond,
		},
		{
			Connections:              4,
			TotalRequests:            20,
			SuccessfulRequests:       17,
			FailedRequests:           3,
			AverageResponseTime:      9,
			AverageRequestsPerSecond: 200,
			ElapsedTime:              1500 * time.Millisecond,
			TimeoutRequests:          2,
		},
	}
}

func TestRowFormatting(t *testing.T) {
	row := Row(sampleResults()[1])
	expected := []string{"4", "20", "17", "3", "9", "200.00", "1.50", "2"}
	if !slices.Equal(row, expected) {
		t.Fatalf("expected %v, got %v", expected, row)
	}
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	if err := ExportCSV(path, sampleResults()); err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("unable to open export: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("unable to parse export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and 2 rows, got %d records", len(records))
	}
	if strings.Join(records[0], ",") != "connections,total_requests,successful_requests,failed_requests,average_response_time,average_requests_per_second,elapsed_time,timeout_requests" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if !slices.Equal(records[1], []string{"1", "5", "5", "0", "12", "83.33", "0.06", "0"}) {
		t.Fatalf("unexpected first row %v", records[1])
	}
}

func TestExportCSVEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != strings.Join(Header, ",") {
		t.Fatalf("expected header only, got %q", got)
	}
}

func TestExportCSVFailsOnBadPath(t *testing.T) {
	if err := ExportCSV(filepath.Join(t.TempDir(), "missing", "results.csv"), sampleResults()); err == nil {
		t.Fatalf("expected error for unwritable path")
	}
}

func TestConsoleReportStep(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)
	console.ReportStep(context.Background(), manager.StepReport{
		Step:   2,
		Result: sampleResults()[1],
		Snapshot: stats.Snapshot{
			Errors: map[string]uint64{
				"request timed out":           2,
				"HTTP error: 502 Bad Gateway": 1,
			},
			Latency: stats.Latency{P50: 8 * time.Millisecond, Max: 40 * time.Millisecond},
		},
	})

	out := buf.String()
	for _, fragment := range []string{
		"Results for 4 Connections",
		"Timeout requests",
		"200.00",
		"1.50 s",
		"9 ms",
		"8.0 ms",
		"40.0 ms",
	} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in console output:\n%s", fragment, out)
		}
	}
	timeouts := strings.Index(out, "request timed out")
	badGateway := strings.Index(out, "HTTP error: 502 Bad Gateway")
	if timeouts < 0 || badGateway < 0 || timeouts > badGateway {
		t.Fatalf("expected errors ordered by count:\n%s", out)
	}
}

func TestSortedErrorsBreaksTiesByDescription(t *testing.T) {
	got := sortedErrors(map[string]uint64{"b": 1, "a": 1, "c": 5})
	if got[0].description != "c" || got[1].description != "a" || got[2].description != "b" {
		t.Fatalf("unexpected order %+v", got)
	}
}
