package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/PeladoCollado/rpcload/types"
)

// Header is the fixed column order of the results file.
var Header = []string{
	"connections",
	"total_requests",
	"successful_requests",
	"failed_requests",
	"average_response_time",
	"average_requests_per_second",
	"elapsed_time",
	"timeout_requests",
}

// Row renders one step. Throughput and elapsed seconds carry two decimals.
func Row(result types.RunResult) []string {
	return []string{
		strconv.Itoa(result.Connections),
		strconv.FormatUint(result.TotalRequests, 10),
		strconv.FormatUint(result.SuccessfulRequests, 10),
		strconv.FormatUint(result.FailedRequests, 10),
		strconv.FormatInt(result.AverageResponseTime, 10),
		fmt.Sprintf("%.2f", result.AverageRequestsPerSecond),
		fmt.Sprintf("%.2f", result.ElapsedTime.Seconds()),
		strconv.FormatUint(result.TimeoutRequests, 10),
	}
}

func WriteCSV(w io.Writer, results []types.RunResult) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, result := range results {
		if err := writer.Write(Row(result)); err != nil {
			return fmt.Errorf("write row for %d connections: %w", result.Connections, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportCSV replaces path with the header and one row per result, in order.
func ExportCSV(path string, results []types.RunResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results file %s: %w", path, err)
	}
	if err := WriteCSV(file, results); err != nil {
		_ = file.Close()
		return fmt.Errorf("write results file %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close results file %s: %w", path, err)
	}
	return nil
}
