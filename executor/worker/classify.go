package worker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/PeladoCollado/rpcload/executor/transport"
	"github.com/PeladoCollado/rpcload/stats"
	"github.com/PeladoCollado/rpcload/types"
)

const DefaultMinBodyBytes = 1000

const timeoutDescription = "request timed out"

// Classifier turns a transport result into a Stats outcome. A 2xx reply whose body is
// shorter than MinBodyBytes is taken to be a JSON-RPC error payload.
type Classifier struct {
	MinBodyBytes int64
}

func (c Classifier) Classify(reply transport.Reply, err error, timedOut bool, elapsed time.Duration) stats.Outcome {
	switch {
	case timedOut:
		return stats.Outcome{Kind: stats.Timeout, Description: timeoutDescription, Elapsed: elapsed}
	case err != nil:
		return stats.Outcome{Kind: stats.TransportFailure, Description: err.Error(), Elapsed: elapsed}
	case reply.Status < 200 || reply.Status >= 300:
		return stats.Outcome{Kind: stats.StatusFailure, Description: statusDescription(reply.Status), Elapsed: elapsed}
	case reply.Size < c.MinBodyBytes:
		return stats.Outcome{Kind: stats.PayloadFailure, Description: c.payloadDescription(reply.Body), Elapsed: elapsed}
	default:
		return stats.Outcome{Kind: stats.Success, Elapsed: elapsed}
	}
}

func statusDescription(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("HTTP error: %d", status)
	}
	return fmt.Sprintf("HTTP error: %d %s", status, text)
}

func (c Classifier) payloadDescription(body []byte) string {
	var response types.Response
	if err := json.Unmarshal(body, &response); err == nil && response.Error != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s", response.Error.Code, response.Error.Message)
	}
	return fmt.Sprintf("JSON-RPC response below %d bytes", c.MinBodyBytes)
}
