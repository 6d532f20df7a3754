package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/PeladoCollado/rpcload/types"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000

	defaultBlobBytes = 2048
	maxBlobBytes     = 1 << 20
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8545"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", rpcHandler)
	mux.HandleFunc("/healthz", healthHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: mux,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		panic(err)
	}
}

// rpcHandler answers ping, echo, blob and error. blob returns a string result of the
// requested size so responses can be pushed over or under the client's success threshold.
func rpcHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var request types.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeResponse(w, types.Response{JSONRPC: "2.0", Error: &types.RPCError{Code: codeParseError, Message: "Parse error"}})
		return
	}
	response := types.Response{ID: request.ID, JSONRPC: "2.0"}
	if err := request.Validate(); err != nil {
		response.Error = &types.RPCError{Code: codeInvalidRequest, Message: err.Error()}
		writeResponse(w, response)
		return
	}

	switch request.Method {
	case "ping":
		response.Result = json.RawMessage(`"pong"`)
	case "echo":
		params, err := json.Marshal(request.Params)
		if err != nil {
			response.Error = &types.RPCError{Code: codeInvalidParams, Message: err.Error()}
			break
		}
		response.Result = params
	case "blob":
		size, err := blobSize(request.Params)
		if err != nil {
			response.Error = &types.RPCError{Code: codeInvalidParams, Message: err.Error()}
			break
		}
		response.Result = json.RawMessage(`"` + strings.Repeat("0", size) + `"`)
	case "error":
		response.Error = &types.RPCError{Code: codeServerError, Message: "requested failure"}
	default:
		response.Error = &types.RPCError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	writeResponse(w, response)
}

func blobSize(params []json.RawMessage) (int, error) {
	if len(params) == 0 {
		return defaultBlobBytes, nil
	}
	var size int
	if err := json.Unmarshal(params[0], &size); err != nil {
		return 0, fmt.Errorf("blob size must be a number")
	}
	if size < 0 || size > maxBlobBytes {
		return 0, fmt.Errorf("blob size must be between 0 and %d", maxBlobBytes)
	}
	return size, nil
}

func writeResponse(w http.ResponseWriter, response types.Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
