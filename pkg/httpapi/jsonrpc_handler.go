package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kandobyte/mcpbox/pkg/jsonrpc"
)

// maxRequestBody bounds a single JSON-RPC HTTP request body (spec §4.6).
const maxRequestBody = 4 << 20 // 4 MiB

// jsonRPCHandler implements the MCP Streamable HTTP transport for POST /
// and POST /mcp: a single request in, at most a single response out, no
// SSE and no streaming (spec §4.6).
func (rt *Router) jsonRPCHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		writeRPCError(w, nil, jsonrpc.CodeParseError, "Parse error")
		return
	}
	if len(body) > maxRequestBody {
		writeRPCError(w, nil, jsonrpc.CodeInvalidRequest, "Request too large")
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, jsonrpc.CodeParseError, "Parse error")
		return
	}
	if req.JSONRPC != jsonrpc.Version || req.Method == "" {
		writeRPCError(w, req.ID, jsonrpc.CodeInvalidRequest, "Invalid request")
		return
	}

	if rt.telemetry != nil {
		rt.telemetry.RecordRequest(r.Context(), req.Method)
	}

	if req.IsNotification() {
		rt.mux.Dispatch(nil, req.Method, req.Params)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := rt.mux.Dispatch(req.ID, req.Method, req.Params)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(jsonrpc.ErrorResponse(id, code, message))
}
