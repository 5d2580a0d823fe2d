package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pouriya/toolbelt/internal/reply"
	"github.com/pouriya/toolbelt/internal/tools"
)

const (
	protocolVersion = "2025-11-25"
	serverName      = "toolbelt"
	serverVersion   = "0.1.0"

	maxBodyBytes = 1 << 20
)

// Server implements the MCP protocol over HTTP.
type Server struct {
	Tools    *tools.Dispatcher
	Token    string // empty = no auth required
	sessions sync.Map
}

// --- response writer wrapper ---

type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
	rpcMethod   string
	tool        string
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// --- JSON-RPC types ---

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

func rpcResult(id any, result any) *jsonrpcResponse {
	return &jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcErr(id any, code int, msg string) *jsonrpcResponse {
	return &jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

// --- HTTP handler ---

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

	s.serveRequest(rw, r)

	duration := time.Since(start)

	if slog.Default().Enabled(r.Context(), slog.LevelDebug) {
		slog.Debug("http request detail",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", duration.Milliseconds(),
			"rpc_method", rw.rpcMethod,
			"tool", rw.tool,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"response_bytes", rw.bytes,
		)
	} else {
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", duration.Milliseconds(),
			"rpc_method", rw.rpcMethod,
		)
	}
}

func (s *Server) serveRequest(w *responseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var req jsonrpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, rpcErr(nil, codeParseError, "Parse error"))
		return
	}

	w.rpcMethod = req.Method

	if req.JSONRPC != "2.0" {
		writeJSON(w, http.StatusOK, rpcErr(req.ID, codeInvalidRequest, "Invalid request: jsonrpc must be 2.0"))
		return
	}

	// Notifications (no ID) get 202 Accepted
	if req.ID == nil {
		s.handleNotification(req)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Session validation for non-initialize requests
	if req.Method != "initialize" {
		sessionID := r.Header.Get("Mcp-Session-Id")
		if sessionID != "" {
			if _, ok := s.sessions.Load(sessionID); !ok {
				writeJSON(w, http.StatusOK, rpcErr(req.ID, codeInvalidRequest, "Invalid session"))
				return
			}
		}
	}

	if req.Method == "initialize" {
		sessionID := uuid.NewString()
		s.sessions.Store(sessionID, time.Now())
		w.Header().Set("Mcp-Session-Id", sessionID)
	}

	writeJSON(w, http.StatusOK, s.dispatch(w, r, req))
}

func (s *Server) authorized(r *http.Request) bool {
	if s.Token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.Token
}

func (s *Server) handleNotification(req jsonrpcRequest) {
	// notifications/initialized and notifications/cancelled need no action.
	slog.Debug("notification", "method", req.Method)
}

func (s *Server) dispatch(w *responseWriter, r *http.Request, req jsonrpcRequest) *jsonrpcResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return rpcResult(req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(w, r, req)
	default:
		return rpcErr(req.ID, codeMethodNotFound, "Method not found: "+req.Method)
	}
}

// --- Initialize ---

func (s *Server) handleInitialize(req jsonrpcRequest) *jsonrpcResponse {
	return rpcResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	})
}

// --- Tools ---

func (s *Server) handleToolsList(req jsonrpcRequest) *jsonrpcResponse {
	defs := tools.Definitions()
	slog.Debug("tools list", "items", len(defs))
	return rpcResult(req.ID, map[string]any{"tools": defs})
}

func (s *Server) handleToolsCall(w *responseWriter, r *http.Request, req jsonrpcRequest) *jsonrpcResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcErr(req.ID, codeInvalidParams, "Invalid params: "+err.Error())
	}
	w.tool = params.Name

	res, err := s.Tools.Call(r.Context(), params.Name, params.Arguments)
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return rpcErr(req.ID, codeInvalidParams, "Unknown tool: "+params.Name)
	case errors.Is(err, tools.ErrInvalidArguments):
		return rpcErr(req.ID, codeInvalidParams, "Invalid params: "+err.Error())
	case err != nil:
		return toolError(req.ID, err.Error())
	}
	return toolResult(req.ID, res)
}

// --- helpers ---

func toolResult(id any, res *reply.Result) *jsonrpcResponse {
	return rpcResult(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": res.Render()},
		},
		"structuredContent": res,
		"isError":           res.IsError(),
	})
}

func toolError(id any, msg string) *jsonrpcResponse {
	return rpcResult(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": msg},
		},
		"isError": true,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
