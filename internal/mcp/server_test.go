package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pouriya/toolbelt/internal/booking"
	"github.com/pouriya/toolbelt/internal/config"
	"github.com/pouriya/toolbelt/internal/db"
	"github.com/pouriya/toolbelt/internal/fetch"
	"github.com/pouriya/toolbelt/internal/location"
	"github.com/pouriya/toolbelt/internal/mcp"
	"github.com/pouriya/toolbelt/internal/music"
	"github.com/pouriya/toolbelt/internal/tools"
	"github.com/pouriya/toolbelt/internal/trending"
	"github.com/pouriya/toolbelt/internal/weather"
)

// jsonrpcResponse mirrors the unexported type for test decoding.
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

// --- test helpers ---

func dispatcher(t *testing.T) (*tools.Dispatcher, *db.DB) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	cities, err := config.LoadCities("")
	if err != nil {
		t.Fatalf("load cities: %v", err)
	}

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current_weather") == "true" {
			w.Write([]byte(`{"current_weather":{"temperature":24.5,"windspeed":6,"weathercode":0,"time":"2025-08-10T08:00"}}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(up.Close)

	fc := fetch.New()
	return &tools.Dispatcher{
		Owner:    "919000000001",
		Resolver: location.New(cities.Set, cities.MaxDistanceKm, d, nil),
		Prefs:    d,
		Weather:  weather.New(fc, nil, up.URL),
		Music:    music.New(music.NewSpotify(fc, "", "", up.URL, up.URL)),
		Trending: trending.New(fc, up.URL),
		Booking:  booking.New(cities.Set.Popular(), booking.Affiliate{}),
	}, d
}

func setup(t *testing.T) (*mcp.Server, *httptest.Server) {
	return setupWithToken(t, "")
}

func setupWithToken(t *testing.T, token string) (*mcp.Server, *httptest.Server) {
	t.Helper()
	disp, d := dispatcher(t)
	s := &mcp.Server{Tools: disp, Token: token}
	ts := httptest.NewServer(mcp.Routes(s, d.Ping))
	t.Cleanup(ts.Close)
	return s, ts
}

// call sends a JSON-RPC request and returns the parsed response.
func call(t *testing.T, url string, method string, id any, params any, headers map[string]string) (int, jsonrpcResponse) {
	t.Helper()
	body := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		body["id"] = id
	}
	if params != nil {
		body["params"] = params
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusAccepted {
		return resp.StatusCode, jsonrpcResponse{}
	}
	var result jsonrpcResponse
	json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

// toolCall is a shortcut for tools/call.
func toolCall(t *testing.T, url string, name string, args map[string]any) (jsonrpcResponse, string, bool) {
	t.Helper()
	_, resp := call(t, url, "tools/call", 1, map[string]any{"name": name, "arguments": args}, nil)
	if resp.Error != nil {
		return resp, "", false
	}
	result := resp.Result.(map[string]any)
	isErr, _ := result["isError"].(bool)
	content := result["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	return resp, text, isErr
}

// --- tests ---

func TestInitializeHandshake(t *testing.T) {
	_, ts := setup(t)

	b, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{
		"protocolVersion": "2025-11-25",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
	}})
	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	sid := resp.Header.Get("Mcp-Session-Id")
	if len(sid) != 36 {
		t.Errorf("session id: %q", sid)
	}

	var r jsonrpcResponse
	json.NewDecoder(resp.Body).Decode(&r)
	if r.Error != nil {
		t.Fatalf("error: %+v", r.Error)
	}
	result := r.Result.(map[string]any)
	if result["protocolVersion"] != "2025-11-25" {
		t.Errorf("protocolVersion: %v", result["protocolVersion"])
	}
	si := result["serverInfo"].(map[string]any)
	if si["name"] != "toolbelt" || si["version"] != "0.1.0" {
		t.Errorf("serverInfo: %v", si)
	}
	if _, ok := result["_sessionId"]; ok {
		t.Error("session id leaked into result")
	}

	_, pr := call(t, ts.URL+"/mcp", "ping", 2, nil, map[string]string{"Mcp-Session-Id": sid})
	if pr.Error != nil {
		t.Errorf("ping with session: %+v", pr.Error)
	}
	_, pr = call(t, ts.URL+"/mcp", "ping", 3, nil, map[string]string{"Mcp-Session-Id": "nope"})
	if pr.Error == nil || pr.Error.Code != -32600 {
		t.Errorf("unknown session: expected -32600, got %+v", pr.Error)
	}
}

func TestToolsList(t *testing.T) {
	_, ts := setup(t)
	_, resp := call(t, ts.URL, "tools/list", 1, nil, nil)
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	list := resp.Result.(map[string]any)["tools"].([]any)
	names := map[string]bool{}
	for _, tool := range list {
		tm := tool.(map[string]any)
		names[tm["name"].(string)] = true
		if tm["inputSchema"] == nil {
			t.Errorf("tool %s missing inputSchema", tm["name"])
		}
	}
	for _, want := range []string{
		"ping", "validate", "weather_now", "weather_forecast", "music", "quick_book",
		"ott_where_to_watch", "trending", "set_preferred_city", "get_preferred_city",
	} {
		if !names[want] {
			t.Errorf("missing tool: %s", want)
		}
	}
}

func TestPingAndValidate(t *testing.T) {
	_, ts := setup(t)

	_, text, isErr := toolCall(t, ts.URL, "ping", nil)
	if isErr || text != "pong" {
		t.Errorf("ping: %q isError=%v", text, isErr)
	}
	_, text, isErr = toolCall(t, ts.URL, "validate", map[string]any{})
	if isErr || text != "919000000001" {
		t.Errorf("validate: %q isError=%v", text, isErr)
	}
}

func TestPreferredCityFlow(t *testing.T) {
	_, ts := setup(t)

	resp, text, isErr := toolCall(t, ts.URL, "weather_now", map[string]any{})
	if isErr {
		t.Fatalf("weather_now without city: %s", text)
	}
	sc := resp.Result.(map[string]any)["structuredContent"].(map[string]any)
	if sc["kind"] != "city_choice" {
		t.Errorf("kind: %v", sc["kind"])
	}

	_, text, isErr = toolCall(t, ts.URL, "set_preferred_city", map[string]any{"city": "bangalore"})
	if isErr || !strings.Contains(text, "Bengaluru") {
		t.Fatalf("set_preferred_city: %q", text)
	}

	_, text, isErr = toolCall(t, ts.URL, "weather_now", map[string]any{})
	if isErr {
		t.Fatalf("weather_now: %s", text)
	}
	if !strings.HasPrefix(text, "Bengaluru: 24.5°C, Clear sky") {
		t.Errorf("weather text: %q", text)
	}
}

func TestFallbackIsToolError(t *testing.T) {
	_, ts := setup(t)

	resp, text, isErr := toolCall(t, ts.URL, "weather_forecast", map[string]any{"city": "Pune", "days": 2})
	if !isErr {
		t.Fatalf("expected isError for unavailable upstream, got %q", text)
	}
	if !strings.Contains(text, "Weather for Pune is unavailable") || !strings.Contains(text, "open-meteo.com") {
		t.Errorf("fallback text: %q", text)
	}
	sc := resp.Result.(map[string]any)["structuredContent"].(map[string]any)
	if sc["error_kind"] != "upstream_unavailable" {
		t.Errorf("error_kind: %v", sc["error_kind"])
	}
}

func TestInvalidArguments(t *testing.T) {
	_, ts := setup(t)

	for _, tc := range []struct {
		name string
		args map[string]any
	}{
		{"ott_where_to_watch", map[string]any{}},
		{"weather_forecast", map[string]any{"days": 30}},
		{"trending", map[string]any{"colour": "blue"}},
	} {
		resp, _, _ := toolCall(t, ts.URL, tc.name, tc.args)
		if resp.Error == nil || resp.Error.Code != -32602 {
			t.Errorf("%s: expected -32602, got %+v", tc.name, resp.Error)
		}
	}

	resp, _, _ := toolCall(t, ts.URL, "bogus_tool", map[string]any{})
	if resp.Error == nil || resp.Error.Code != -32602 || resp.Error.Message != "Unknown tool: bogus_tool" {
		t.Errorf("unknown tool: %+v", resp.Error)
	}
}

func TestAuth(t *testing.T) {
	_, ts := setupWithToken(t, "supersecret")

	req, _ := http.NewRequest("POST", ts.URL, bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("no auth: expected 401, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("POST", ts.URL, bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("wrong token: expected 401, got %d", resp.StatusCode)
	}

	status, r := call(t, ts.URL, "ping", 1, nil, map[string]string{"Authorization": "Bearer supersecret"})
	if status != 200 || r.Error != nil {
		t.Errorf("valid auth failed: status=%d, error=%v", status, r.Error)
	}
}

func TestHTTPEdgeCases(t *testing.T) {
	_, ts := setup(t)

	resp, _ := http.Get(ts.URL + "/mcp")
	resp.Body.Close()
	if resp.StatusCode != 405 {
		t.Errorf("GET: expected 405, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("POST", ts.URL, bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = http.DefaultClient.Do(req)
	var errResp jsonrpcResponse
	json.NewDecoder(resp.Body).Decode(&errResp)
	resp.Body.Close()
	if errResp.Error == nil || errResp.Error.Code != -32700 {
		t.Errorf("invalid JSON: expected parse error, got %+v", errResp.Error)
	}

	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "notifications/initialized"})
	req, _ = http.NewRequest("POST", ts.URL, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != 202 {
		t.Errorf("notification: expected 202, got %d", resp.StatusCode)
	}

	_, r := call(t, ts.URL, "bogus/method", 1, nil, nil)
	if r.Error == nil || r.Error.Code != -32601 {
		t.Errorf("unknown method: expected -32601, got %+v", r.Error)
	}

	_, r = call(t, ts.URL, "ping", 1, nil, nil)
	if r.Error != nil {
		t.Errorf("ping: %+v", r.Error)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := setup(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}

	toolCall(t, ts.URL, "ping", nil)
	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), `toolbelt_tool_calls_total{outcome="ok",tool="ping"}`) {
		t.Errorf("metrics missing ping counter")
	}

	down := httptest.NewServer(mcp.Routes(&mcp.Server{}, func(context.Context) error { return errors.New("db gone") }))
	defer down.Close()
	resp, err = http.Get(down.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: expected 503, got %d", resp.StatusCode)
	}
}
