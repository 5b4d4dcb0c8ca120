package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandobyte/mcpbox/pkg/httpapi"
	"github.com/kandobyte/mcpbox/pkg/jsonrpc"
	"github.com/kandobyte/mcpbox/pkg/multiplexer"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := multiplexer.New(false)
	t.Cleanup(mux.Shutdown)
	srv := httptest.NewServer(httpapi.NewRouter(mux, httpapi.Options{AuthMode: httpapi.AuthNone}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/nonsense")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Not found", body.Error)
}

func TestJSONRPCPingRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rpc jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	require.Nil(t, rpc.Error)
	require.JSONEq(t, `{}`, string(rpc.Result))
}

func TestJSONRPCNotificationReturns202WithNoBody(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestJSONRPCMalformedBodyIsParseError(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rpc jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	require.NotNil(t, rpc.Error)
	require.Equal(t, jsonrpc.CodeParseError, rpc.Error.Code)
}

func TestJSONRPCWrongVersionIsInvalidRequest(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"1.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var rpc jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	require.NotNil(t, rpc.Error)
	require.Equal(t, jsonrpc.CodeInvalidRequest, rpc.Error.Code)
}

func TestUnknownMethodIsMethodNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"not/a/method"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rpc jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	require.NotNil(t, rpc.Error)
	require.Equal(t, jsonrpc.CodeMethodNotFound, rpc.Error.Code)
}

func TestStatusEndpointReportsNoChildren(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Children []any `json:"children"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Empty(t, body.Children)
}
