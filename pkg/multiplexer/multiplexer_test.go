package multiplexer

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandobyte/mcpbox/pkg/jsonrpc"
)

// fakeChildServer answers a single "tools/list" and any number of
// "tools/call" requests in-process over a pipe, standing in for a real
// spawned MCP server so routing can be exercised without exec.Command.
func fakeChildServer(t *testing.T, r io.Reader, w io.Writer, tools []string) {
	t.Helper()
	codec := jsonrpc.NewStdioCodec(w, r)
	go func() {
		for {
			req, _, err := codec.ReadMessage()
			if err != nil {
				return
			}
			switch req.Method {
			case "initialize":
				result, _ := json.Marshal(map[string]any{"protocolVersion": ProtocolVersion})
				_ = codec.WriteResponse(&jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: result})
			case "notifications/initialized":
				// no response expected
			case "tools/list":
				descriptors := make([]map[string]any, 0, len(tools))
				for _, name := range tools {
					descriptors = append(descriptors, map[string]any{"name": name})
				}
				result, _ := json.Marshal(map[string]any{"tools": descriptors})
				_ = codec.WriteResponse(&jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: result})
			case "resources/list", "prompts/list":
				_ = codec.WriteResponse(jsonrpc.ErrorResponse(req.ID, jsonrpc.CodeMethodNotFound, "not supported"))
			case "tools/call":
				var params struct {
					Name      string         `json:"name"`
					Arguments map[string]any `json:"arguments"`
				}
				_ = json.Unmarshal(req.Params, &params)
				if params.Name == "fail" {
					_ = codec.WriteResponse(jsonrpc.ErrorResponse(req.ID, jsonrpc.CodeInternalError, "boom"))
					continue
				}
				result, _ := json.Marshal(map[string]any{"content": []map[string]any{{"type": "text", "text": "8"}}})
				_ = codec.WriteResponse(&jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: req.ID, Result: result})
			}
		}
	}()
}

// wireChild builds a Child whose codec talks to an in-process fake server,
// skipping spawn() entirely.
func wireChild(t *testing.T, name string, tools []string) *Child {
	t.Helper()
	toChild, fromTest := io.Pipe()
	toTest, fromChild := io.Pipe()

	fakeChildServer(t, toChild, fromChild, tools)

	c := newChild(Spec{Name: name}, false)
	c.codec = jsonrpc.NewStdioCodec(fromTest, toTest)
	go c.readLoop()
	return c
}

func TestNamespaceRoutingAndUnknownTool(t *testing.T) {
	m := New(false)
	child := wireChild(t, "mock", []string{"echo", "add", "fail"})

	require.NoError(t, m.handshake(child))
	require.NoError(t, m.discover(child))
	child.setState(Ready)

	m.mu.Lock()
	m.children[child.spec.Name] = child
	m.order = append(m.order, child.spec.Name)
	m.indexLocked(child)
	m.mu.Unlock()

	listResp := m.Dispatch(json.RawMessage("1"), "tools/list", nil)
	require.Nil(t, listResp.Error)
	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(listResp.Result, &list))
	names := make([]string, len(list.Tools))
	for i, tl := range list.Tools {
		names[i] = tl.Name
	}
	require.ElementsMatch(t, []string{"mock__echo", "mock__add", "mock__fail"}, names)

	callParams, _ := json.Marshal(map[string]any{"name": "mock__add", "arguments": map[string]any{"a": 5, "b": 3}})
	callResp := m.Dispatch(json.RawMessage("2"), "tools/call", callParams)
	require.Nil(t, callResp.Error)

	unknownParams, _ := json.Marshal(map[string]any{"name": "ghost__doNothing"})
	unknownResp := m.Dispatch(json.RawMessage("3"), "tools/call", unknownParams)
	require.NotNil(t, unknownResp.Error)
	require.Equal(t, jsonrpc.CodeInternalError, unknownResp.Error.Code)
	require.Contains(t, unknownResp.Error.Message, "ghost__doNothing")
}
