package multiplexer

import (
	"encoding/json"
	"fmt"

	"github.com/kandobyte/mcpbox/pkg/jsonrpc"
	"github.com/kandobyte/mcpbox/pkg/namespace"
)

// Dispatch resolves and executes a single gateway-facing MCP method, per the
// operation table in spec §4.5. The local methods (ping, initialize) are
// answered directly; everything else is resolved through the routing
// indexes and forwarded to the owning child.
func (m *Multiplexer) Dispatch(id json.RawMessage, method string, params json.RawMessage) *jsonrpc.Response {
	switch method {
	case "initialize":
		return m.initializeResult(id)
	case "ping":
		result, _ := json.Marshal(map[string]any{})
		return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: result}
	case "tools/list":
		return m.wrappedList(id, "tools", m.aggregate(func(c *Child) []Descriptor { return c.tools }, "name"))
	case "tools/call":
		return m.routedCall(id, params, "name", m.toolIdx, "tools/call", "Unknown tool")
	case "resources/list":
		return m.wrappedList(id, "resources", m.aggregate(func(c *Child) []Descriptor { return c.resources }, "uri"))
	case "resources/read":
		return m.routedCall(id, params, "uri", m.resIdx, "resources/read", "Unknown resource")
	case "prompts/list":
		return m.wrappedList(id, "prompts", m.aggregate(func(c *Child) []Descriptor { return c.prompts }, "name"))
	case "prompts/get":
		return m.routedCall(id, params, "name", m.promptIdx, "prompts/get", "Unknown prompt")
	case "completion/complete":
		return m.completionComplete(id, params)
	default:
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeMethodNotFound, "Method not found: "+method)
	}
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      clientInfo     `json:"serverInfo"`
}

func (m *Multiplexer) initializeResult(id json.RawMessage) *jsonrpc.Response {
	result, _ := json.Marshal(initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":       map[string]any{"listChanged": true},
			"resources":   map[string]any{"listChanged": true},
			"prompts":     map[string]any{"listChanged": true},
			"completions": map[string]any{},
		},
		ServerInfo: clientInfo{Name: GatewayName, Version: ProtocolVersion},
	})
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: result}
}

// aggregate concatenates every child's descriptors, in insertion order, as
// rewritten through the namespace codec (spec §4.5 "Runtime operations").
func (m *Multiplexer) aggregate(pick func(*Child) []Descriptor, idKey string) []json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []json.RawMessage
	for _, name := range m.order {
		c, ok := m.children[name]
		if !ok || c.State() != Ready {
			continue
		}
		for _, d := range pick(c) {
			out = append(out, renamedDescriptor(d, idKey))
		}
	}
	return out
}

// renamedDescriptor re-serialises d.Raw with its identifying field (key)
// replaced by the namespaced public name, preserving every other field the
// child originally returned.
func renamedDescriptor(d Descriptor, key string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(d.Raw, &fields); err != nil {
		return d.Raw
	}
	encoded, _ := json.Marshal(d.Namespaced)
	fields[key] = encoded
	out, _ := json.Marshal(fields)
	return out
}

func (m *Multiplexer) wrappedList(id json.RawMessage, key string, items []json.RawMessage) *jsonrpc.Response {
	if items == nil {
		items = []json.RawMessage{}
	}
	result, _ := json.Marshal(map[string]any{key: items})
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: result}
}

// routedCall looks up the namespaced identifier under idKey in params
// against index, forwards the de-namespaced call to the owning child, and
// maps lookup/downstream failures to -32603 per spec §4.5.
func (m *Multiplexer) routedCall(id json.RawMessage, params json.RawMessage, idKey string, index map[string]string, childMethod, notFoundLabel string) *jsonrpc.Response {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(params, &probe); err != nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInvalidParams, "Invalid params")
	}
	var namespacedID string
	if raw, ok := probe[idKey]; ok {
		_ = json.Unmarshal(raw, &namespacedID)
	}

	m.mu.RLock()
	childName, ok := index[namespacedID]
	var child *Child
	if ok {
		child = m.children[childName]
	}
	m.mu.RUnlock()

	if !ok || child == nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInternalError, fmt.Sprintf("%s: %s", notFoundLabel, namespacedID))
	}

	originalID := namespacedID
	if !m.skipNamespace {
		originalID = namespace.Strip(childName, namespacedID)
	}

	rewritten := make(map[string]json.RawMessage, len(probe))
	for k, v := range probe {
		rewritten[k] = v
	}
	encodedOriginal, _ := json.Marshal(originalID)
	rewritten[idKey] = encodedOriginal
	newParams, _ := json.Marshal(rewritten)
	var anyParams any
	_ = json.Unmarshal(newParams, &anyParams)

	resp, err := child.call(childMethod, anyParams, callTimeout)
	if err != nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInternalError, err.Error())
	}
	if resp.Error != nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInternalError, resp.Error.Message)
	}

	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: resp.Result}
}

type completionRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// completionComplete discriminates on ref.type per spec §4.5: "ref/prompt"
// routes through the prompt index, "ref/resource" through the resource
// index, de-namespacing the ref before forwarding.
func (m *Multiplexer) completionComplete(id json.RawMessage, params json.RawMessage) *jsonrpc.Response {
	var body struct {
		Ref      completionRef   `json:"ref"`
		Argument json.RawMessage `json:"argument"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInvalidParams, "Invalid params")
	}

	var index map[string]string
	var namespacedID string
	switch body.Ref.Type {
	case "ref/prompt":
		index = m.promptIdx
		namespacedID = body.Ref.Name
	case "ref/resource":
		index = m.resIdx
		namespacedID = body.Ref.URI
	default:
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInvalidParams, "Unknown completion ref type")
	}

	m.mu.RLock()
	childName, ok := index[namespacedID]
	var child *Child
	if ok {
		child = m.children[childName]
	}
	m.mu.RUnlock()

	if !ok || child == nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInternalError, fmt.Sprintf("Unknown tool/resource/prompt: %s", namespacedID))
	}

	originalID := namespacedID
	if !m.skipNamespace {
		originalID = namespace.Strip(childName, namespacedID)
	}

	rewrittenRef := body.Ref
	if body.Ref.Type == "ref/prompt" {
		rewrittenRef.Name = originalID
	} else {
		rewrittenRef.URI = originalID
	}
	newParams := map[string]any{"ref": rewrittenRef}
	if body.Argument != nil {
		var arg any
		_ = json.Unmarshal(body.Argument, &arg)
		newParams["argument"] = arg
	}

	resp, err := child.call("completion/complete", newParams, callTimeout)
	if err != nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInternalError, err.Error())
	}
	if resp.Error != nil {
		return jsonrpc.ErrorResponse(id, jsonrpc.CodeInternalError, resp.Error.Message)
	}
	return &jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: id, Result: resp.Result}
}
