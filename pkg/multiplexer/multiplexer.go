package multiplexer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kandobyte/mcpbox/pkg/jsonrpc"
	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/namespace"
)

// ProtocolVersion is the MCP protocol version the gateway announces during
// handshake (spec §4.5).
const ProtocolVersion = "2025-11-25"

// GatewayName identifies this process to children during initialize; the
// version announced alongside it is ProtocolVersion.
const GatewayName = "mcpbox"

// callTimeout bounds how long the multiplexer waits for a child's reply to
// any single request.
const callTimeout = 30 * time.Second

// skipNamespaceEnv disables the namespace codec process-wide, for
// conformance-suite runs only (spec §4.5, §6).
const skipNamespaceEnv = "__MCPBOX_SKIP_NAMESPACE"

// Multiplexer supervises the configured set of MCP children and routes
// namespaced requests to the child that owns them.
type Multiplexer struct {
	mcpDebug      bool
	skipNamespace bool

	mu       sync.RWMutex
	children map[string]*Child
	order    []string // child names in spec order, for deterministic catalogue merges

	toolIdx   map[string]string // namespaced tool name -> child name
	resIdx    map[string]string // namespaced resource uri -> child name
	promptIdx map[string]string // namespaced prompt name -> child name
}

// New constructs an empty Multiplexer. It does not spawn anything; pass the
// configured child specs to Start.
func New(mcpDebug bool) *Multiplexer {
	return &Multiplexer{
		mcpDebug:      mcpDebug,
		skipNamespace: os.Getenv(skipNamespaceEnv) == "1",
		children:      make(map[string]*Child),
		toolIdx:       make(map[string]string),
		resIdx:        make(map[string]string),
		promptIdx:     make(map[string]string),
	}
}

func (m *Multiplexer) encode(child, name string) string {
	if m.skipNamespace {
		return name
	}
	return namespace.Encode(child, name)
}

// Start spawns, handshakes and discovers the catalogue for every spec,
// concurrently. Per-child failures are logged and leave that child in the
// Failed state; they never abort the whole startup (spec §4.5).
func (m *Multiplexer) Start(specs []Spec) {
	var wg sync.WaitGroup
	var succeeded, failed int

	results := make([]*Child, len(specs))
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec Spec) {
			defer wg.Done()
			child := newChild(spec, m.mcpDebug)
			if err := m.bringUp(child); err != nil {
				child.fail(err)
			}
			results[i] = child
		}(i, spec)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, spec := range specs {
		m.order = append(m.order, spec.Name)
	}
	for _, child := range results {
		m.children[child.spec.Name] = child
		if child.State() == Ready {
			succeeded++
			m.indexLocked(child)
		} else {
			failed++
		}
	}
	log.Logf("multiplexer: startup complete: %d child(ren) ready, %d failed", succeeded, failed)
}

func (m *Multiplexer) bringUp(child *Child) error {
	if err := child.spawn(); err != nil {
		return fmt.Errorf("spawn: %w", err)
	}

	child.setState(Handshaking)
	if err := m.handshake(child); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	if err := m.discover(child); err != nil {
		return fmt.Errorf("catalogue discovery: %w", err)
	}

	child.setState(Ready)
	return nil
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (m *Multiplexer) handshake(child *Child) error {
	resp, err := child.call("initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: GatewayName, Version: ProtocolVersion},
	}, callTimeout)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize: %s", resp.Error.Message)
	}

	notification, err := jsonrpc.NewRequest(nil, "notifications/initialized", struct{}{})
	if err != nil {
		return err
	}
	if err := child.codec.WriteRequest(notification); err != nil {
		return fmt.Errorf("writing initialized notification: %w", err)
	}
	return nil
}

type toolDescriptor struct {
	Name string `json:"name"`
}
type resourceDescriptor struct {
	URI string `json:"uri"`
}
type promptDescriptor struct {
	Name string `json:"name"`
}

// discover runs the three best-effort catalogue listings (spec §4.5
// "Catalogue discovery"), renames survivors through the namespace codec,
// and stores them on the child record.
func (m *Multiplexer) discover(child *Child) error {
	tools, err := m.listTools(child)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	child.tools = tools

	if resources, err := m.listResources(child); err == nil {
		child.resources = resources
	}
	if prompts, err := m.listPrompts(child); err == nil {
		child.prompts = prompts
	}

	return nil
}

func (m *Multiplexer) listTools(child *Child) ([]Descriptor, error) {
	resp, err := child.call("tools/list", map[string]any{}, callTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s", resp.Error.Message)
	}

	var result struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}

	allowlist := allowlistSet(child.spec.ToolAllowlist)
	var out []Descriptor
	seen := make(map[string]bool)
	for _, raw := range result.Tools {
		var d toolDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		if allowlist != nil {
			if !allowlist[d.Name] {
				continue
			}
			seen[d.Name] = true
		}
		out = append(out, Descriptor{
			Namespaced: m.encode(child.spec.Name, d.Name),
			Original:   d.Name,
			Raw:        raw,
		})
	}
	if allowlist != nil {
		for name := range allowlist {
			if !seen[name] {
				log.Warnf("multiplexer: child %q allowlist names unknown tool %q", child.spec.Name, name)
			}
		}
	}
	return out, nil
}

func (m *Multiplexer) listResources(child *Child) ([]Descriptor, error) {
	resp, err := child.call("resources/list", map[string]any{}, callTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s", resp.Error.Message)
	}
	var result struct {
		Resources []json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}
	var out []Descriptor
	for _, raw := range result.Resources {
		var d resourceDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		out = append(out, Descriptor{Namespaced: m.encode(child.spec.Name, d.URI), Original: d.URI, Raw: raw})
	}
	return out, nil
}

func (m *Multiplexer) listPrompts(child *Child) ([]Descriptor, error) {
	resp, err := child.call("prompts/list", map[string]any{}, callTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s", resp.Error.Message)
	}
	var result struct {
		Prompts []json.RawMessage `json:"prompts"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}
	var out []Descriptor
	for _, raw := range result.Prompts {
		var d promptDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		out = append(out, Descriptor{Namespaced: m.encode(child.spec.Name, d.Name), Original: d.Name, Raw: raw})
	}
	return out, nil
}

func allowlistSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// indexLocked inserts child's catalogue into the routing indexes. Caller
// must hold m.mu for writing.
func (m *Multiplexer) indexLocked(child *Child) {
	for _, d := range child.tools {
		m.toolIdx[d.Namespaced] = child.spec.Name
	}
	for _, d := range child.resources {
		m.resIdx[d.Namespaced] = child.spec.Name
	}
	for _, d := range child.prompts {
		m.promptIdx[d.Namespaced] = child.spec.Name
	}
}

// Shutdown closes every child's stdio transport concurrently, per spec §4.5
// and §5.
func (m *Multiplexer) Shutdown() error {
	m.mu.Lock()
	children := make([]*Child, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	m.children = make(map[string]*Child)
	m.order = nil
	m.toolIdx = make(map[string]string)
	m.resIdx = make(map[string]string)
	m.promptIdx = make(map[string]string)
	m.mu.Unlock()

	var g errgroup.Group
	for _, c := range children {
		c := c
		g.Go(func() error {
			if err := c.shutdown(); err != nil {
				log.Warnf("multiplexer: child %q exited with error: %v", c.spec.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// HealthReport summarises one child's health, used by the /status handler.
type HealthReport struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Up     bool   `json:"up"`
	Tools  int    `json:"tools"`
	Resources int `json:"resources"`
	Prompts   int `json:"prompts"`
}

// Health pings every ready child and reports up/down plus catalogue counts
// (spec §4.5 "health probe").
func (m *Multiplexer) Health() []HealthReport {
	m.mu.RLock()
	children := make([]*Child, 0, len(m.order))
	for _, name := range m.order {
		if c, ok := m.children[name]; ok {
			children = append(children, c)
		}
	}
	m.mu.RUnlock()

	reports := make([]HealthReport, len(children))
	var wg sync.WaitGroup
	for i, c := range children {
		wg.Add(1)
		go func(i int, c *Child) {
			defer wg.Done()
			reports[i] = m.pingChild(c)
		}(i, c)
	}
	wg.Wait()
	return reports
}

func (m *Multiplexer) pingChild(c *Child) HealthReport {
	report := HealthReport{
		Name:      c.spec.Name,
		State:     c.State().String(),
		Tools:     len(c.tools),
		Resources: len(c.resources),
		Prompts:   len(c.prompts),
	}
	if c.State() != Ready {
		return report
	}
	resp, err := c.call("ping", map[string]any{}, 5*time.Second)
	report.Up = err == nil && resp.Error == nil
	return report
}
