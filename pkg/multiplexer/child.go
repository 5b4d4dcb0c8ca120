// Package multiplexer supervises the locally-spawned MCP child processes,
// performs their handshake and catalogue discovery, and routes inbound MCP
// requests to the child that owns the namespaced tool/resource/prompt, per
// spec §4.5.
package multiplexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kandobyte/mcpbox/pkg/jsonrpc"
	"github.com/kandobyte/mcpbox/pkg/log"
)

// State is a child's position in the supervision lifecycle, per spec §4.5:
// Configured → Spawning → Handshaking → Ready → Stopping → Stopped, with
// Failed reachable from any of the first three.
type State int

const (
	Configured State = iota
	Spawning
	Handshaking
	Ready
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Spawning:
		return "spawning"
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Spec is the configured shape of one child entry (spec §6 "mcpServers").
type Spec struct {
	Name          string
	Command       string
	Args          []string
	Env           map[string]string
	ToolAllowlist []string
}

// Descriptor is a tool/resource/prompt as discovered from a child, carrying
// both its namespaced public name (or URI) and the original one the child
// understands (spec §3).
type Descriptor struct {
	Namespaced string
	Original   string
	Raw        json.RawMessage
}

// Child is a single supervised MCP server process.
type Child struct {
	spec     Spec
	mcpDebug bool

	mu    sync.Mutex
	state State
	err   error

	cmd   *exec.Cmd
	stdin io.WriteCloser
	codec *jsonrpc.StdioCodec

	nextID  int64
	pending sync.Map // map[string]chan *jsonrpc.Response

	tools     []Descriptor
	resources []Descriptor
	prompts   []Descriptor
}

func newChild(spec Spec, mcpDebug bool) *Child {
	return &Child{spec: spec, mcpDebug: mcpDebug, state: Configured}
}

func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Child) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Child) fail(err error) {
	c.mu.Lock()
	c.state = Failed
	c.err = err
	c.mu.Unlock()
	log.Warnf("multiplexer: child %q failed: %v", c.spec.Name, err)
}

// spawn starts the child process and wires its stdio into a StdioCodec. The
// environment merges the child's configured env atop a minimal default
// environment: HOME, LOGNAME, PATH, SHELL, TERM and USER, taken from the
// gateway's own environment when set (spec §4.5 "Spawn").
func (c *Child) spawn() error {
	c.setState(Spawning)

	cmd := exec.Command(c.spec.Command, c.spec.Args...)
	var env []string
	for _, k := range []string{"HOME", "LOGNAME", "PATH", "SHELL", "TERM", "USER"} {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	for k, v := range c.spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("opening stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting process: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.codec = jsonrpc.NewStdioCodec(stdin, stdout)

	go c.drainStderr(stderr)
	go c.readLoop()

	return nil
}

// drainStderr discards stderr by default, forwarding it line-buffered to
// logs under the "[mcp:<name>]" prefix when mcp-debug is enabled (spec
// §4.5 "Spawn").
func (c *Child) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if c.mcpDebug {
			log.Mcp(c.spec.Name, scanner.Text())
		}
	}
}

// readLoop continuously drains the child's stdout, demultiplexing responses
// to the pending caller by JSON-RPC id. Unsolicited requests from the
// child (e.g. sampling) are outside spec scope and are logged and dropped.
func (c *Child) readLoop() {
	for {
		req, resp, err := c.codec.ReadMessage()
		if err != nil {
			if err != io.EOF {
				log.Warnf("multiplexer: child %q stdio read error: %v", c.spec.Name, err)
			}
			c.drainPending(err)
			return
		}
		if req != nil {
			log.Debugf("multiplexer: child %q sent unsolicited request %q; ignoring", c.spec.Name, req.Method)
			continue
		}
		key := string(resp.ID)
		if ch, ok := c.pending.LoadAndDelete(key); ok {
			ch.(chan *jsonrpc.Response) <- resp
		}
	}
}

func (c *Child) drainPending(cause error) {
	c.pending.Range(func(key, value any) bool {
		c.pending.Delete(key)
		value.(chan *jsonrpc.Response) <- jsonrpc.ErrorResponse(json.RawMessage(key.(string)), jsonrpc.CodeInternalError, fmt.Sprintf("child closed: %v", cause))
		return true
	})
}

// call issues a JSON-RPC request to the child and blocks for its matching
// response, or until ctx-independent send/receive failure.
func (c *Child) call(method string, params any, timeout time.Duration) (*jsonrpc.Response, error) {
	id := strconv.FormatInt(atomic.AddInt64(&c.nextID, 1), 10)
	idJSON := json.RawMessage(id)

	req, err := jsonrpc.NewRequest(idJSON, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan *jsonrpc.Response, 1)
	c.pending.Store(id, ch)

	if err := c.codec.WriteRequest(req); err != nil {
		c.pending.Delete(id)
		return nil, fmt.Errorf("writing request to child %q: %w", c.spec.Name, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		c.pending.Delete(id)
		return nil, fmt.Errorf("child %q timed out replying to %q", c.spec.Name, method)
	}
}

// shutdown closes the child's stdin (signalling EOF to a well-behaved MCP
// server), waits briefly for a clean exit, and kills the process if it
// hasn't exited by then.
func (c *Child) shutdown() error {
	c.setState(Stopping)
	if c.cmd == nil || c.cmd.Process == nil {
		c.setState(Stopped)
		return nil
	}

	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		_ = c.cmd.Process.Kill()
		err = <-done
	}

	c.setState(Stopped)
	return err
}
