package bridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// rpcRequest is the wire shape of a length-prefixed MessagePack RPC request:
// {"c": method, "a": kwargs}.
//
// ADC-IMPLEMENTS: <ull-feature-02>
type rpcRequest struct {
	Method string         `msgpack:"c"`
	Args   map[string]any `msgpack:"a"`
}

// RPCBridge launches a co-operative subprocess speaking the length-prefixed
// MessagePack RPC protocol over stdin/stdout and exposes it as a Bridge.
// Provides signature and type introspection (the remote side is expected to
// describe itself via a "describe" method); not docstring introspection.
type RPCBridge struct {
	mu  sync.Mutex
	cmd *exec.Cmd

	stdin  io.WriteCloser
	stdout *bufio.Reader

	// exited receives the subprocess's Wait result exactly once; Close
	// consumes it rather than calling Wait a second time.
	exited chan error

	// closeFn releases the underlying transport when it is not a local
	// subprocess (cmd is nil) — a DialRPCBridge connection, for instance.
	closeFn func() error

	functions map[string]bool
}

// StartRPCBridge launches command (with args) as a subprocess, verifies it
// has not exited within a short startup window, and returns a bridge wired
// to its stdin/stdout.
func StartRPCBridge(ctx context.Context, command string, args ...string) (*RPCBridge, error) {
	cmd := exec.CommandContext(ctx, command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: stdout pipe: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: starting subprocess: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		return nil, fmt.Errorf("ull: rpc bridge: subprocess exited immediately: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	return &RPCBridge{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReader(stdout),
		exited:    exited,
		functions: make(map[string]bool),
	}, nil
}

// DialRPCBridge connects to a reference-language server already listening
// on address (network is "tcp" in practice) and speaking the same
// length-prefixed MessagePack protocol as a subprocess started through
// StartRPCBridge. This is the variant exercised against a containerized
// reference server in integration tests, since a test container is
// addressed over the network rather than through a local stdin/stdout
// pipe.
func DialRPCBridge(ctx context.Context, network, address string) (*RPCBridge, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: dialing %s %s: %w", network, address, err)
	}
	return &RPCBridge{
		stdin:     conn,
		stdout:    bufio.NewReader(conn),
		closeFn:   conn.Close,
		functions: make(map[string]bool),
	}, nil
}

// Invoke sends {"c": method, "a": args} as a length-prefixed MessagePack
// frame and waits for the matching response frame.
func (b *RPCBridge) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload, err := msgpack.Marshal(rpcRequest{Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: encoding request: %w", err)
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	if _, err := b.stdin.Write(length[:]); err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: writing length prefix: %w", err)
	}
	if _, err := b.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: writing payload: %w", err)
	}

	respLength := make([]byte, 4)
	if _, err := io.ReadFull(b.stdout, respLength); err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: reading response length: %w", err)
	}
	n := binary.BigEndian.Uint32(respLength)

	respPayload := make([]byte, n)
	if _, err := io.ReadFull(b.stdout, respPayload); err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: reading response payload: %w", err)
	}

	var raw map[string]any
	if err := msgpack.Unmarshal(respPayload, &raw); err != nil {
		return nil, fmt.Errorf("ull: rpc bridge: decoding response: %w", err)
	}

	if errMsg, ok := raw["e"]; ok {
		return nil, fmt.Errorf("%v", errMsg)
	}
	result, hasResult := raw["r"]
	if !hasResult {
		return nil, fmt.Errorf("ull: rpc bridge: response had neither 'r' nor 'e'")
	}
	return result, nil
}

// Describe calls the conventional "describe" method, which a cooperative
// server uses to advertise its public function names, populating
// FunctionNames/HasFunction. Callers that do not need signature
// introspection may skip this.
func (b *RPCBridge) Describe(ctx context.Context) error {
	result, err := b.Invoke(ctx, "describe", nil)
	if err != nil {
		return err
	}
	names, ok := result.([]any)
	if !ok {
		return fmt.Errorf("ull: rpc bridge: describe did not return a list")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range names {
		if s, ok := n.(string); ok {
			b.functions[s] = true
		}
	}
	return nil
}

// HasFunction reports whether Describe previously reported method.
func (b *RPCBridge) HasFunction(method string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.functions[method]
}

// FunctionNames lists every function name Describe reported.
func (b *RPCBridge) FunctionNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.functions))
	for name := range b.functions {
		out = append(out, name)
	}
	return out
}

// Close sends terminate, waits up to five seconds, then kills. For a bridge
// opened with DialRPCBridge there is no subprocess to signal; Close just
// closes the connection.
func (b *RPCBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd == nil {
		if b.closeFn != nil {
			return b.closeFn()
		}
		return nil
	}

	_ = b.stdin.Close()
	_ = b.cmd.Process.Signal(terminateSignal())

	select {
	case err := <-b.exited:
		return err
	case <-time.After(5 * time.Second):
		if killErr := b.cmd.Process.Kill(); killErr != nil {
			return killErr
		}
		return <-b.exited
	}
}
