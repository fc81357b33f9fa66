package bridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// TestHelperProcess is not a real test: it is re-executed as a subprocess by
// the tests below (the same pattern os/exec's own tests use for a
// deterministic, always-available "reference server" that needs no
// external interpreter). It speaks the bridge's length-prefixed MessagePack
// protocol over stdin/stdout until EOF.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ADC_RPC_HELPER_PROCESS") != "1" {
		return
	}
	serveRPC(os.Stdin, os.Stdout)
	os.Exit(0)
}

func serveRPC(in io.Reader, out io.Writer) {
	r := bufio.NewReader(in)
	for {
		var length [4]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(length[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return
		}

		var req rpcRequest
		if err := msgpack.Unmarshal(payload, &req); err != nil {
			return
		}

		resp := map[string]any{}
		switch req.Method {
		case "describe":
			resp["r"] = []string{"echo", "describe"}
		case "echo":
			resp["r"] = req.Args["value"]
		default:
			resp["e"] = fmt.Sprintf("Unknown method: %s", req.Method)
		}

		respPayload, err := msgpack.Marshal(resp)
		if err != nil {
			return
		}
		var respLength [4]byte
		binary.BigEndian.PutUint32(respLength[:], uint32(len(respPayload)))
		if _, err := out.Write(respLength[:]); err != nil {
			return
		}
		if _, err := out.Write(respPayload); err != nil {
			return
		}
	}
}

func helperProcessCommand(t *testing.T) (string, []string) {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe, []string{"-test.run=TestHelperProcess"}
}

func TestRPCBridge_InvokeRoundTrip(t *testing.T) {
	if os.Getenv("ADC_RPC_HELPER_PROCESS") == "1" {
		t.Skip("this invocation is the helper subprocess itself")
	}

	exe, args := helperProcessCommand(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := startHelperBridge(ctx, exe, args)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Describe(ctx))
	assert.True(t, b.HasFunction("echo"))
	assert.ElementsMatch(t, []string{"echo", "describe"}, b.FunctionNames())

	result, err := b.Invoke(ctx, "echo", map[string]any{"value": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)

	_, err = b.Invoke(ctx, "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown method")
}

// startHelperBridge launches the test binary itself as the RPC subprocess
// with ADC_RPC_HELPER_PROCESS=1 set, exactly as StartRPCBridge launches any
// other co-operative server, just without needing a real interpreter on
// the test machine.
func startHelperBridge(ctx context.Context, exe string, args []string) (*RPCBridge, error) {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = append(os.Environ(), "ADC_RPC_HELPER_PROCESS=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	return &RPCBridge{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReader(stdout),
		exited:    exited,
		functions: make(map[string]bool),
	}, nil
}

func TestStartRPCBridge_ImmediateExitIsError(t *testing.T) {
	skipOnWindows(t)
	_, err := StartRPCBridge(context.Background(), "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited immediately")
}

// TestDialRPCBridge_LocalListener exercises DialRPCBridge's wire protocol
// against an in-process TCP listener, without needing Docker. The
// container-backed variant in rpc_integration_test.go exercises the same
// DialRPCBridge path against a real external process instead.
func TestDialRPCBridge_LocalListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveRPC(conn, conn)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := DialRPCBridge(ctx, "tcp", ln.Addr().String())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Describe(ctx))
	assert.True(t, b.HasFunction("describe"))

	result, err := b.Invoke(ctx, "echo", map[string]any{"value": int64(42)})
	require.NoError(t, err)
	assert.EqualValues(t, 42, result)
}
