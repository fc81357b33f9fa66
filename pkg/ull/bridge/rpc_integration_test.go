package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// referenceServerScript is a tiny Python TCP server speaking the same
// length-prefixed MessagePack RPC protocol serveRPC implements in-process
// in rpc_test.go. It stands in for a known-language reference library,
// running as a real external process inside a throwaway container rather
// than as a Go in-process fixture.
const referenceServerScript = `
import socket
import struct
import msgpack

def handle(conn):
    while True:
        header = conn.recv(4)
        if len(header) < 4:
            return
        n = struct.unpack(">I", header)[0]
        payload = b""
        while len(payload) < n:
            chunk = conn.recv(n - len(payload))
            if not chunk:
                return
            payload += chunk
        req = msgpack.unpackb(payload, raw=False)
        method = req.get("c")
        args = req.get("a") or {}
        if method == "describe":
            resp = {"r": ["echo", "describe"]}
        elif method == "echo":
            resp = {"r": args.get("value")}
        else:
            resp = {"e": "Unknown method: %s" % method}
        body = msgpack.packb(resp, use_bin_type=True)
        conn.sendall(struct.pack(">I", len(body)) + body)

s = socket.socket(socket.AF_INET, socket.SOCK_STREAM)
s.setsockopt(socket.SOL_SOCKET, socket.SO_REUSEADDR, 1)
s.bind(("0.0.0.0", 8765))
s.listen(1)
while True:
    conn, _ = s.accept()
    try:
        handle(conn)
    finally:
        conn.close()
`

// TestRPCBridge_ContainerizedReferenceServer spins up a throwaway container
// running the Python reference server above and drives a full
// DialRPCBridge round trip (describe + echo) against it. Skipped in short
// test runs since it needs a working Docker daemon.
func TestRPCBridge_ContainerizedReferenceServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed RPC bridge test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "python:3-alpine",
		ExposedPorts: []string{"8765/tcp"},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            strings.NewReader(referenceServerScript),
				ContainerFilePath: "/reference_server.py",
				FileMode:          0o644,
			},
		},
		Cmd: []string{
			"sh", "-c",
			"pip install --no-cache-dir msgpack >/dev/null 2>&1 && python /reference_server.py",
		},
		WaitingFor: wait.ForListeningPort("8765/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "8765/tcp")
	require.NoError(t, err)

	b, err := DialRPCBridge(ctx, "tcp", host+":"+mapped.Port())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Describe(ctx))
	require.True(t, b.HasFunction("echo"))

	result, err := b.Invoke(ctx, "echo", map[string]any{"value": "hello from the host"})
	require.NoError(t, err)
	require.Equal(t, "hello from the host", result)
}
