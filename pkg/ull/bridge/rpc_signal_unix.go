//go:build !windows

package bridge

import (
	"os"
	"syscall"
)

// terminateSignal returns the graceful-shutdown signal sent to an RPC
// bridge's subprocess before the five-second grace period elapses.
func terminateSignal() os.Signal {
	return syscall.SIGTERM
}
