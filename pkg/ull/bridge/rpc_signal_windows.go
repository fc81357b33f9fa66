//go:build windows

package bridge

import "os"

// terminateSignal returns the graceful-shutdown signal sent to an RPC
// bridge's subprocess before the five-second grace period elapses. Windows
// has no SIGTERM equivalent available through os.Signal, so this falls
// straight to os.Kill; the five-second grace period still applies before
// the bridge escalates to Process.Kill.
func terminateSignal() os.Signal {
	return os.Kill
}
