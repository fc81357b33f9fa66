// Package bridge defines the single operation every library bridge exposes
// and implements the three concrete bridges: Direct, RPC, and CLI fallback.
//
// ADC-IMPLEMENTS: <ull-feature-04>
package bridge

import "context"

// Bridge is the single surface every loaded library is reached through:
// rather than forwarding arbitrary attribute access through a dynamic
// proxy, every bridge exposes exactly one call operation. Callers build
// whatever thin method-dispatch sugar they want on top of Invoke; tests
// target Invoke directly, never a synthetic method.
type Bridge interface {
	// Invoke calls method on the loaded library with the given keyword
	// arguments and returns its result.
	Invoke(ctx context.Context, method string, args map[string]any) (any, error)

	// HasFunction reports whether method is present on the loaded library,
	// used by the Compliance Verifier's function-presence check.
	HasFunction(method string) bool

	// FunctionNames lists every public function the bridge was able to
	// discover, used to build richer verification diagnostics.
	FunctionNames() []string

	// Close releases any resources the bridge holds (a subprocess, an open
	// file). Bridges that hold nothing make this a no-op.
	Close() error
}
