package bridge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// cliSearchDirs are the conventional output directories scanned for a built
// executable, in order.
//
// ADC-IMPLEMENTS: <ull-feature-04>
var cliSearchDirs = []string{
	"bin",
	"build",
	filepath.Join("target", "release"),
	filepath.Join("target", "debug"),
	"dist",
	".",
}

var nonCLISuffixes = map[string]bool{".so": true, ".dylib": true, ".dll": true, ".a": true}

// CLILimitations documents what the CLI fallback bridge can and cannot
// verify. Surfaced to callers who want to explain a LIMITED verification
// level.
const CLILimitations = `CLI Fallback Bridge Limitations:

CAN VERIFY:
- Command exists and is executable
- Basic output format
- Help text presence
- Exit codes

CANNOT VERIFY:
- Type signatures
- Parameter annotations
- Return types
- Docstring compliance

Implement a same-language or RPC binding for full verification.`

// CLIBridge wraps a built binary discovered in the workspace, translating
// Invoke calls into "<exe> <method> [--k v ...]" shell-outs. It provides
// command-existence verification only.
type CLIBridge struct {
	workspacePath string
	executable    string
}

// NewCLIBridge locates a CLI executable under workspacePath and returns a
// bridge wrapping it. Returns an error enumerating every directory searched
// if none is found.
func NewCLIBridge(workspacePath string) (*CLIBridge, error) {
	exe, err := detectCLIExecutable(workspacePath)
	if err != nil {
		return nil, err
	}
	return &CLIBridge{workspacePath: workspacePath, executable: exe}, nil
}

func detectCLIExecutable(workspacePath string) (string, error) {
	searched := make([]string, 0, len(cliSearchDirs))
	for _, rel := range cliSearchDirs {
		dir := filepath.Join(workspacePath, rel)
		searched = append(searched, dir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.Mode()&0o111 == 0 {
				continue
			}
			if nonCLISuffixes[filepath.Ext(e.Name())] {
				continue
			}
			return filepath.Join(dir, e.Name()), nil
		}
	}

	return "", fmt.Errorf(
		"ull: no CLI executable found in %s\n  searched: %s\n  fix: build your project first, or provide a same-language/RPC binding",
		workspacePath, strings.Join(searched, ", "),
	)
}

// VerifyCommandsExist checks, for each name in required, whether
// "<exe> <name> --help" exits zero or prints help/usage text. This is
// limited verification: existence only, never signature or type.
func (b *CLIBridge) VerifyCommandsExist(ctx context.Context, required []string) map[string]bool {
	results := make(map[string]bool, len(required))
	for _, command := range required {
		results[command] = b.commandExists(ctx, command)
	}
	return results
}

func (b *CLIBridge) commandExists(ctx context.Context, command string) bool {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, b.executable, command, "--help")
	out, err := cmd.CombinedOutput()
	lower := strings.ToLower(string(out))
	if err == nil {
		return true
	}
	return strings.Contains(lower, "usage") || strings.Contains(lower, "help")
}

// Invoke runs "<exe> <method> [--k v ...]" under a 30-second timeout and
// returns stdout as a string.
func (b *CLIBridge) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cliArgs := []string{method}
	for k, v := range args {
		key := strings.ReplaceAll(k, "_", "-")
		cliArgs = append(cliArgs, "--"+key, fmt.Sprintf("%v", v))
	}

	cmd := exec.CommandContext(cctx, b.executable, cliArgs...)
	cmd.Dir = b.workspacePath

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("ull: CLI command timed out after 30 seconds: %s", method)
	}
	if err != nil {
		return nil, fmt.Errorf(
			"ull: CLI command failed: %s\n  command: %s %s\n  error: %s",
			method, b.executable, strings.Join(cliArgs, " "), stderr.String(),
		)
	}
	return stdout.String(), nil
}

// HasFunction probes "<exe> <method> --help": the CLI bridge cannot
// enumerate a binary's subcommands statically, so presence is checked the
// same way VerifyCommandsExist does.
func (b *CLIBridge) HasFunction(method string) bool {
	return b.commandExists(context.Background(), method)
}

// FunctionNames returns nil: the CLI bridge has no static enumeration
// capability.
func (b *CLIBridge) FunctionNames() []string { return nil }

// Close is a no-op: the CLI bridge owns no persistent resources between
// Invoke calls.
func (b *CLIBridge) Close() error { return nil }
