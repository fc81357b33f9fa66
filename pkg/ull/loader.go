package ull

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/owlduet-labs/adc-engine/internal/logger"
	"github.com/owlduet-labs/adc-engine/pkg/ull/bridge"
)

// rpcEntryPointGlobs are the conventional subprocess entry points searched
// for before falling back to the CLI bridge. A workspace that exposes one
// of these gets full RPC-level introspection instead of existence-only
// CLI verification.
var rpcEntryPointGlobs = []string{
	filepath.Join("bin", "serve"),
	filepath.Join("bin", "serve.py"),
	filepath.Join("bin", "serve.js"),
	filepath.Join("bin", "rpc_server"),
	filepath.Join("bin", "rpc_server.py"),
}

// Options configures Load's bridge-selection policy.
type Options struct {
	// Strict refuses to fall back to a limited-verification bridge (CLI)
	// and instead returns an error naming what would have been used.
	Strict bool

	// ExpectedLanguage skips filename-based detection entirely when set,
	// for callers that already know what the workspace holds.
	ExpectedLanguage Language
}

// Load detects workspacePath's language and loads it through the
// highest-fidelity bridge available: Direct for a Go workspace (the only
// language this process can introspect in-process), RPC when a
// conventional entry point exists, CLI fallback otherwise.
//
// ADC-IMPLEMENTS: <ull-feature-01>
func Load(ctx context.Context, workspacePath string, opts Options) (bridge.Bridge, Metadata, error) {
	start := time.Now()

	lang := opts.ExpectedLanguage
	if lang == "" {
		detected, _, err := DetectLanguage(workspacePath)
		if err != nil {
			return nil, Metadata{}, err
		}
		lang = detected
	}

	log := logger.GetLogger()

	if lang == LanguageGo {
		log.Info().Str("workspace", workspacePath).Str("bridge", string(BridgeDirect)).Msg("ull: selected direct bridge")
		b, meta, err := loadDirect(workspacePath, lang)
		meta.LoadLatency = time.Since(start)
		return b, meta, err
	}

	if entry, ok := findRPCEntryPoint(workspacePath); ok {
		log.Info().Str("workspace", workspacePath).Str("bridge", string(BridgeRPC)).Str("entry_point", entry).Msg("ull: selected RPC bridge")
		b, err := bridge.StartRPCBridge(ctx, entry)
		if err != nil {
			log.Warn().Str("workspace", workspacePath).Err(err).Msg("ull: RPC bridge failed to start")
			if opts.Strict {
				return nil, Metadata{}, fmt.Errorf("ull: rpc entry point %s failed to start and strict mode forbids CLI fallback: %w", entry, err)
			}
			log.Warn().Str("workspace", workspacePath).Msg("ull: falling back to CLI bridge")
			return loadCLI(workspacePath, lang, start, err.Error())
		}
		_ = b.Describe(ctx)
		meta := Metadata{
			DetectedLanguage:              lang,
			BridgeType:                    BridgeRPC,
			SupportsSignatureVerification: true,
			SupportsTypeVerification:      true,
			SupportsDocstringVerification: false,
			LoadLatency:                   time.Since(start),
		}
		return b, meta, nil
	}

	if opts.Strict {
		return nil, Metadata{}, fmt.Errorf("ull: no direct or RPC binding available for %s and strict mode forbids CLI fallback", workspacePath)
	}
	log.Info().Str("workspace", workspacePath).Str("bridge", string(BridgeCLI)).Msg("ull: selected CLI fallback bridge")
	return loadCLI(workspacePath, lang, start, "")
}

func loadDirect(workspacePath string, lang Language) (bridge.Bridge, Metadata, error) {
	dir, err := findGoPackageDir(workspacePath)
	if err != nil {
		return nil, Metadata{}, err
	}
	b, err := bridge.NewDirectBridge(dir)
	if err != nil {
		return nil, Metadata{DetectedLanguage: lang, BridgeType: BridgeDirect, LoadError: err.Error()}, err
	}
	meta := Metadata{
		DetectedLanguage:              lang,
		BridgeType:                    BridgeDirect,
		SupportsSignatureVerification: true,
		SupportsTypeVerification:      true,
		SupportsDocstringVerification: true,
	}
	return b, meta, nil
}

func loadCLI(workspacePath string, lang Language, start time.Time, priorError string) (bridge.Bridge, Metadata, error) {
	b, err := bridge.NewCLIBridge(workspacePath)
	meta := Metadata{
		DetectedLanguage: lang,
		BridgeType:       BridgeCLI,
		LoadLatency:      time.Since(start),
	}
	if priorError != "" {
		meta.LoadError = priorError
	}
	if err != nil {
		meta.LoadError = err.Error()
		return nil, meta, err
	}
	return b, meta, nil
}

// findGoPackageDir returns the directory go/parser should read: the
// workspace root itself, unless an internal/ or pkg/ layout puts the
// library's primary package one level down, in which case the first such
// directory containing .go files wins.
func findGoPackageDir(workspacePath string) (string, error) {
	if hasGoFiles(workspacePath) {
		return workspacePath, nil
	}
	for _, sub := range []string{"pkg", "internal", "lib"} {
		dir := filepath.Join(workspacePath, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			candidate := filepath.Join(dir, e.Name())
			if hasGoFiles(candidate) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("ull: no Go package directory with .go files found under %s", workspacePath)
}

func hasGoFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".go" {
			return true
		}
	}
	return false
}

func findRPCEntryPoint(workspacePath string) (string, bool) {
	for _, rel := range rpcEntryPointGlobs {
		path := filepath.Join(workspacePath, rel)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return path, true
		}
	}
	return "", false
}
