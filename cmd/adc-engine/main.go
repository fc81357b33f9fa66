// Package main provides the CLI entry point for adc-engine.
//
// adc-engine drives an agent-design-contract run end to end: writing
// contracts for an empty workspace, auditing and generating code against
// them in a graduated-threshold inner loop, refining across outer
// iterations, and handing off to a PR orchestrator once the evaluator is
// satisfied.
//
// Usage:
//
//	adc-engine run "<task description>" <workspace>   - Run the scheduler end to end
//	adc-engine verify <workspace> <contract-file>      - Check compliance without a run
//	adc-engine mcp                                     - Start the MCP tool server (stdio)
//	adc-engine serve                                   - Start the status API only
//	adc-engine init-config                             - Write an example configuration file
//	adc-engine version                                 - Show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/owlduet-labs/adc-engine/internal/config"
	"github.com/owlduet-labs/adc-engine/internal/logger"
	"github.com/owlduet-labs/adc-engine/internal/mcp"
	"github.com/owlduet-labs/adc-engine/internal/statusapi"
	"github.com/owlduet-labs/adc-engine/pkg/adcmodel"
	"github.com/owlduet-labs/adc-engine/pkg/llm"
	"github.com/owlduet-labs/adc-engine/pkg/runner"
	"github.com/owlduet-labs/adc-engine/pkg/scheduler"
	"github.com/owlduet-labs/adc-engine/pkg/tools"
	"github.com/owlduet-labs/adc-engine/pkg/ull"
	"github.com/owlduet-labs/adc-engine/pkg/verify"
)

// version is set via -ldflags at build time.
var version = "dev"

var configPath string

func main() {
	statusapi.SetVersion(version)

	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-") && command == "":
			// Unknown global flag; ignore
		case command == "":
			command = arg
		default:
			// Everything after the command, flags included, belongs to the
			// subcommand's own flag set.
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "help"
	}

	var err error
	switch command {
	case "run":
		err = cmdRun(cmdArgs)
	case "verify":
		err = cmdVerify(cmdArgs)
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "serve":
		err = cmdServe()
	case "init-config":
		err = cmdInitConfig()
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`adc-engine - agent-design-contract workflow engine

Usage:
  adc-engine [flags] <command> [args]

Commands:
  run "<task>" <workspace>      Run the scheduler end to end against workspace
  verify <workspace> <file>     Check compliance of workspace against one contract file
  mcp                           Start the MCP tool server (stdio transport)
  serve                         Start the status API HTTP server
  init-config                   Write an example configuration file
  version                       Show version information
  help                          Show this help

Flags:
  --config PATH   Path to configuration file (default: ` + config.DefaultConfigPath() + `)

Environment:
  ANTHROPIC_API_KEY   API key for the Anthropic provider
  GEMINI_API_KEY      API key for the genai fallback provider (optional)
  ADC_OLLAMA_URL      Base URL of a local Ollama fallback provider (optional)
  ADC_CONFIG          Path to configuration file (alternative to --config)
  ADC_DATA_DIR        Override data directory
  ADC_HOST, ADC_PORT  Override the status API bind address
  ADC_ULL_VERIFY      Set to 0 to disable library loading during verify (default on)
  ADC_VERBOSE         Set to 1 for debug-level logging (default off)

Examples:
  adc-engine run "implement the ingest pipeline" ./workspace
  adc-engine verify ./workspace ./workspace/contracts/ingest.md
  adc-engine mcp
  curl localhost:8420/health`)
}

func cmdVersion() {
	fmt.Printf("adc-engine version %s\n", version)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("ADC_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("ADC_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	if verbose := os.Getenv("ADC_VERBOSE"); verbose == "1" || strings.EqualFold(verbose, "true") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return cfg, nil
}

func cmdInitConfig() error {
	path := getConfigPath()
	if err := config.WriteExampleConfig(path); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}
	fmt.Printf("wrote example configuration to %s\n", path)
	return nil
}

// cmdRun wires the full stack together and drives one Scheduler.Run to
// completion: config, logging, an LLM provider (with genai fallback when
// GEMINI_API_KEY is set), the Tool Executor, the Agent Runner, and the
// circuit breaker / rate limiter safeguards.
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	maxOuter := fs.Int("max-outer", 0, "override the outer iteration cap")
	maxInner := fs.Int("max-inner", 0, "override the inner iteration cap")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: adc-engine run \"<task>\" <workspace>")
	}
	description, workspacePath := rest[0], rest[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	provider, err := buildProvider(context.Background(), cfg)
	if err != nil {
		return err
	}

	executor := tools.NewExecutor(workspacePath).
		WithBashTimeout(time.Duration(cfg.Tools.BashTimeoutSeconds) * time.Second).
		WithMaxOutputBytes(int(cfg.Tools.MaxOutputBytes))
	resolve := buildModelResolver(cfg, provider)
	agentRunner := runner.New(provider, executor, runner.CostMixedTiers(), resolve).WithLogger(log)

	breaker := scheduler.NewCircuitBreaker(scheduler.CircuitBreakerConfig{
		SameErrorThreshold: cfg.Scheduler.CircuitBreakerFailureThreshold,
		RecoveryTimeout:    time.Duration(cfg.Scheduler.CircuitBreakerResetSeconds) * time.Second,
	})
	limiter := scheduler.NewRateLimiter(cfg.Scheduler.RateLimitPerMinute)

	sched := scheduler.New(agentRunner, workspacePath, breaker, limiter).
		WithThresholds(scheduler.Thresholds{
			Early:        cfg.Scheduler.ThresholdEarly,
			Mid:          cfg.Scheduler.ThresholdMid,
			Late:         cfg.Scheduler.ThresholdLate,
			SuccessFloor: cfg.Scheduler.OuterSuccessFloor,
		}).
		WithLogger(log)
	defer sched.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := statusapi.NewRegistry()
	runID := config.RunHash(workspacePath)

	outerCap := *maxOuter
	if outerCap == 0 {
		outerCap = cfg.Scheduler.MaxOuterIterations
	}
	innerCap := *maxInner
	if innerCap == 0 {
		innerCap = cfg.Scheduler.MaxInnerIterations
	}
	task := adcmodel.Task{
		Description:        description,
		Workspace:          workspacePath,
		MaxOuterIterations: outerCap,
		MaxInnerIterations: innerCap,
	}.Normalize()

	if cfg.StatusAPI.Enabled {
		server := statusapi.NewServer(registry)
		go func() {
			log.Info().Str("address", cfg.Address()).Msg("cmd: starting status API")
			if err := http.ListenAndServe(cfg.Address(), server.Handler()); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("cmd: status API stopped")
			}
		}()
	}

	result := sched.Run(ctx, task)
	registry.Put(runID, result.Status, result.FinalState)

	fmt.Printf("run %s: status=%s reason=%s compliance=%.2f\n", runID, result.Status, result.Reason, result.FinalState.ComplianceScore)
	if result.PRURL != "" {
		fmt.Printf("pr: %s\n", result.PRURL)
	}
	if !result.IsSuccess() {
		if ctx.Err() != nil {
			os.Exit(130)
		}
		os.Exit(1)
	}
	return nil
}

// cmdVerify runs the Compliance Verifier directly against one contract
// file without driving the Scheduler, for checking an already-implemented
// workspace.
func cmdVerify(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: adc-engine verify <workspace> <contract-file>")
	}
	workspacePath, contractPath := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	contractText, err := os.ReadFile(contractPath)
	if err != nil {
		return fmt.Errorf("read contract: %w", err)
	}
	expected := verify.ExtractExpectedInterface(string(contractText))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := verify.NewMarkerScanner()

	// ADC_ULL_VERIFY=0 disables the library-loading path entirely; marker
	// coverage is still checked.
	if v := os.Getenv("ADC_ULL_VERIFY"); v == "0" || strings.EqualFold(v, "false") {
		report, err := verify.VerifyMarkersOnly(ctx, expected, scanner, workspacePath)
		if err != nil {
			return fmt.Errorf("verify markers: %w", err)
		}
		printReport(report, "disabled")
		if !report.IsCompliant {
			os.Exit(1)
		}
		return nil
	}

	b, meta, err := ull.Load(ctx, workspacePath, ull.Options{Strict: cfg.ULL.Strict})
	if err != nil && cfg.ULL.DefaultLanguage != "" {
		b, meta, err = ull.Load(ctx, workspacePath, ull.Options{
			Strict:           cfg.ULL.Strict,
			ExpectedLanguage: ull.Language(cfg.ULL.DefaultLanguage),
		})
	}
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	defer b.Close()

	report, err := verify.VerifyCompliance(ctx, expected, b, meta, scanner, workspacePath)
	if err != nil {
		return fmt.Errorf("verify compliance: %w", err)
	}

	printReport(report, string(meta.BridgeType))
	if !report.IsCompliant {
		os.Exit(1)
	}
	return nil
}

func printReport(report verify.Report, bridgeLabel string) {
	fmt.Printf("contract: %s\n", report.ContractID)
	fmt.Printf("bridge: %s (level: %s)\n", bridgeLabel, report.Level)
	fmt.Printf("found: %v\n", report.FoundFunctions)
	fmt.Printf("missing: %v\n", report.MissingFunctions)
	fmt.Printf("found markers: %v\n", report.FoundMarkers)
	fmt.Printf("missing markers: %v\n", report.MissingMarkers)
	if len(report.Warnings) > 0 {
		fmt.Printf("warnings: %v\n", report.Warnings)
	}
	fmt.Printf("compliance score: %.2f (compliant: %v)\n", report.ComplianceScore, report.IsCompliant)
}

func cmdMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.SetupLogger(cfg)
	defer logger.Stop()

	if !cfg.MCP.Enabled {
		return fmt.Errorf("mcp server is disabled in configuration")
	}

	workspacePath, err := os.Getwd()
	if err != nil {
		return err
	}
	executor := tools.NewExecutor(workspacePath).
		WithBashTimeout(time.Duration(cfg.Tools.BashTimeoutSeconds) * time.Second).
		WithMaxOutputBytes(int(cfg.Tools.MaxOutputBytes))
	return mcp.ServeStdio(executor)
}

func cmdServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	registry := statusapi.NewRegistry()
	server := statusapi.NewServer(registry)

	log.Info().Str("address", cfg.Address()).Msg("cmd: status API listening")
	fmt.Printf("adc-engine status API listening on %s\n", cfg.Address())
	return http.ListenAndServe(cfg.Address(), server.Handler())
}

// buildProvider constructs the LLM provider stack: Anthropic is always
// primary; a genai (Gemini) fallback is added when GEMINI_API_KEY is set,
// and a local Ollama fallback when ADC_OLLAMA_URL is set, composed through
// the MultiProvider failover wrapper.
func buildProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	chain := []llm.Provider{llm.NewAnthropicProvider(cfg.LLM.APIKey)}

	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		secondary, err := llm.NewGenaiProvider(ctx, geminiKey)
		if err != nil {
			return nil, fmt.Errorf("genai provider: %w", err)
		}
		chain = append(chain, secondary)
	}
	if ollamaURL := os.Getenv("ADC_OLLAMA_URL"); ollamaURL != "" {
		chain = append(chain, llm.NewOllamaProvider(ollamaURL))
	}

	if len(chain) == 1 {
		return chain[0], nil
	}
	return llm.NewMultiProvider(chain...), nil
}

// buildModelResolver maps an agent identity and tier to a concrete model
// string through an llm.Router seeded from the configuration: an explicit
// per-identity entry in cfg.LLM.ModelOverrides wins, otherwise the
// configured default model is used for every tier.
func buildModelResolver(cfg *config.Config, provider llm.Provider) runner.ModelResolver {
	router := llm.NewRouter(provider).SetDefaultModel(cfg.LLM.Model)
	for identity, model := range cfg.LLM.ModelOverrides {
		router.SetRoleModel(identity, model)
	}
	return func(identity runner.Identity, tier runner.Tier) string {
		return router.ModelFor(string(identity))
	}
}
