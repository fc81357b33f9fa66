package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/owlduet-labs/adc-engine/internal/logger"
	"github.com/owlduet-labs/adc-engine/pkg/llm"
	"github.com/owlduet-labs/adc-engine/pkg/tools"
)

const (
	// maxToolUseRounds is the hard iteration cap independent of the model's
	// stop reason.
	maxToolUseRounds = 40

	// maxToolResultTokens caps a single tool result before it is fed back
	// to the model. A runaway run_bash or read_file on a huge artifact
	// would otherwise dominate the next request's prompt and starve the
	// cached prefix of its savings.
	maxToolResultTokens = 8192
)

// ToolExecutor is the Agent Runner's view of the Tool Executor: execute one
// named tool call and report its result as a JSON string plus an
// error flag, never a Go error, so the text can be forwarded straight back
// to the model as a tool_result block.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, argsJSON string) (result string, isError bool)
}

// ModelResolver maps a (identity, tier) pair to a concrete provider model
// identifier. Kept separate from TierTable so callers can repoint tiers to
// different model strings without touching the tier assignment itself.
type ModelResolver func(identity Identity, tier Tier) string

// Runner executes one agent invocation end to end: compose the system
// prompt, drive the tool-use loop against a Provider, and return a Result
// with full token accounting.
//
// ADC-IMPLEMENTS: <agent-runner-feature-01>
type Runner struct {
	provider llm.Provider
	tools    ToolExecutor
	tiers    TierTable
	resolve  ModelResolver
	log      arbor.ILogger
}

// New builds a Runner. tiers and resolve may be nil; a nil tiers defaults
// to UniformStrongTiers, a nil resolve is an error at Invoke time since
// there is no safe default model string to fall back to.
func New(provider llm.Provider, tools ToolExecutor, tiers TierTable, resolve ModelResolver) *Runner {
	if tiers == nil {
		tiers = UniformStrongTiers()
	}
	return &Runner{provider: provider, tools: tools, tiers: tiers, resolve: resolve, log: logger.GetLogger()}
}

// WithLogger overrides the Runner's logger.
func (r *Runner) WithLogger(l arbor.ILogger) *Runner {
	r.log = l
	return r
}

// Request is one Agent Runner invocation's input.
type Request struct {
	Identity       Identity
	Prompt         string
	WorkspacePath  string
	ContractDigest string // rendered Digest.Render() output; empty when none yet exists
}

// Result is the Agent Runner's output contract: success flag, final text,
// four token counters, duration, and an optional failure reason.
type Result struct {
	Success bool
	Text    string

	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int

	Duration time.Duration
	Error    string
}

// Invoke runs the tool-use loop for a single agent identity. The returned
// error is non-nil only for a setup or infrastructure failure (no model
// resolver, an unknown identity, or the provider call itself erroring out);
// a business-level failure — hitting the iteration
// cap, an unexpected stop reason — is reported through Result.Success and
// Result.Error with a nil error.
func (r *Runner) Invoke(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	tier := r.tiers[req.Identity]
	if tier == "" {
		tier = TierStrong
	}
	if r.resolve == nil {
		return Result{}, fmt.Errorf("runner: no model resolver configured")
	}
	model := r.resolve(req.Identity, tier)

	r.log.Debug().
		Str("agent", string(req.Identity)).
		Str("model", model).
		Str("tier", string(tier)).
		Msg("runner: invoking agent")

	systemBlocks, err := r.systemPrompt(req)
	if err != nil {
		return Result{}, err
	}

	messages := []llm.Message{llm.UserMessage(req.Prompt)}
	result := Result{}

	for round := 0; round < maxToolUseRounds; round++ {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			result.Error = fmt.Sprintf("cancelled: %v", err)
			return result, nil
		}

		completion, err := r.provider.Complete(ctx, &llm.CompletionRequest{
			Model:        model,
			Messages:     messages,
			SystemBlocks: systemBlocks,
			MaxTokens:    maxOutputTokens(tier),
			Tools:        tools.Catalog(),
			ToolChoice:   "auto",
		})
		if err != nil {
			return Result{}, fmt.Errorf("runner: %s: completion request: %w", req.Identity, err)
		}

		result.InputTokens += completion.Usage.PromptTokens
		result.OutputTokens += completion.Usage.CompletionTokens
		result.CacheCreationTokens += completion.Usage.CacheCreationInputTokens
		result.CacheReadTokens += completion.Usage.CacheReadInputTokens

		switch completion.FinishReason {
		case "stop":
			result.Success = true
			result.Text = completion.Content
			result.Duration = time.Since(start)
			r.log.Info().
				Str("agent", string(req.Identity)).
				Int("rounds", round+1).
				Int("output_tokens", result.OutputTokens).
				Str("duration", result.Duration.String()).
				Msg("runner: agent invocation complete")
			return result, nil

		case "tool_use":
			messages = append(messages, llm.Message{
				Role:      "assistant",
				Content:   completion.Content,
				ToolCalls: completion.ToolCalls,
			})

			for _, call := range completion.ToolCalls {
				if err := ctx.Err(); err != nil {
					result.Duration = time.Since(start)
					result.Error = fmt.Sprintf("cancelled mid tool-use: %v", err)
					return result, nil
				}
				toolResult, isError := r.tools.Execute(ctx, call.Name, call.Arguments)
				toolResult = llm.TruncateToTokens(toolResult, maxToolResultTokens)
				messages = append(messages, llm.ToolResultMessage(call.ID, toolResult, isError))
			}
			continue

		default:
			result.Duration = time.Since(start)
			result.Error = fmt.Sprintf("unexpected stop reason: %s", completion.FinishReason)
			return result, nil
		}
	}

	result.Duration = time.Since(start)
	result.Error = "max tool-use iterations reached"
	return result, nil
}

// systemPrompt builds the three-segment system prompt: the agent's role
// definition and the contract digest are marked cacheable; the workspace
// introduction is not, since it differs nothing meaningfully call to call
// but is cheap enough that caching it buys nothing over a stable prefix
// already anchored by the two segments before it.
func (r *Runner) systemPrompt(req Request) ([]llm.SystemBlock, error) {
	role, err := rolePrompt(req.Identity)
	if err != nil {
		return nil, err
	}

	blocks := []llm.SystemBlock{{Text: role, Cacheable: true}}

	if req.ContractDigest != "" {
		blocks = append(blocks, llm.SystemBlock{
			Text:      "# Contract context\n\n" + req.ContractDigest,
			Cacheable: true,
		})
	}

	blocks = append(blocks, llm.SystemBlock{
		Text:      workspaceIntro(req.WorkspacePath),
		Cacheable: false,
	})

	return blocks, nil
}

func workspaceIntro(workspacePath string) string {
	var b strings.Builder
	b.WriteString("You are working in the directory ")
	b.WriteString(workspacePath)
	b.WriteString(". All tool paths are resolved relative to it unless absolute.\n")
	return b.String()
}
