package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlduet-labs/adc-engine/pkg/llm"
)

type scriptedProvider struct {
	responses []*llm.CompletionResponse
	requests  []*llm.CompletionRequest
	calls     int
}

func (p *scriptedProvider) Name() string                            { return "scripted" }
func (p *scriptedProvider) Models() []string                        { return []string{"scripted-model"} }
func (p *scriptedProvider) CountTokens(content string) (int, error) { return len(content) / 4, nil }

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

type stubTools struct {
	invocations []string
	result      string
}

func (s *stubTools) Execute(ctx context.Context, name string, argsJSON string) (string, bool) {
	s.invocations = append(s.invocations, name)
	if s.result != "" {
		return s.result, false
	}
	return `{"content":"stub"}`, false
}

func resolverForTest(identity Identity, tier Tier) string {
	return "scripted-model"
}

func TestRunner_Invoke_EndTurnImmediately(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{FinishReason: "stop", Content: "done", Usage: llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5}},
	}}
	tools := &stubTools{}
	r := New(provider, tools, nil, resolverForTest)

	result, err := r.Invoke(context.Background(), Request{
		Identity:      Auditor,
		Prompt:        "audit the workspace",
		WorkspacePath: "/workspace",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Text)
	assert.Equal(t, 10, result.InputTokens)
	assert.Equal(t, 5, result.OutputTokens)
	assert.Empty(t, tools.invocations)
}

func TestRunner_Invoke_ToolUseThenEndTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{
			FinishReason: "tool_use",
			Content:      "let me check",
			ToolCalls:    []llm.ToolCall{{ID: "call-1", Name: "read_file", Arguments: `{"path":"a.go"}`}},
			Usage:        llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
		},
		{
			FinishReason: "stop",
			Content:      "finished",
			Usage:        llm.TokenUsage{PromptTokens: 20, CompletionTokens: 8, CacheReadInputTokens: 15},
		},
	}}
	tools := &stubTools{}
	r := New(provider, tools, nil, resolverForTest)

	result, err := r.Invoke(context.Background(), Request{
		Identity:      CodeGenerator,
		Prompt:        "fix the file",
		WorkspacePath: "/workspace",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "finished", result.Text)
	assert.Equal(t, []string{"read_file"}, tools.invocations)
	assert.Equal(t, 30, result.InputTokens)
	assert.Equal(t, 13, result.OutputTokens)
	assert.Equal(t, 15, result.CacheReadTokens)
}

func TestRunner_Invoke_TruncatesOversizedToolResult(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{
			FinishReason: "tool_use",
			ToolCalls:    []llm.ToolCall{{ID: "call-1", Name: "read_file", Arguments: `{"path":"huge.log"}`}},
		},
		{FinishReason: "stop", Content: "done"},
	}}
	tools := &stubTools{result: strings.Repeat("x", maxToolResultTokens*4*3)}
	r := New(provider, tools, nil, resolverForTest)

	result, err := r.Invoke(context.Background(), Request{Identity: Auditor, Prompt: "p", WorkspacePath: "/w"})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, provider.requests, 2)
	second := provider.requests[1]
	toolMsg := second.Messages[len(second.Messages)-1]
	require.Equal(t, "tool", toolMsg.Role)
	assert.LessOrEqual(t, len(toolMsg.Content), maxToolResultTokens*4+len("..."))
	assert.True(t, strings.HasSuffix(toolMsg.Content, "..."))
}

func TestRunner_Invoke_UnexpectedStopReason(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{FinishReason: "max_tokens", Content: "truncated"},
	}}
	r := New(provider, &stubTools{}, nil, resolverForTest)

	result, err := r.Invoke(context.Background(), Request{Identity: Refiner, Prompt: "p", WorkspacePath: "/w"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "max_tokens")
}

type loopingProvider struct {
	resp  *llm.CompletionResponse
	calls int
}

func (p *loopingProvider) Name() string     { return "looping" }
func (p *loopingProvider) Models() []string { return []string{"looping-model"} }
func (p *loopingProvider) CountTokens(content string) (int, error) {
	return len(content) / 4, nil
}
func (p *loopingProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls++
	return p.resp, nil
}
func (p *loopingProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}

func TestRunner_Invoke_HardIterationCap(t *testing.T) {
	provider := &loopingProvider{resp: &llm.CompletionResponse{
		FinishReason: "tool_use",
		ToolCalls:    []llm.ToolCall{{ID: "call-1", Name: "list_directory", Arguments: `{}`}},
	}}
	r := New(provider, &stubTools{}, nil, resolverForTest)

	result, err := r.Invoke(context.Background(), Request{Identity: Auditor, Prompt: "p", WorkspacePath: "/w"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "max tool-use iterations reached", result.Error)
	assert.Equal(t, maxToolUseRounds, provider.calls)
}

func TestRunner_Invoke_UnknownIdentity(t *testing.T) {
	r := New(&scriptedProvider{}, &stubTools{}, nil, resolverForTest)
	_, err := r.Invoke(context.Background(), Request{Identity: "not_a_real_identity", Prompt: "p", WorkspacePath: "/w"})
	assert.Error(t, err)
}
