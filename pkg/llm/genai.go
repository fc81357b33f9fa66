package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// GenaiProvider implements the Provider interface against Gemini, used as
// the MultiProvider fallback behind AnthropicProvider: when Sonnet is
// rate-limited or erroring, requests continue on a different model family
// instead of blocking the scheduler.
type GenaiProvider struct {
	client *genai.Client
	models []string
}

// NewGenaiProvider creates a new Gemini provider against the public
// Gemini API (not Vertex).
func NewGenaiProvider(ctx context.Context, apiKey string) (*GenaiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: creating client: %w", err)
	}
	return &GenaiProvider{
		client: client,
		models: []string{"gemini-2.5-pro", "gemini-2.5-flash"},
	}, nil
}

// Name returns the provider name.
func (p *GenaiProvider) Name() string { return "genai" }

// Models returns available model identifiers.
func (p *GenaiProvider) Models() []string { return p.models }

// Complete generates a completion.
func (p *GenaiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	contents := toGenaiContents(req.Messages)
	config := p.toGenaiConfig(req)

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, &ProviderError{Provider: "genai", Code: "request_failed", Message: err.Error(), Err: err}
	}

	return p.fromGenaiResponse(resp), nil
}

// Stream generates a streaming completion.
func (p *GenaiProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	contents := toGenaiContents(req.Messages)
	config := p.toGenaiConfig(req)

	iter := p.client.Models.GenerateContentStream(ctx, req.Model, contents, config)

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for resp, err := range iter {
			if err != nil {
				ch <- StreamChunk{Error: err}
				return
			}
			chunk := p.fromGenaiResponse(resp)
			ch <- StreamChunk{Content: chunk.Content, Usage: &chunk.Usage}
		}
		ch <- StreamChunk{Done: true}
	}()

	return ch, nil
}

// CountTokens estimates token count. genai exposes a real CountTokens RPC,
// but the four-character heuristic keeps this call synchronous and free,
// matching what the other two providers do.
func (p *GenaiProvider) CountTokens(content string) (int, error) {
	return EstimateTokens(content), nil
}

func toGenaiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "tool" {
			role = "user"
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, genai.NewPartFromText(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
		}
		if msg.Role == "tool" {
			parts = append(parts, genai.NewPartFromFunctionResponse(msg.ToolCallID, map[string]any{
				"result": msg.ToolResult,
			}))
		}

		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func (p *GenaiProvider) toGenaiConfig(req *CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		TopP:              genai.Ptr(float32(req.TopP)),
		StopSequences:     req.StopSequences,
		SystemInstruction: systemInstruction(req),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	if len(req.Tools) > 0 && req.ToolChoice != "none" {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, tool := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaFromJSONSchema(tool.Parameters),
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

func systemInstruction(req *CompletionRequest) *genai.Content {
	text := req.System
	if len(req.SystemBlocks) > 0 {
		text = ""
	}
	for _, b := range req.SystemBlocks {
		text += b.Text
	}
	if text == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(text)}}
}

// schemaFromJSONSchema does a best-effort conversion of the JSON Schema
// map every Tool carries into genai's typed Schema, covering the object
// shapes the Tool Executor actually emits (type/properties/required).
func schemaFromJSONSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	if props, ok := raw["properties"].(map[string]any); ok {
		for name, v := range props {
			propMap, _ := v.(map[string]any)
			propType, _ := propMap["type"].(string)
			schema.Properties[name] = &genai.Schema{Type: jsonTypeToGenaiType(propType)}
		}
	}
	if required, ok := raw["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

func jsonTypeToGenaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func (p *GenaiProvider) fromGenaiResponse(resp *genai.GenerateContentResponse) *CompletionResponse {
	result := &CompletionResponse{Model: "gemini"}

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		result.FinishReason = "stop"
		return result
	}

	candidate := resp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			argsJSON, _ := json.Marshal(part.FunctionCall.Args)
			// genai function calls carry no ID; reuse the name so the
			// tool_result round-trip has a stable key to echo back.
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        part.FunctionCall.Name,
				Name:      part.FunctionCall.Name,
				Arguments: string(argsJSON),
			})
		}
	}
	result.Content = text

	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_use"
	} else {
		result.FinishReason = "stop"
	}

	return result
}
