package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider implements Provider for testing
type mockProvider struct {
	name   string
	models []string
	resp   *CompletionResponse
	err    error

	completeCalls int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Models() []string {
	return m.models
}

func (m *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	m.completeCalls++
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &CompletionResponse{
		ID:           "test-id",
		Model:        req.Model,
		Content:      "test response",
		FinishReason: "stop",
	}, nil
}

func (m *mockProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: "test", Done: true}
	close(ch)
	return ch, nil
}

func (m *mockProvider) CountTokens(content string) (int, error) {
	return len(content) / 4, nil // rough estimate
}

func TestRouter_Creation(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a", "model-b"},
	}

	router := NewRouter(provider)

	assert.NotNil(t, router)
	assert.Equal(t, "router:test", router.Name())
	assert.Equal(t, []string{"model-a", "model-b"}, router.Models())
}

func TestRouter_ModelFor_DefaultsToFirstModel(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a", "model-b"},
	}

	router := NewRouter(provider)

	assert.Equal(t, "model-a", router.ModelFor("auditor"))
}

func TestRouter_ModelFor_RoleOverride(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"default-model"},
	}

	router := NewRouter(provider)
	router.SetRoleModel("auditor", "opus")
	router.SetRoleModel("refiner", "haiku")

	assert.Equal(t, "opus", router.ModelFor("auditor"))
	assert.Equal(t, "haiku", router.ModelFor("refiner"))
	assert.Equal(t, "default-model", router.ModelFor("code_generator"))
}

func TestRouter_SetDefaultModel(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
	}

	router := NewRouter(provider)
	router.SetDefaultModel("sonnet")

	assert.Equal(t, "sonnet", router.ModelFor("anything"))
}

func TestRouter_Complete_FillsDefaultModel(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
	}

	router := NewRouter(provider)
	ctx := context.Background()

	resp, err := router.Complete(ctx, &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "model-a", resp.Model)
}

func TestRouter_ForRole_PinsModel(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
	}

	router := NewRouter(provider)
	router.SetRoleModel("auditor", "opus")

	pinned := router.ForRole("auditor")

	require.NotNil(t, pinned)
	assert.Equal(t, []string{"opus"}, pinned.Models())

	resp, err := pinned.Complete(context.Background(), &CompletionRequest{
		Model:    "should-be-overridden",
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "opus", resp.Model)
}

func TestRouter_CountTokens(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
	}

	router := NewRouter(provider)

	count, err := router.CountTokens("hello world")
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestRouter_Stream(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
	}

	router := NewRouter(provider)
	ctx := context.Background()

	ch, err := router.Stream(ctx, &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})

	require.NoError(t, err)

	var content string
	for chunk := range ch {
		content += chunk.Content
		if chunk.Done {
			break
		}
	}

	assert.NotEmpty(t, content)
}

func TestMultiProvider_Creation(t *testing.T) {
	p1 := &mockProvider{name: "p1", models: []string{"m1"}}
	p2 := &mockProvider{name: "p2", models: []string{"m2"}}

	mp := NewMultiProvider(p1, p2)

	assert.Equal(t, "multi:p1", mp.Name())
	assert.Contains(t, mp.Models(), "m1")
	assert.Contains(t, mp.Models(), "m2")
}

func TestMultiProvider_SetPrimary(t *testing.T) {
	p1 := &mockProvider{name: "p1", models: []string{"m1"}}
	p2 := &mockProvider{name: "p2", models: []string{"m2"}}

	mp := NewMultiProvider(p1, p2)

	err := mp.SetPrimary(1)
	require.NoError(t, err)
	assert.Equal(t, "multi:p2", mp.Name())

	err = mp.SetPrimary(5) // invalid
	assert.Error(t, err)
}

func TestMultiProvider_Complete(t *testing.T) {
	p1 := &mockProvider{
		name:   "p1",
		models: []string{"m1"},
		resp:   &CompletionResponse{Content: "from p1"},
	}

	mp := NewMultiProvider(p1)
	ctx := context.Background()

	resp, err := mp.Complete(ctx, &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from p1", resp.Content)
}

func TestMultiProvider_Complete_FallsBackOnError(t *testing.T) {
	p1 := &mockProvider{
		name:   "p1",
		models: []string{"m1"},
		err:    &ProviderError{Provider: "p1", Code: "rate_limit", Message: "slow down"},
	}
	p2 := &mockProvider{
		name:   "p2",
		models: []string{"m2"},
		resp:   &CompletionResponse{Content: "from p2"},
	}

	mp := NewMultiProvider(p1, p2)

	resp, err := mp.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from p2", resp.Content)
	assert.Equal(t, 1, p1.completeCalls)
	assert.Equal(t, 1, p2.completeCalls)
}

func TestMultiProvider_Complete_AuthErrorNeverFallsBack(t *testing.T) {
	p1 := &mockProvider{
		name:   "p1",
		models: []string{"m1"},
		err:    &ProviderError{Provider: "p1", Code: "authentication_error", Message: "bad key"},
	}
	p2 := &mockProvider{
		name:   "p2",
		models: []string{"m2"},
		resp:   &CompletionResponse{Content: "from p2"},
	}

	mp := NewMultiProvider(p1, p2)

	_, err := mp.Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 0, p2.completeCalls)
}

func TestRouter_TableDriven(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		role      string
		want      string
	}{
		{
			name:      "explicit role entry wins",
			overrides: map[string]string{"auditor": "opus", "refiner": "haiku"},
			role:      "auditor",
			want:      "opus",
		},
		{
			name:      "unlisted role falls back to default",
			overrides: map[string]string{"auditor": "opus"},
			role:      "pr_orchestrator",
			want:      "sonnet",
		},
		{
			name:      "empty override falls back to default",
			overrides: map[string]string{"auditor": ""},
			role:      "auditor",
			want:      "sonnet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{
				name:   "test",
				models: []string{"sonnet"},
			}

			router := NewRouter(provider)
			for role, model := range tt.overrides {
				router.SetRoleModel(role, model)
			}

			assert.Equal(t, tt.want, router.ModelFor(tt.role))
		})
	}
}
