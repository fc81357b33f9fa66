package llm

import (
	"context"
	"fmt"
	"sync"
)

// Router assigns concrete model identifiers to named agent roles. The
// Scheduler addresses agents by identity string ("auditor",
// "code_generator", ...); the Router resolves those identities to whatever
// model the operator configured, falling back to a default for any role
// without an explicit entry.
type Router struct {
	mu sync.RWMutex

	provider Provider

	byRole       map[string]string
	defaultModel string
}

// NewRouter creates a router over provider. The default model starts as the
// provider's first advertised model.
func NewRouter(provider Provider) *Router {
	defaultModel := ""
	if models := provider.Models(); len(models) > 0 {
		defaultModel = models[0]
	}
	return &Router{
		provider:     provider,
		byRole:       make(map[string]string),
		defaultModel: defaultModel,
	}
}

// SetDefaultModel sets the model used for roles without an explicit entry.
func (r *Router) SetDefaultModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultModel = model
	return r
}

// SetRoleModel pins a role to a specific model.
func (r *Router) SetRoleModel(role, model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRole[role] = model
	return r
}

// ModelFor returns the model configured for role, or the default model.
func (r *Router) ModelFor(role string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byRole[role]; ok && m != "" {
		return m
	}
	return r.defaultModel
}

// ForRole returns a Provider view pinned to role's model: every Complete
// and Stream call through it carries that model regardless of what the
// request names.
func (r *Router) ForRole(role string) Provider {
	return &routedProvider{router: r, model: r.ModelFor(role)}
}

// Provider returns the underlying provider.
func (r *Router) Provider() Provider {
	return r.provider
}

// Name returns the router name.
func (r *Router) Name() string {
	return "router:" + r.provider.Name()
}

// Models returns available models.
func (r *Router) Models() []string {
	return r.provider.Models()
}

// Complete generates a completion, filling in the default model when the
// request does not name one.
func (r *Router) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		r.mu.RLock()
		req.Model = r.defaultModel
		r.mu.RUnlock()
	}
	return r.provider.Complete(ctx, req)
}

// Stream generates a streaming completion, filling in the default model
// when the request does not name one.
func (r *Router) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	if req.Model == "" {
		r.mu.RLock()
		req.Model = r.defaultModel
		r.mu.RUnlock()
	}
	return r.provider.Stream(ctx, req)
}

// CountTokens estimates token count.
func (r *Router) CountTokens(content string) (int, error) {
	return r.provider.CountTokens(content)
}

// routedProvider wraps a router with a fixed model.
type routedProvider struct {
	router *Router
	model  string
}

func (p *routedProvider) Name() string {
	return p.router.provider.Name()
}

func (p *routedProvider) Models() []string {
	return []string{p.model}
}

func (p *routedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	req.Model = p.model
	return p.router.provider.Complete(ctx, req)
}

func (p *routedProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	req.Model = p.model
	return p.router.provider.Stream(ctx, req)
}

func (p *routedProvider) CountTokens(content string) (int, error) {
	return p.router.provider.CountTokens(content)
}

// MultiProvider chains providers with failover: the primary is tried
// first, and any non-auth failure falls through to the remaining providers
// in order. Auth failures never fall through, since a bad credential on
// one backend says nothing about the request being retryable elsewhere and
// retrying it just delays the inevitable configuration fix.
type MultiProvider struct {
	providers []Provider
	primary   int
}

// NewMultiProvider creates a provider with fallback support. The first
// provider given is the primary.
func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers}
}

// SetPrimary sets the primary provider index.
func (mp *MultiProvider) SetPrimary(index int) error {
	if index < 0 || index >= len(mp.providers) {
		return fmt.Errorf("invalid provider index: %d", index)
	}
	mp.primary = index
	return nil
}

// Name returns the provider name.
func (mp *MultiProvider) Name() string {
	if len(mp.providers) == 0 {
		return "multi:empty"
	}
	return "multi:" + mp.providers[mp.primary].Name()
}

// Models returns all available models across providers.
func (mp *MultiProvider) Models() []string {
	seen := make(map[string]bool)
	var models []string
	for _, p := range mp.providers {
		for _, m := range p.Models() {
			if !seen[m] {
				seen[m] = true
				models = append(models, m)
			}
		}
	}
	return models
}

// Complete tries the primary, then each fallback in order, until one
// succeeds.
func (mp *MultiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if len(mp.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	resp, err := mp.providers[mp.primary].Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if IsAuthError(err) {
		return nil, err
	}
	lastErr := err

	for i, p := range mp.providers {
		if i == mp.primary {
			continue
		}
		if resp, err := p.Complete(ctx, req); err == nil {
			return resp, nil
		} else {
			lastErr = err
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Stream tries the primary, then each fallback in order, until one
// succeeds.
func (mp *MultiProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	if len(mp.providers) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	ch, err := mp.providers[mp.primary].Stream(ctx, req)
	if err == nil {
		return ch, nil
	}
	if IsAuthError(err) {
		return nil, err
	}
	lastErr := err

	for i, p := range mp.providers {
		if i == mp.primary {
			continue
		}
		if ch, err := p.Stream(ctx, req); err == nil {
			return ch, nil
		} else {
			lastErr = err
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// CountTokens uses the primary provider.
func (mp *MultiProvider) CountTokens(content string) (int, error) {
	if len(mp.providers) == 0 {
		return 0, fmt.Errorf("no providers configured")
	}
	return mp.providers[mp.primary].CountTokens(content)
}
