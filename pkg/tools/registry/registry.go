package registry

import (
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Registry aggregates Providers and installs their tools on MCP servers.
type Registry struct {
	mu sync.RWMutex

	// providers stores registered providers in insertion order.
	providers []Provider

	// tools holds the installable tools, first provider wins on conflicts.
	tools []Tool

	// toolToProvider maps tool name to the name of the provider that owns it.
	toolToProvider map[string]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		toolToProvider: make(map[string]string),
	}
}

// Register adds a provider. Tool names are resolved on a first-come,
// first-served basis: if two providers supply a tool with the same name,
// the first registered provider wins and a warning is logged.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)

	tools := p.Tools()
	for _, t := range tools {
		if existing, ok := r.toolToProvider[t.Def.Name]; ok {
			slog.Warn("tool name conflict, keeping first provider",
				"tool", t.Def.Name,
				"winner", existing,
				"loser", p.Name(),
			)
			continue
		}
		r.toolToProvider[t.Def.Name] = p.Name()
		r.tools = append(r.tools, t)
	}

	slog.Info("registered tool provider", "provider", p.Name(), "tools", len(tools))
}

// Install adds every registered tool to s and wraps tool calls with the
// registry middleware.
func (r *Registry) Install(s *mcp.Server) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s.AddReceivingMiddleware(r.Middleware())
	for _, t := range r.tools {
		t.install(s)
	}
}

// CanExecute reports whether any registered provider handles the named tool.
func (r *Registry) CanExecute(name string) bool {
	_, ok := r.ProviderFor(name)
	return ok
}

// ProviderFor returns the name of the provider that owns the tool.
func (r *Registry) ProviderFor(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.toolToProvider[name]
	return p, ok
}

// Tools returns the definitions of all installable tools in registration
// order.
func (r *Registry) Tools() []*mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.Def
	}
	return defs
}

// HasProviders returns true if at least one provider is registered.
func (r *Registry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Close closes all registered providers, returning the last error encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close tool provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
