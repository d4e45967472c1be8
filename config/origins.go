package config

import (
	"strings"
	"sync"
)

// OriginPolicy is the allow-list of browser origins that may call the API or
// open a relay connection. It can be swapped at runtime by WatchEnvFile.
type OriginPolicy struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
}

// NewOriginPolicy creates a policy from a list of origins.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{}
	p.Set(origins)
	return p
}

// Set replaces the allow-list.
func (p *OriginPolicy) Set(origins []string) {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}

	p.mu.Lock()
	p.allowed = allowed
	p.mu.Unlock()
}

// Allowed reports whether origin may connect. An empty origin means the
// request did not come from a browser and is allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	origin = strings.ToLower(strings.TrimRight(origin, "/"))

	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.allowed[origin]
	return ok
}

// List returns the current allow-list.
func (p *OriginPolicy) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.allowed))
	for o := range p.allowed {
		out = append(out, o)
	}
	return out
}
