package extract

import (
	"fmt"
	"sort"
)

// Registry is the closed provider table, built once at startup.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes providers by Name. Duplicate names are a programming error.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, dup := m[p.Name()]; dup {
			panic(fmt.Sprintf("extract: duplicate provider %q", p.Name()))
		}
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered providers in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
