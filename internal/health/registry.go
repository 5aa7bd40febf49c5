package health

import (
	"context"
	"sort"
	"sync"
)

// Registry manages readiness probes
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewRegistry creates a new probe registry
func NewRegistry() *Registry {
	return &Registry{
		probes: make(map[string]Probe),
	}
}

// Register adds a probe under its name
func (r *Registry) Register(probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[probe.Name()] = probe
}

// Get retrieves a probe by name
func (r *Registry) Get(name string) Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.probes[name]
}

// List returns all registered probe names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every probe and returns the error of each, nil for healthy
func (r *Registry) CheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	probes := make([]Probe, 0, len(r.probes))
	for _, p := range r.probes {
		probes = append(probes, p)
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]error, len(probes))
	for _, p := range probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			err := p.Check(ctx)
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}
