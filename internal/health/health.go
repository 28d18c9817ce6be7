// Package health aggregates the readiness of the service's dependencies
// (the database pool and the payment provider configuration) for the
// /health endpoint.
package health

import (
	"context"
	"sort"
	"sync"
)

// Status is the reported health of one dependency.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Check probes one dependency. It must honor ctx: the health endpoint
// bounds the whole sweep with a deadline.
type Check func(ctx context.Context) Status

// Registry holds the dependency checks registered at server construction.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds a check under a name. Registering the same name again
// replaces the previous check.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	r.checks[name] = check
	r.mu.Unlock()
}

// CheckAll probes every dependency concurrently and reports the aggregate
// plus the per-dependency statuses, ordered by name so the endpoint's
// output is stable.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = r.checks[name]
	}
	r.mu.RUnlock()

	statuses := make([]Status, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = check(ctx)
			statuses[i].Name = names[i]
		}()
	}
	wg.Wait()

	healthy := true
	for _, s := range statuses {
		if !s.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}
