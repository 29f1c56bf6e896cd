package httpclient

import (
	"maps"
	"slices"
	"sync"
)

// CircuitBreakerStatus is the health view of one named client.
type CircuitBreakerStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Registry names clients so health endpoints can report their breakers.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: map[string]*Client{}}
}

// Register adds client under name, replacing any previous entry.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	r.clients[name] = client
	r.mu.Unlock()
}

// Unregister removes name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.clients, name)
	r.mu.Unlock()
}

// Get returns the client registered under name, or nil.
func (r *Registry) Get(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[name]
}

// CircuitBreakerStatuses reports every registered breaker, sorted by name.
func (r *Registry) CircuitBreakerStatuses() []CircuitBreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CircuitBreakerStatus, 0, len(r.clients))
	for _, name := range slices.Sorted(maps.Keys(r.clients)) {
		st := r.clients[name].breaker.Stats()
		out = append(out, CircuitBreakerStatus{Name: name, State: st.State, Failures: st.ConsecutiveFailures})
	}
	return out
}
