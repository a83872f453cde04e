package supervisor

import "sync"

// connRegistry maps a connected client's remote address to its outbound
// sink. Per §9's re-architecture hint, nothing in the core request path
// reads it; it exists only so a future cross-connection feature (broadcast,
// admin disconnect) has a narrow place to live.
type connRegistry struct {
	mu    sync.Mutex
	sinks map[string]*unboundedQueue
}

func newConnRegistry() *connRegistry {
	return &connRegistry{sinks: make(map[string]*unboundedQueue)}
}

func (r *connRegistry) register(addr string, q *unboundedQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[addr] = q
}

func (r *connRegistry) remove(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, addr)
}

// Len reports the number of currently tracked connections, exposed for the
// debug/metrics endpoint.
func (r *connRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}
