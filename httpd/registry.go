package httpd

import "sync"

// registry tracks live connections for admission control and cleanup. It is
// shared mutable state across per-connection goroutines, so all access goes
// through the mutex.
type registry struct {
	mu      sync.Mutex
	maxconn int
	conns   map[uint64]*conn
}

func newRegistry(maxconn int) *registry {
	return &registry{maxconn: maxconn, conns: make(map[uint64]*conn)}
}

// tryAdmit registers c unless the pool is already at capacity. A refused
// connection is never registered and must not be read from.
func (r *registry) tryAdmit(c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns) >= r.maxconn {
		return false
	}
	r.conns[c.id] = c
	return true
}

// remove deregisters a connection id. Removing an absent id is a no-op:
// timeout-driven and normal-completion cleanup may race to call it.
func (r *registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func (r *registry) has(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[id]
	return ok
}

// snapshot returns the currently registered connections, for shutdown.
func (r *registry) snapshot() []*conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
