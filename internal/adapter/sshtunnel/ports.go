package sshtunnel

import (
	"fmt"
	"sync"
)

// PortAllocator hands out local listen ports from a fixed window
// [base, base+capacity). Ports are reused: Release returns a port to the
// pool and the lowest free port is always handed out first.
type PortAllocator struct {
	base     int
	capacity int

	mu    sync.Mutex
	inUse map[int]bool
}

// NewPortAllocator creates an allocator over [base, base+capacity).
func NewPortAllocator(base, capacity int) *PortAllocator {
	return &PortAllocator{
		base:     base,
		capacity: capacity,
		inUse:    make(map[int]bool, capacity),
	}
}

// Acquire reserves the lowest free port in the window. It fails when every
// port is taken, which bounds the number of concurrent tunnels.
func (a *PortAllocator) Acquire() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for p := a.base; p < a.base+a.capacity; p++ {
		if !a.inUse[p] {
			a.inUse[p] = true
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free tunnel ports in %d-%d", a.base, a.base+a.capacity-1)
}

// Release returns a port to the pool. Releasing a port that is not held
// is a no-op.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

// Available reports how many ports are currently free.
func (a *PortAllocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity - len(a.inUse)
}
