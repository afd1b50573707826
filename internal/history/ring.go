// Package history keeps the most recently published samples in memory.
package history

import (
	"sync"

	"github.com/benaskins/joule/internal/energy"
)

// Ring holds the last N published samples. It is safe for concurrent use;
// the sampler appends and API handlers read.
type Ring struct {
	mu    sync.Mutex
	buf   []energy.Sample
	next  int
	count int
}

// New creates a ring that keeps the last n samples (at least one).
func New(n int) *Ring {
	if n < 1 {
		n = 1
	}
	return &Ring{buf: make([]energy.Sample, n)}
}

// Add records s, overwriting the oldest sample once the ring is full.
func (r *Ring) Add(s energy.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Samples returns every retained sample, oldest first.
func (r *Ring) Samples() []energy.Sample {
	return r.Last(len(r.buf))
}

// Last returns up to n of the newest samples, oldest first.
func (r *Ring) Last(n int) []energy.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	n = max(0, min(n, r.count))
	out := make([]energy.Sample, n)
	first := r.next - n + len(r.buf)
	for i := range out {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}
