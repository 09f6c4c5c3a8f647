package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates request IDs of the form "<prefix>-<n>" from a
// monotonic counter. Unlike orchestrator.FixedGenerator it never runs out,
// and it can be reset so the same test produces the same IDs again.
//
// All methods are safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceIDs creates a generator whose first ID is "<prefix>-1". An
// empty prefix means "req".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Issued returns how many IDs have been generated since the last reset.
func (g *SequenceIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next ID is "<prefix>-1" again.
func (g *SequenceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
