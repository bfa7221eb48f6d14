package indexer

import (
	"context"
	"sync"
)

// Gate is an open/closed signal that can be toggled any number of times.
// Waiters block on a channel that is closed when the gate opens.
type Gate struct {
	mu     sync.Mutex
	open   bool
	opened chan struct{}
}

func NewGate(open bool) *Gate {
	g := &Gate{opened: make(chan struct{})}
	if open {
		g.open = true
		close(g.opened)
	}
	return g
}

func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.opened)
}

func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.opened = make(chan struct{})
}

func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait returns once the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	opened := g.opened
	g.mu.Unlock()
	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
