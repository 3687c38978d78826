// Package singleflight collapses concurrent calls that share a key into one
// execution whose result every caller receives.
package singleflight

import (
	"context"
	"sync"
)

// Group manages a set of in-flight calls to prevent duplicate work.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

type call struct {
	done chan struct{}
	val  interface{}
	err  error
	dups int
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn once per key among concurrent callers. The first caller runs
// fn with its own context; later callers wait for that result unless their
// context ends first. shared reports whether the result went to more than one
// caller. The key is forgotten as soon as fn returns, so later calls execute
// afresh.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (v interface{}, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), false
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	func() {
		defer func() {
			g.mu.Lock()
			if g.m[key] == c {
				delete(g.m, key)
			}
			shared = c.dups > 0
			g.mu.Unlock()
			close(c.done)
		}()
		c.val, c.err = fn(ctx)
	}()

	return c.val, c.err, shared
}

// InFlight returns the number of keys currently executing.
func (g *Group) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// Forget drops key so the next call executes even if one is still running.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
