// Package ircpool is the IRC client pool (spec C4): a shared reactor, a
// registry of live clients, and signal-triggered "close all" shutdown.
package ircpool

import (
	"context"
	"sync"

	"github.com/nitric1/SudaGureum/internal/ircclient"
	"github.com/nitric1/SudaGureum/internal/reactor"
)

// Pool owns the shared reactor pool and tracks every live IRC client so a
// signal handler can trigger a coordinated "close all" (spec §5).
type Pool struct {
	reactor *reactor.Pool

	mu      sync.Mutex
	clients map[*ircclient.Client]struct{}
}

// New creates a pool backed by a reactor with the given worker count.
func New(workers int) *Pool {
	return &Pool{
		reactor: reactor.NewPool(workers),
		clients: make(map[*ircclient.Client]struct{}),
	}
}

// Reactor returns the shared reactor pool new clients should be built
// against.
func (p *Pool) Reactor() *reactor.Pool { return p.reactor }

// Spawn creates a client from cfg/events, registers it, and starts
// Connect in a new goroutine. The client is unregistered automatically
// once its connection ends.
func (p *Pool) Spawn(ctx context.Context, cfg ircclient.Config, events ircclient.Events) *ircclient.Client {
	c := ircclient.New(cfg, events, p.reactor)

	p.mu.Lock()
	p.clients[c] = struct{}{}
	p.mu.Unlock()

	go func() {
		_ = c.Connect(ctx)
		p.mu.Lock()
		delete(p.clients, c)
		p.mu.Unlock()
	}()

	return c
}

// Clients returns a snapshot of every currently-registered client.
func (p *Pool) Clients() []*ircclient.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*ircclient.Client, 0, len(p.clients))
	for c := range p.clients {
		out = append(out, c)
	}
	return out
}

// CloseAll sends QUIT to every live client and starts their close timers,
// triggered by SIGINT/SIGTERM/SIGQUIT (spec §5).
func (p *Pool) CloseAll() {
	for _, c := range p.Clients() {
		c.Close()
	}
}

// Shutdown waits for all clients to finish closing, then stops the
// reactor pool.
func (p *Pool) Shutdown() {
	for _, c := range p.Clients() {
		<-c.Done()
	}
	p.reactor.Stop()
}
