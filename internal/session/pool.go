// Package session holds the client's logical connections to its server
// endpoints and picks a target for every request.
package session

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// ErrAborted is returned by Connect when a stop was requested before every
// session finished its handshake.
var ErrAborted = errors.New("session setup aborted")

// Connector creates sessions and drives the handshake. It is satisfied by
// *transport.Rpc.
type Connector interface {
	CreateSession(uri string) (int, error)
	NumSMResponses() int
	RunEventLoop(d time.Duration)
}

// Pool references one session per configured server endpoint. The handles
// belong to the transport; the pool only remembers them.
type Pool struct {
	handles []int
	uris    []string
	rng     *rand.Rand
}

// NewPool creates an empty pool. A zero seed picks a random one. The pool
// is meant to be embedded by value in a role context.
func NewPool(seed uint64) Pool {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return Pool{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Add appends an established session handle for the endpoint uri.
func (p *Pool) Add(uri string, handle int) {
	p.uris = append(p.uris, uri)
	p.handles = append(p.handles, handle)
}

// Len returns the number of sessions.
func (p *Pool) Len() int { return len(p.handles) }

// Handle returns the transport handle of endpoint i.
func (p *Pool) Handle(i int) int { return p.handles[i] }

// URI returns the address of endpoint i.
func (p *Pool) URI(i int) string { return p.uris[i] }

// Pick chooses an endpoint uniformly at random, independently on every
// call, and returns its index and handle.
func (p *Pool) Pick() (index, handle int) {
	index = p.rng.IntN(len(p.handles))
	return index, p.handles[index]
}

// Stopper reports whether shutdown was requested.
type Stopper interface {
	Requested() bool
}

// Connect creates one session per uri, in order, and ticks the connector
// until each handshake completes. It returns ErrAborted if stop fires
// first. A session that cannot be created is fatal for the run.
func (p *Pool) Connect(c Connector, uris []string, tick time.Duration, stop Stopper, log *zap.Logger) error {
	for i, uri := range uris {
		log.Info("Creating session", zap.Int("endpoint", i), zap.String("uri", uri))

		handle, err := c.CreateSession(uri)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if handle < 0 {
			return fmt.Errorf("failed to create session to %s: invalid handle %d", uri, handle)
		}
		p.Add(uri, handle)

		for c.NumSMResponses() != i+1 {
			c.RunEventLoop(tick)
			if stop.Requested() {
				return ErrAborted
			}
		}
	}

	return nil
}
