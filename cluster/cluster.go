// Package cluster provides the rank context and message fabric used to build
// distributed meshes. Every phase of the mesh construction receives an
// explicit *Context rather than consulting ambient global state, so the same
// code path serves the single-rank case and in-process multi-rank runs.
package cluster

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"
)

// Exchanger is the message-exchange capability of one rank. Messages are
// matched by (source, tag); arrival order across sources is not guaranteed.
// There are no timeouts, but when any rank of the group fails the fabric
// aborts: every blocked call returns an error instead of waiting on a rank
// that will never arrive.
type Exchanger interface {
	// Send transmits msg to dest under the given tag. The message is
	// serialized at call time, so the caller may reuse msg immediately.
	// Send does not block on the receiver.
	Send(dest, tag int, msg interface{}) error

	// Recv blocks until a message from source with the given tag arrives,
	// then decodes it into msg (a pointer).
	Recv(source, tag int, msg interface{}) error

	// RecvAny blocks until a message with the given tag arrives from any
	// source, decodes it into msg, and reports the source rank.
	RecvAny(tag int, msg interface{}) (source int, err error)

	// ReduceScatterSum performs the peer-count negotiation: flags must have
	// one entry per rank, and the call returns the sum over all ranks of
	// their flags entry for this rank. It is a collective: every rank of
	// the group must call it.
	ReduceScatterSum(flags []int) (int, error)

	// Barrier blocks until every rank of the group has entered it. It is
	// required after any round that used RecvAny, to prevent a straggler
	// message of one phase being matched by the next. It returns an error
	// only when the group aborted.
	Barrier() error
}

// Context identifies one rank within a group and carries its exchange
// capability.
type Context struct {
	Rank int
	Size int
	Exchanger
}

// packet is one in-flight message. The payload is a gob-encoded copy of the
// value passed to Send, so sender and receiver never alias storage.
type packet struct {
	source int
	tag    int
	data   []byte
}

// endpoint is the per-rank view of a Group. It holds the rank's inbox of
// pending packets, matched lazily by Recv/RecvAny.
type endpoint struct {
	rank  int
	group *Group

	mu      sync.Mutex
	cond    *sync.Cond
	pending []packet
}

// Group is an in-process fabric connecting Size ranks through their
// endpoints. A Group of size 1 is the required single-rank degenerate mode:
// self-sends travel through the same pending queue as any other message.
type Group struct {
	size      int
	endpoints []*endpoint
	barrier   *barrier
	reduceBuf [][]int

	abortOnce sync.Once
	abortMu   sync.Mutex
	abortErr  error
}

// NewGroup creates a fabric for n ranks.
func NewGroup(n int) (*Group, error) {
	if n < 1 {
		return nil, fmt.Errorf("cluster: group size must be at least 1, got %d", n)
	}
	g := &Group{
		size:      n,
		endpoints: make([]*endpoint, n),
		barrier:   newBarrier(n),
		reduceBuf: make([][]int, n),
	}
	for i := range g.endpoints {
		ep := &endpoint{rank: i, group: g}
		ep.cond = sync.NewCond(&ep.mu)
		g.endpoints[i] = ep
	}
	return g, nil
}

// Context returns the context of the given rank.
func (g *Group) Context(rank int) *Context {
	return &Context{Rank: rank, Size: g.size, Exchanger: g.endpoints[rank]}
}

// Run executes fn once per rank, each on its own goroutine, and waits for
// all of them. A fatal consistency error on any rank aborts the group, so
// ranks blocked in a collective or a receive unwind with an error instead of
// waiting on the failed rank forever. The returned error joins the per-rank
// failures.
func (g *Group) Run(fn func(ctx *Context) error) error {
	errs := make([]error, g.size)
	var wg sync.WaitGroup
	wg.Add(g.size)
	for i := 0; i < g.size; i++ {
		go func(rank int) {
			defer wg.Done()
			if err := fn(g.Context(rank)); err != nil {
				errs[rank] = err
				g.abort(fmt.Errorf("cluster: rank %d failed, group aborted", rank))
			}
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// abort wakes every blocked receive and barrier wait in the group. Only the
// first call takes effect; later calls for ranks failing in turn are no-ops.
func (g *Group) abort(err error) {
	g.abortOnce.Do(func() {
		g.abortMu.Lock()
		g.abortErr = err
		g.abortMu.Unlock()
		g.barrier.abort(err)
		for _, ep := range g.endpoints {
			ep.mu.Lock()
			ep.cond.Broadcast()
			ep.mu.Unlock()
		}
	})
}

func (g *Group) abortedErr() error {
	g.abortMu.Lock()
	defer g.abortMu.Unlock()
	return g.abortErr
}

func (ep *endpoint) Send(dest, tag int, msg interface{}) error {
	if err := ep.group.abortedErr(); err != nil {
		return err
	}
	if dest < 0 || dest >= ep.group.size {
		return fmt.Errorf("cluster: send from rank %d to invalid rank %d", ep.rank, dest)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("cluster: encoding message for rank %d tag %d: %w", dest, tag, err)
	}
	target := ep.group.endpoints[dest]
	target.mu.Lock()
	target.pending = append(target.pending, packet{source: ep.rank, tag: tag, data: buf.Bytes()})
	target.mu.Unlock()
	target.cond.Broadcast()
	return nil
}

func (ep *endpoint) Recv(source, tag int, msg interface{}) error {
	p, err := ep.take(func(p packet) bool { return p.source == source && p.tag == tag })
	if err != nil {
		return err
	}
	return decode(p, msg)
}

func (ep *endpoint) RecvAny(tag int, msg interface{}) (int, error) {
	p, err := ep.take(func(p packet) bool { return p.tag == tag })
	if err != nil {
		return 0, err
	}
	return p.source, decode(p, msg)
}

// take removes and returns the first pending packet accepted by match,
// blocking until one arrives or the group aborts.
func (ep *endpoint) take(match func(packet) bool) (packet, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for {
		if err := ep.group.abortedErr(); err != nil {
			return packet{}, err
		}
		for i, p := range ep.pending {
			if match(p) {
				ep.pending = append(ep.pending[:i], ep.pending[i+1:]...)
				return p, nil
			}
		}
		ep.cond.Wait()
	}
}

func decode(p packet, msg interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(p.data)).Decode(msg); err != nil {
		return fmt.Errorf("cluster: decoding message from rank %d tag %d: %w", p.source, p.tag, err)
	}
	return nil
}

func (ep *endpoint) ReduceScatterSum(flags []int) (int, error) {
	g := ep.group
	if len(flags) != g.size {
		return 0, fmt.Errorf("cluster: reduce-scatter flags length %d does not match group size %d",
			len(flags), g.size)
	}
	row := make([]int, g.size)
	copy(row, flags)
	g.reduceBuf[ep.rank] = row
	if err := g.barrier.await(); err != nil {
		return 0, err
	}
	sum := 0
	for _, r := range g.reduceBuf {
		sum += r[ep.rank]
	}
	// Second rendezvous so no rank overwrites its row while others still read.
	if err := g.barrier.await(); err != nil {
		return 0, err
	}
	return sum, nil
}

func (ep *endpoint) Barrier() error {
	return ep.group.barrier.await()
}

// barrier is a reusable rendezvous for a fixed number of participants. Once
// aborted it never completes again; every waiter, present and future, gets
// the abort error.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
	err   error
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.gen && b.err == nil {
		b.cond.Wait()
	}
	return b.err
}

func (b *barrier) abort(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	b.cond.Broadcast()
}
