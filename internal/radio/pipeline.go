// Package radio: the radio transport boundary, the UDP "air" stand-in for it,
// and the bounded event queue between transport callbacks and the gateway.
package radio

import (
	"context"
	"errors"
	"sync/atomic"

	"dev.c0redev.nowgate/internal/ident"
)

// DefaultQueueSize radio event queue depth.
const DefaultQueueSize = 6

var ErrQueueFull = errors.New("radio event queue full")

type EventKind uint8

const (
	SendCompleted EventKind = iota + 1
	Received
)

func (k EventKind) String() string {
	switch k {
	case SendCompleted:
		return "send_completed"
	case Received:
		return "received"
	}
	return "unknown"
}

// Event is one transport callback. SendCompleted uses Peer+OK, Received uses Peer+Data.
type Event struct {
	Kind EventKind
	Peer ident.MAC
	OK   bool
	Data []byte
}

// Pipeline: bounded FIFO, many producers (transport callbacks), one consumer.
type Pipeline struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewPipeline(size int) *Pipeline {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Pipeline{ch: make(chan Event, size)}
}

// Post enqueues ev without blocking. Received data is copied. Full -> ErrQueueFull, ev dropped.
func (p *Pipeline) Post(ev Event) error {
	if ev.Data != nil {
		ev.Data = append([]byte(nil), ev.Data...)
	}
	select {
	case p.ch <- ev:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Next blocks until an event is queued or ctx ends (false).
func (p *Pipeline) Next(ctx context.Context) (Event, bool) {
	select {
	case ev := <-p.ch:
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (p *Pipeline) Len() int { return len(p.ch) }

// Dropped events rejected by Post since creation.
func (p *Pipeline) Dropped() uint64 { return p.dropped.Load() }
