package radio

import (
	"context"
	"errors"

	"dev.c0redev.nowgate/internal/ident"
)

var (
	ErrUnknownPeer = errors.New("radio peer not in peer table")
	ErrTooLarge    = errors.New("radio frame too large")
	ErrBadKey      = errors.New("encrypted peer needs a 32-byte key")
	ErrClosed      = errors.New("radio transport closed")
)

// Transport is the radio driver boundary. OnReceive and OnSendComplete
// handlers run on the transport's goroutine and must not block.
type Transport interface {
	Send(to ident.MAC, data []byte) error
	AddPeer(id ident.MAC, key []byte, encrypt bool) error
	PeerExists(id ident.MAC) bool
	SupportsEncryption() bool
	OnReceive(fn func(from ident.MAC, data []byte))
	OnSendComplete(fn func(to ident.MAC, ok bool))
	Start(ctx context.Context) error
	Close() error
}

// Feed wires t's callbacks to p. onDrop (opt) is called for each event Post rejected.
func Feed(t Transport, p *Pipeline, onDrop func(Event, error)) {
	post := func(ev Event) {
		if err := p.Post(ev); err != nil && onDrop != nil {
			onDrop(ev, err)
		}
	}
	t.OnReceive(func(from ident.MAC, data []byte) {
		post(Event{Kind: Received, Peer: from, Data: data})
	})
	t.OnSendComplete(func(to ident.MAC, ok bool) {
		post(Event{Kind: SendCompleted, Peer: to, OK: ok})
	})
}
