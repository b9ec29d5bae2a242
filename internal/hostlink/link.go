// Package hostlink: the byte-stream link to the host controller. Every kind
// (stdio, TCP, QUIC stream, WebSocket) has one controller at a time; a newly
// accepted controller replaces the previous one.
package hostlink

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("host link not connected")
	ErrClosed       = errors.New("host link closed")
)

// Link is what the gateway needs from the host link.
type Link interface {
	Connected() bool
	// ReadBytes fills p with received bytes, waiting at most timeout.
	// Returns 0, nil on timeout.
	ReadBytes(p []byte, timeout time.Duration) (int, error)
	WriteLine(text string) error
	Close() error
}

// SessionReader is a Link that numbers controller sessions. The number
// changes whenever a controller attaches or detaches; bytes from an earlier
// session are never returned once it has changed.
type SessionReader interface {
	ReadSession(p []byte, timeout time.Duration) (n int, session uint64, err error)
}

// session is one attached controller.
type session interface {
	writeLine(text string) error
	close() error
	String() string
}

type chunk struct {
	gen uint64
	b   []byte
}

// hub multiplexes successive sessions onto one Link.
type hub struct {
	log *zap.Logger

	mu  sync.Mutex
	cur session
	gen uint64

	chunks chan chunk
	// pending is the unread tail of the last chunk; reader-owned.
	pending    []byte
	pendingGen uint64
	done    chan struct{}
	once    sync.Once
	onClose func() error
	// onAttach (opt) runs after a session becomes current.
	onAttach func()
}

func newHub(log *zap.Logger) *hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &hub{
		log:    log,
		chunks: make(chan chunk, 16),
		done:   make(chan struct{}),
	}
}

func (h *hub) attach(s session) {
	h.mu.Lock()
	prev := h.cur
	h.cur = s
	h.gen++
	fn := h.onAttach
	h.mu.Unlock()
	if prev != nil {
		h.log.Info("host controller replaced", zap.Stringer("old", prev), zap.Stringer("new", s))
		prev.close()
	} else {
		h.log.Info("host controller connected", zap.Stringer("peer", s))
	}
	if fn != nil {
		fn()
	}
}

func (h *hub) detach(s session) {
	h.mu.Lock()
	if h.cur != s {
		h.mu.Unlock()
		return
	}
	h.cur = nil
	h.gen++
	h.mu.Unlock()
	h.log.Info("host controller disconnected", zap.Stringer("peer", s))
	s.close()
}

// deliver queues bytes read by s; dropped when s is no longer current.
// Blocks while the consumer is behind.
func (h *hub) deliver(s session, b []byte) bool {
	h.mu.Lock()
	current := h.cur == s
	gen := h.gen
	h.mu.Unlock()
	if !current {
		return false
	}
	select {
	case h.chunks <- chunk{gen: gen, b: append([]byte(nil), b...)}:
		return true
	case <-h.done:
		return false
	}
}

func (h *hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur != nil
}

func (h *hub) curGen() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

func (h *hub) ReadBytes(p []byte, timeout time.Duration) (int, error) {
	n, _, err := h.ReadSession(p, timeout)
	return n, err
}

// ReadSession is ReadBytes that also reports the session the bytes belong
// to. Buffered bytes of a replaced session are discarded.
func (h *hub) ReadSession(p []byte, timeout time.Duration) (int, uint64, error) {
	gen := h.curGen()
	if len(h.pending) > 0 {
		if h.pendingGen == gen {
			n := copy(p, h.pending)
			h.pending = h.pending[n:]
			return n, gen, nil
		}
		h.pending = nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case c := <-h.chunks:
			gen = h.curGen()
			if c.gen != gen {
				continue
			}
			n := copy(p, c.b)
			h.pending, h.pendingGen = c.b[n:], c.gen
			return n, gen, nil
		case <-t.C:
			return 0, h.curGen(), nil
		case <-h.done:
			return 0, gen, ErrClosed
		}
	}
}

func (h *hub) WriteLine(text string) error {
	h.mu.Lock()
	s := h.cur
	h.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.writeLine(text); err != nil {
		h.detach(s)
		return err
	}
	return nil
}

func (h *hub) Close() error {
	var err error
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		s := h.cur
		h.cur = nil
		h.mu.Unlock()
		if s != nil {
			s.close()
		}
		if h.onClose != nil {
			err = h.onClose()
		}
	})
	return err
}

// OnConnect sets fn to run each time a controller attaches. fn also runs
// right away when a controller is already attached.
func (h *hub) OnConnect(fn func()) {
	h.mu.Lock()
	h.onAttach = fn
	attached := h.cur != nil
	h.mu.Unlock()
	if attached && fn != nil {
		fn()
	}
}
