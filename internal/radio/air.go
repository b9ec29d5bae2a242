package radio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/crypto"
	"dev.c0redev.nowgate/internal/ident"
)

const (
	// air frame: dst(6) | src(6) | flags(1) | body
	frameHeader = 2*ident.Len + 1
	flagSealed  = 0x01
	// MaxData largest Send payload (sealed frames add nonce + tag).
	MaxData = 1400
)

// AirConfig for an Air endpoint.
type AirConfig struct {
	Self ident.MAC
	// Listen is the local UDP addr; a multicast group addr joins the group
	// and is also used as a destination.
	Listen string
	// Air: extra destination addrs every frame is written to.
	Air    []string
	Logger *zap.Logger
}

// packetReader is the receive side of the socket.
type packetReader interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
}

// readRetry pause after a failed read.
const readRetry = 50 * time.Millisecond

type airPeer struct {
	key     []byte
	encrypt bool
}

// Air emulates the radio link over UDP datagrams. Every frame goes to all
// destinations; receivers filter on dst.
type Air struct {
	self ident.MAC
	conn *net.UDPConn
	rx   packetReader
	log  *zap.Logger

	mu     sync.RWMutex
	dests  []*net.UDPAddr
	peers  map[ident.MAC]airPeer
	onRecv func(ident.MAC, []byte)
	onSent func(ident.MAC, bool)

	closeOnce sync.Once
	done      chan struct{}
}

// NewAir opens the UDP socket. Call Start to begin receiving.
func NewAir(cfg AirConfig) (*Air, error) {
	if cfg.Self.IsZero() || cfg.Self.IsBroadcast() {
		return nil, fmt.Errorf("radio: bad own identity %s", cfg.Self)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	laddr, err := net.ResolveUDPAddr("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("radio: listen addr: %w", err)
	}
	a := &Air{
		self:  cfg.Self,
		log:   log,
		peers: make(map[ident.MAC]airPeer),
		done:  make(chan struct{}),
	}
	if laddr.IP.IsMulticast() {
		a.conn, err = net.ListenMulticastUDP("udp4", nil, laddr)
		a.dests = append(a.dests, laddr)
	} else {
		a.conn, err = net.ListenUDP("udp4", laddr)
	}
	if err != nil {
		return nil, err
	}
	a.rx = a.conn
	for _, s := range cfg.Air {
		if err := a.AddDest(s); err != nil {
			a.conn.Close()
			return nil, err
		}
	}
	return a, nil
}

// LocalAddr of the socket.
func (a *Air) LocalAddr() net.Addr { return a.conn.LocalAddr() }

// AddDest adds a destination addr for outgoing frames.
func (a *Air) AddDest(addr string) error {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("radio: air addr %q: %w", addr, err)
	}
	a.mu.Lock()
	a.dests = append(a.dests, ua)
	a.mu.Unlock()
	return nil
}

func (a *Air) SupportsEncryption() bool { return true }

func (a *Air) OnReceive(fn func(ident.MAC, []byte)) {
	a.mu.Lock()
	a.onRecv = fn
	a.mu.Unlock()
}

func (a *Air) OnSendComplete(fn func(ident.MAC, bool)) {
	a.mu.Lock()
	a.onSent = fn
	a.mu.Unlock()
}

// AddPeer adds or replaces id in the peer table.
func (a *Air) AddPeer(id ident.MAC, key []byte, encrypt bool) error {
	if encrypt && len(key) != crypto.KeySize {
		return ErrBadKey
	}
	a.mu.Lock()
	a.peers[id] = airPeer{key: append([]byte(nil), key...), encrypt: encrypt}
	a.mu.Unlock()
	a.log.Debug("peer added", zap.Stringer("mac", id), zap.Bool("encrypt", encrypt))
	return nil
}

func (a *Air) PeerExists(id ident.MAC) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.peers[id]
	return ok
}

// Send writes one frame to the air. to must be in the peer table.
// The send-complete callback fires before Send returns.
func (a *Air) Send(to ident.MAC, data []byte) error {
	if len(data) > MaxData {
		return ErrTooLarge
	}
	a.mu.RLock()
	p, ok := a.peers[to]
	dests := a.dests
	onSent := a.onSent
	a.mu.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}
	select {
	case <-a.done:
		return ErrClosed
	default:
	}

	frame := make([]byte, frameHeader, frameHeader+len(data)+crypto.NonceSize+16)
	copy(frame[0:], to[:])
	copy(frame[ident.Len:], a.self[:])
	body := data
	if p.encrypt && !to.IsBroadcast() {
		sealed, err := crypto.Seal(p.key, nil, data)
		if err != nil {
			return err
		}
		frame[2*ident.Len] = flagSealed
		body = sealed
	}
	frame = append(frame, body...)

	var errs []error
	for _, d := range dests {
		if _, err := a.conn.WriteToUDP(frame, d); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if len(dests) == 0 {
		err = errors.New("radio: no air destinations")
	}
	if onSent != nil {
		onSent(to, err == nil)
	}
	return err
}

// Start runs the receive loop until ctx ends or Close.
func (a *Air) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			a.Close()
		case <-a.done:
		}
	}()
	go a.readLoop()
	a.log.Info("radio air up", zap.Stringer("mac", a.self), zap.Stringer("addr", a.conn.LocalAddr()))
	return nil
}

// readLoop runs until Close. Read errors other than a closed socket are
// logged and retried.
func (a *Air) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, from, err := a.rx.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-a.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				a.log.Error("air socket closed, receive stopped", zap.Error(err))
				return
			}
			a.log.Error("air read", zap.Error(err))
			select {
			case <-time.After(readRetry):
			case <-a.done:
				return
			}
			continue
		}
		a.handleFrame(buf[:n], from)
	}
}

func (a *Air) handleFrame(b []byte, from *net.UDPAddr) {
	if len(b) < frameHeader {
		return
	}
	dst, _ := ident.FromBytes(b[:ident.Len])
	src, _ := ident.FromBytes(b[ident.Len : 2*ident.Len])
	if src == a.self || (dst != a.self && !dst.IsBroadcast()) {
		return
	}
	body := b[frameHeader:]
	if b[2*ident.Len]&flagSealed != 0 {
		a.mu.RLock()
		p, ok := a.peers[src]
		a.mu.RUnlock()
		if !ok || !p.encrypt {
			a.log.Debug("sealed frame from unkeyed peer", zap.Stringer("src", src), zap.Stringer("from", from))
			return
		}
		pt, err := crypto.Open(p.key, body)
		if err != nil {
			a.log.Debug("frame auth failed", zap.Stringer("src", src), zap.Error(err))
			return
		}
		body = pt
	} else {
		body = append([]byte(nil), body...)
	}
	a.mu.RLock()
	fn := a.onRecv
	a.mu.RUnlock()
	if fn != nil {
		fn(src, body)
	}
}

// Close stops the receive loop and closes the socket. Idempotent.
func (a *Air) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.conn.Close()
	})
	return err
}
