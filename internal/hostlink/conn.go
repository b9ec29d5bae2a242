package hostlink

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const writeTimeout = 2 * time.Second

// Listener is a host link serving controllers accepted from a net.Listener
// (TCP, or QUIC streams via ListenQUIC).
type Listener struct {
	*hub
	ln net.Listener
}

type connSession struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *connSession) writeLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := s.conn.Write([]byte(text + "\n"))
	return err
}

func (s *connSession) close() error { return s.conn.Close() }
func (s *connSession) String() string { return s.conn.RemoteAddr().String() }

// Serve starts accepting controllers from ln.
func Serve(ln net.Listener, log *zap.Logger) *Listener {
	h := newHub(log)
	h.onClose = ln.Close
	l := &Listener{hub: h, ln: ln}
	go l.acceptLoop()
	h.log.Info("host link listening", zap.Stringer("addr", ln.Addr()))
	return l
}

// ListenTCP serves controllers on a TCP addr.
func ListenTCP(addr string, log *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return Serve(ln, log), nil
}

// Addr of the listener.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) acceptLoop() {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("host accept", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s := &connSession{conn: c}
		l.attach(s)
		go l.readLoop(s)
	}
}

func (l *Listener) readLoop(s *connSession) {
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 && !l.deliver(s, buf[:n]) {
			return
		}
		if err != nil {
			l.detach(s)
			return
		}
	}
}
