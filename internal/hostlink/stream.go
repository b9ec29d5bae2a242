package hostlink

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// Stream is a host link over a byte stream pair (stdio). Connected until
// the reader returns an error.
type Stream struct {
	*hub
}

type streamSession struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

func (s *streamSession) writeLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, text+"\n")
	return err
}

func (s *streamSession) close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

func (s *streamSession) String() string { return "stream" }

// NewStream attaches r/w as the controller. r is closed on Close if it is an io.Closer.
func NewStream(r io.Reader, w io.Writer, log *zap.Logger) *Stream {
	h := newHub(log)
	s := &streamSession{w: w}
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
	h.attach(s)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			if n > 0 && !h.deliver(s, buf[:n]) {
				return
			}
			if err != nil {
				if err != io.EOF {
					h.log.Warn("host stream read", zap.Error(err))
				}
				h.detach(s)
				return
			}
		}
	}()
	return &Stream{hub: h}
}
