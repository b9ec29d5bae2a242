package hostlink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSPath is where the WebSocket host link is served.
const WSPath = "/ws"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket is a host link for controllers speaking WebSocket: one text
// message per line in both directions.
type WebSocket struct {
	*hub
	ln   net.Listener
	srv  *http.Server
	auth Authorizer
}

type wsSession struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSession) writeLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *wsSession) close() error {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *wsSession) String() string { return s.conn.RemoteAddr().String() }

// ListenWebSocket serves the WebSocket host link on addr at WSPath.
func ListenWebSocket(addr string, auth Authorizer, log *zap.Logger) (*WebSocket, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}
	h := newHub(log)
	w := &WebSocket{hub: h, ln: ln, auth: auth}
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, w.handleWS)
	w.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	h.onClose = func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return w.srv.Shutdown(ctx)
	}
	go func() {
		if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Warn("ws serve", zap.Error(err))
		}
	}()
	h.log.Info("host link listening", zap.String("url", "ws://"+ln.Addr().String()+WSPath))
	return w, nil
}

// Addr of the listener.
func (w *WebSocket) Addr() net.Addr { return w.ln.Addr() }

func (w *WebSocket) handleWS(rw http.ResponseWriter, r *http.Request) {
	if w.auth.enabled() && !w.auth.Check(requestToken(r)) {
		w.log.Warn("ws controller rejected", zap.String("remote", r.RemoteAddr))
		http.Error(rw, "invalid token", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	s := &wsSession{conn: conn}
	w.attach(s)
	go w.readLoop(s)
}

func (w *WebSocket) readLoop(s *wsSession) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			w.detach(s)
			return
		}
		if !bytes.HasSuffix(msg, []byte("\n")) {
			msg = append(msg, '\n')
		}
		if !w.deliver(s, msg) {
			return
		}
	}
}
