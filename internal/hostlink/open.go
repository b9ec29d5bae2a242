package hostlink

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Kinds of host link.
const (
	KindStdio     = "stdio"
	KindTCP       = "tcp"
	KindQUIC      = "quic"
	KindWebSocket = "websocket"
)

// Options selects and configures a host link.
type Options struct {
	Kind   string
	Listen string
	// CertDir holds the QUIC self-signed pair ("" -> ephemeral).
	CertDir string
	Auth    Authorizer
	Logger  *zap.Logger
}

// Connector is a Link that reports controller attach and numbers sessions.
type Connector interface {
	Link
	SessionReader
	OnConnect(fn func())
}

// Open creates the configured host link.
func Open(o Options) (Connector, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	switch o.Kind {
	case "", KindStdio:
		return NewStream(os.Stdin, os.Stdout, log), nil
	case KindTCP:
		l, err := ListenTCP(o.Listen, log)
		if err != nil {
			return nil, err
		}
		return l, nil
	case KindQUIC:
		cert, err := LoadOrGenerateCert(o.CertDir)
		if err != nil {
			return nil, fmt.Errorf("hostlink: cert: %w", err)
		}
		ln, err := ListenQUIC(o.Listen, ServerTLS(cert))
		if err != nil {
			return nil, err
		}
		return Serve(ln, log), nil
	case KindWebSocket:
		w, err := ListenWebSocket(o.Listen, o.Auth, log)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	return nil, fmt.Errorf("hostlink: unknown kind %q", o.Kind)
}
