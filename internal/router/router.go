// Package router: the gateway's command state machine between the host link
// and the radio link.
package router

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/ident"
	"dev.c0redev.nowgate/internal/proto"
)

var (
	ErrInvalidTarget    = errors.New("invalid target mac")
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrHostDisconnected = errors.New("host link not connected")
)

// Message types.
const (
	TypeRegister      = "register"
	TypeRegisterAck   = "register_ack"
	TypeGetConfig     = "get_config"
	TypeSetConfig     = "set_config"
	TypeForward       = "forward"
	TypeConfigRequest = "config_request"
	TypeGatewayInfo   = "gateway_info"
)

// Radio is the part of the radio transport the router drives.
type Radio interface {
	Send(to ident.MAC, b []byte) error
	AddPeer(id ident.MAC, key []byte, encrypt bool) error
	PeerExists(id ident.MAC) bool
	SupportsEncryption() bool
}

// HostSink writes lines to the host link.
type HostSink interface {
	Connected() bool
	WriteLine(text string) error
}

// Directory: persistent peer set.
type Directory interface {
	Add(id ident.MAC, key []byte) error
	Contains(id ident.MAC) bool
}

type Options struct {
	Self      ident.MAC
	Directory Directory
	Radio     Radio
	Host      HostSink
	// KeyFunc derives the link key for a registering node (opt).
	KeyFunc func(ident.MAC) ([]byte, error)
	// Encrypt registered peers when the radio supports it.
	Encrypt bool
	Logger  *zap.Logger
}

// Router holds no state of its own beyond its collaborators.
type Router struct {
	self    ident.MAC
	dir     Directory
	radio   Radio
	host    HostSink
	keyFn   func(ident.MAC) ([]byte, error)
	encrypt bool
	log     *zap.Logger
}

func New(o Options) *Router {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		self:    o.Self,
		dir:     o.Directory,
		radio:   o.Radio,
		host:    o.Host,
		keyFn:   o.KeyFunc,
		encrypt: o.Encrypt,
		log:     log,
	}
}

// HandleRadioPayload takes a decoded packet payload from sender: non-JSON is
// logged and dropped, JSON is mirrored to the host then routed.
func (r *Router) HandleRadioPayload(sender ident.MAC, payload []byte) error {
	obj, err := ParseObject(payload)
	if err != nil {
		r.log.Info("non-JSON radio payload", zap.Stringer("from", sender), zap.ByteString("payload", payload))
		return err
	}
	if line, err := compactLine(payload); err == nil {
		if err := r.DispatchToHost(line); err != nil {
			r.log.Debug("radio payload not mirrored", zap.Stringer("from", sender), zap.Error(err))
		}
	}
	return r.HandleFromRadio(sender, obj)
}

// HandleFromRadio routes a JSON object received from sender. A register is
// acked even when the peer could not be stored; the store error is returned.
func (r *Router) HandleFromRadio(sender ident.MAC, obj Object) error {
	typ, _ := obj.String("type")
	switch typ {
	case TypeRegister:
		return r.register(sender)
	case TypeSetConfig:
		r.log.Debug("node applied config", zap.Stringer("from", sender))
		return nil
	default:
		r.log.Debug("ignoring radio message", zap.Stringer("from", sender), zap.String("type", typ))
		return nil
	}
}

func (r *Router) register(sender ident.MAC) error {
	var addErr error
	if sender.IsBroadcast() || sender.IsZero() {
		r.log.Debug("register from reserved mac not stored", zap.Stringer("from", sender))
	} else {
		addErr = r.storePeer(sender)
	}

	ack := NewObject().SetString("type", TypeRegisterAck).SetString("mac", r.self.String())
	if err := r.DispatchToRadio(ident.Broadcast, ack); err != nil {
		return fmt.Errorf("register_ack: %w", err)
	}
	if addErr != nil {
		return fmt.Errorf("register %s: %w", sender, addErr)
	}
	r.log.Info("node registered", zap.Stringer("mac", sender))
	return nil
}

// storePeer adds sender to the directory and, once stored, to the radio
// peer table.
func (r *Router) storePeer(sender ident.MAC) error {
	var key []byte
	if r.keyFn != nil {
		k, err := r.keyFn(sender)
		if err != nil {
			r.log.Warn("link key derivation failed", zap.Stringer("from", sender), zap.Error(err))
		} else {
			key = k
		}
	}
	if r.dir != nil {
		if err := r.dir.Add(sender, key); err != nil {
			return err
		}
	}
	encrypt := r.encrypt && key != nil && r.radio.SupportsEncryption()
	if err := r.radio.AddPeer(sender, key, encrypt); err != nil {
		r.log.Warn("add radio peer", zap.Stringer("mac", sender), zap.Error(err))
	}
	return nil
}

// HandleHostLine parses one host line and routes it.
func (r *Router) HandleHostLine(line string) error {
	obj, err := ParseObject([]byte(line))
	if err != nil {
		return err
	}
	return r.HandleFromHost(obj)
}

// HandleFromHost validates the target mac and dispatches on type. Dropped
// commands are returned as errors for the caller to log.
func (r *Router) HandleFromHost(obj Object) error {
	s, ok := obj.String("mac")
	if !ok {
		return ErrInvalidTarget
	}
	target := ident.Parse(s)
	if target.IsZero() {
		return ErrInvalidTarget
	}
	typ, ok := obj.String("type")
	if !ok {
		return ErrMalformedCommand
	}

	var out Object
	switch typ {
	case TypeGetConfig:
		out = NewObject().SetString("type", TypeConfigRequest)
	case TypeSetConfig:
		cfg, ok := obj.Raw("configurations")
		if !ok {
			return ErrMalformedCommand
		}
		out = NewObject().SetString("type", TypeSetConfig).SetRaw("configurations", cfg)
	case TypeForward:
		pl, ok := obj.Raw("payload")
		if !ok {
			return ErrMalformedCommand
		}
		return r.dispatchRaw(target, pl)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, typ)
	}
	return r.DispatchToRadio(target, out)
}

// DispatchToRadio encodes obj into a packet for target and sends it. A
// unicast target unknown to the radio is added to its live table unencrypted.
func (r *Router) DispatchToRadio(target ident.MAC, obj Object) error {
	b, err := obj.Marshal()
	if err != nil {
		return err
	}
	return r.dispatchRaw(target, b)
}

func (r *Router) dispatchRaw(target ident.MAC, payload []byte) error {
	line, err := compactLine(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if !target.IsBroadcast() && !r.radio.PeerExists(target) {
		if err := r.radio.AddPeer(target, nil, false); err != nil {
			r.log.Warn("add radio peer", zap.Stringer("mac", target), zap.Error(err))
		}
	}
	pkt, err := proto.Encode(target, []byte(line))
	if err != nil {
		return err
	}
	if err := r.radio.Send(target, pkt); err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	r.log.Debug("sent to radio", zap.Stringer("to", target), zap.String("json", line))
	return nil
}

// DispatchToHost writes text as one line if the host link is up.
func (r *Router) DispatchToHost(text string) error {
	if r.host == nil || !r.host.Connected() {
		r.log.Debug("host disconnected, line dropped")
		return ErrHostDisconnected
	}
	return r.host.WriteLine(text)
}
