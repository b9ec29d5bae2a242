// Package gateway wires the radio link, the host link, the peer directory and
// the command router together and runs the gateway's tasks.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/crypto"
	"dev.c0redev.nowgate/internal/hostlink"
	"dev.c0redev.nowgate/internal/ident"
	"dev.c0redev.nowgate/internal/lines"
	"dev.c0redev.nowgate/internal/peers"
	"dev.c0redev.nowgate/internal/proto"
	"dev.c0redev.nowgate/internal/radio"
	"dev.c0redev.nowgate/internal/router"
)

const (
	DefaultLineQueue   = 8
	DefaultReadTimeout = 500 * time.Millisecond
	DefaultPoll        = 200 * time.Millisecond
	hostReadBuf        = 256
)

var ErrLineQueueFull = errors.New("host line queue full")

// Options for New. Zero values take the defaults.
type Options struct {
	Self ident.MAC
	// PMK pre-shared key the per-node link keys derive from.
	PMK     []byte
	Encrypt bool

	Store    peers.BlobStore
	PeersMax int

	Radio radio.Transport
	Host  hostlink.Link

	RadioQueue  int
	LineQueue   int
	LineMax     int
	ReadTimeout time.Duration
	Poll        time.Duration
	// StatsInterval 0 -> no periodic stats log.
	StatsInterval time.Duration

	Logger *zap.Logger
}

// Gateway owns the peer directory and the queues between the two links.
type Gateway struct {
	self    ident.MAC
	encrypt bool
	keyFn   func(ident.MAC) ([]byte, error)

	dir      *peers.Directory
	router   *router.Router
	radio    radio.Transport
	host     hostlink.Link
	events   *radio.Pipeline
	lines    chan string
	lineMax  int
	readTO   time.Duration
	poll     time.Duration
	statsInt time.Duration

	stats Stats
	log   *zap.Logger
}

func New(o Options) (*Gateway, error) {
	if o.Self.IsZero() || o.Self.IsBroadcast() {
		return nil, fmt.Errorf("gateway: bad own identity %s", o.Self)
	}
	if o.Radio == nil || o.Host == nil || o.Store == nil {
		return nil, errors.New("gateway: radio, host and store required")
	}
	if len(o.PMK) < crypto.MinPMKSize {
		return nil, crypto.ErrShortPMK
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if o.LineQueue <= 0 {
		o.LineQueue = DefaultLineQueue
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Poll <= 0 {
		o.Poll = DefaultPoll
	}
	if o.LineMax <= 1 {
		o.LineMax = lines.DefaultMax
	}

	g := &Gateway{
		self:     o.Self,
		encrypt:  o.Encrypt,
		keyFn:    crypto.KeyFunc(o.PMK),
		radio:    o.Radio,
		host:     o.Host,
		events:   radio.NewPipeline(o.RadioQueue),
		lines:    make(chan string, o.LineQueue),
		lineMax:  o.LineMax,
		readTO:   o.ReadTimeout,
		poll:     o.Poll,
		statsInt: o.StatsInterval,
		log:      log.Named("gateway"),
	}
	g.dir = peers.New(o.Store, o.PeersMax, g.keyFn, log.Named("peers"))
	g.router = router.New(router.Options{
		Self:      o.Self,
		Directory: g.dir,
		Radio:     o.Radio,
		Host:      o.Host,
		KeyFunc:   g.keyFn,
		Encrypt:   o.Encrypt,
		Logger:    log.Named("router"),
	})
	return g, nil
}

// Self own identity.
func (g *Gateway) Self() ident.MAC { return g.self }

// Directory the gateway's peer directory.
func (g *Gateway) Directory() *peers.Directory { return g.dir }

// Stats live counters.
func (g *Gateway) Stats() *Stats { return &g.stats }

// Start loads the directory, hooks the radio callbacks to the event queue and
// brings up the radio with the broadcast and stored peers in its table.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.dir.Load(); err != nil {
		g.log.Warn("peer directory load failed, starting empty", zap.Error(err))
	}
	radio.Feed(g.radio, g.events, func(ev radio.Event, err error) {
		g.stats.RadioDropped.Add(1)
		g.log.Warn("radio event dropped", zap.Stringer("kind", ev.Kind), zap.Stringer("peer", ev.Peer), zap.Error(err))
	})
	if err := g.radio.Start(ctx); err != nil {
		return fmt.Errorf("radio start: %w", err)
	}
	if err := g.radio.AddPeer(ident.Broadcast, nil, false); err != nil {
		return fmt.Errorf("add broadcast peer: %w", err)
	}
	for _, r := range g.dir.All() {
		encrypt := g.encrypt && r.Key != nil && g.radio.SupportsEncryption()
		if err := g.radio.AddPeer(r.ID, r.Key, encrypt); err != nil {
			g.log.Warn("re-add stored peer", zap.Stringer("mac", r.ID), zap.Error(err))
		}
	}
	if c, ok := g.host.(interface{ OnConnect(func()) }); ok {
		c.OnConnect(g.announce)
	}
	g.log.Info("gateway started", zap.Stringer("mac", g.self), zap.Int("peers", g.dir.Len()))
	return nil
}

// announce tells a newly attached controller who the gateway is.
func (g *Gateway) announce() {
	info := router.NewObject().SetString("type", router.TypeGatewayInfo).SetString("mac", g.self.String())
	b, err := info.Marshal()
	if err != nil {
		return
	}
	if err := g.router.DispatchToHost(string(b)); err != nil {
		g.log.Debug("gateway_info not sent", zap.Error(err))
	}
}

// Run starts the gateway and blocks until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}
	var wg sync.WaitGroup
	tasks := []func(context.Context){g.readHost, g.processLines, g.processRadio}
	if g.statsInt > 0 {
		tasks = append(tasks, func(ctx context.Context) { g.stats.report(ctx, g.statsInt, g.log) })
	}
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	g.log.Info("gateway stopped")
	return nil
}

// readHost polls while the host link is down and assembles lines while up.
// A partial line never carries over to the next controller session.
func (g *Gateway) readHost(ctx context.Context) {
	asm := lines.New(g.lineMax)
	var session uint64
	buf := make([]byte, hostReadBuf)
	for ctx.Err() == nil {
		if !g.host.Connected() {
			sleep(ctx, g.poll)
			continue
		}
		n, sess, err := g.readSession(buf)
		if sess != session {
			if p := asm.Pending(); p > 0 {
				g.log.Debug("partial host line discarded", zap.Int("bytes", p))
			}
			asm = lines.New(g.lineMax)
			session = sess
		}
		if err != nil {
			if errors.Is(err, hostlink.ErrClosed) {
				return
			}
			g.log.Warn("host read", zap.Error(err))
			sleep(ctx, g.poll)
			continue
		}
		dropped := asm.Dropped()
		for _, l := range asm.Feed(buf[:n]) {
			g.stats.HostLines.Add(1)
			if err := g.enqueueLine(l); err != nil {
				g.stats.HostDropped.Add(1)
				g.log.Warn("host line dropped", zap.Error(err), zap.String("line", l))
			}
		}
		if d := asm.Dropped() - dropped; d > 0 {
			g.stats.LineOverflow.Add(int64(d))
			g.log.Warn("host line too long, dropped", zap.Int("max", g.lineMax))
		}
	}
}

func (g *Gateway) readSession(buf []byte) (int, uint64, error) {
	if sr, ok := g.host.(hostlink.SessionReader); ok {
		return sr.ReadSession(buf, g.readTO)
	}
	n, err := g.host.ReadBytes(buf, g.readTO)
	return n, 0, err
}

func (g *Gateway) enqueueLine(l string) error {
	select {
	case g.lines <- l:
		return nil
	default:
		return ErrLineQueueFull
	}
}

func (g *Gateway) processLines(ctx context.Context) {
	for {
		select {
		case l := <-g.lines:
			g.log.Debug("host rx", zap.String("line", l))
			err := g.router.HandleHostLine(l)
			if err == nil {
				g.stats.Commands.Add(1)
				continue
			}
			g.stats.CommandErrors.Add(1)
			g.logDrop("host command dropped", err, zap.String("line", l))
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) processRadio(ctx context.Context) {
	for {
		ev, ok := g.events.Next(ctx)
		if !ok {
			return
		}
		switch ev.Kind {
		case radio.SendCompleted:
			if ev.OK {
				g.stats.RadioTxOK.Add(1)
			} else {
				g.stats.RadioTxFail.Add(1)
				g.log.Debug("radio send failed", zap.Stringer("to", ev.Peer))
			}
		case radio.Received:
			g.stats.RadioRx.Add(1)
			pkt, err := proto.Decode(ev.Data)
			if err != nil {
				g.stats.RadioBad.Add(1)
				g.logDrop("radio frame dropped", err, zap.Stringer("from", ev.Peer), zap.Int("len", len(ev.Data)))
				continue
			}
			if err := g.router.HandleRadioPayload(ev.Peer, pkt.Payload); err != nil && !errors.Is(err, router.ErrNotJSON) {
				g.logDrop("radio message not handled", err, zap.Stringer("from", ev.Peer))
			}
		}
	}
}

// logDrop logs a dropped unit of work at a level chosen by its cause.
func (g *Gateway) logDrop(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	switch {
	case errors.Is(err, router.ErrHostDisconnected):
		g.log.Debug(msg, fields...)
	case errors.Is(err, peers.ErrStorage):
		g.log.Error(msg, fields...)
	default:
		g.log.Warn(msg, fields...)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
