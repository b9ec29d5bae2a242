// nowgate node: field-node simulator on the UDP air. Registers with the
// gateway, answers config requests, applies set_config and sends each JSON
// line typed on stdin to the gateway.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/config"
	"dev.c0redev.nowgate/internal/crypto"
	"dev.c0redev.nowgate/internal/ident"
	"dev.c0redev.nowgate/internal/lines"
	"dev.c0redev.nowgate/internal/logging"
	"dev.c0redev.nowgate/internal/proto"
	"dev.c0redev.nowgate/internal/radio"
	"dev.c0redev.nowgate/internal/router"
)

type node struct {
	self    ident.MAC
	pmk     []byte
	encrypt bool
	air     *radio.Air
	log     *zap.Logger

	seq     uint16
	gateway ident.MAC
	cfg     json.RawMessage
	started time.Time
}

func main() {
	macFlag := flag.String("mac", "", "own mac (default random)")
	listen := flag.String("listen", "239.77.0.1:4747", "air listen addr (multicast group or unicast)")
	airFlag := flag.String("air", "", "extra air destinations, comma separated")
	pmk := flag.String("pmk", "pmk1234567890123", "pre-shared key")
	encrypt := flag.Bool("encrypt", true, "encrypt unicast to the gateway")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	logger, err := logging.Setup(config.LogConfig{Level: *level, Format: "console", Outputs: []string{"stderr"}})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	self := ident.Parse(*macFlag)
	if self.IsZero() {
		if self, err = ident.Random(); err != nil {
			log.Fatal(err)
		}
	}
	var dests []string
	for _, s := range strings.Split(*airFlag, ",") {
		if s = strings.TrimSpace(s); s != "" {
			dests = append(dests, s)
		}
	}
	air, err := radio.NewAir(radio.AirConfig{Self: self, Listen: *listen, Air: dests, Logger: logger.Named("radio")})
	if err != nil {
		logger.Fatal("air", zap.Error(err))
	}
	defer air.Close()

	n := &node{
		self:    self,
		pmk:     []byte(*pmk),
		encrypt: *encrypt,
		air:     air,
		log:     logger.Named("node"),
		cfg:     json.RawMessage(`{}`),
		started: time.Now(),
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := n.run(ctx); err != nil {
		logger.Fatal("node", zap.Error(err))
	}
}

func (n *node) run(ctx context.Context) error {
	events := radio.NewPipeline(radio.DefaultQueueSize)
	radio.Feed(n.air, events, func(ev radio.Event, err error) {
		n.log.Warn("event dropped", zap.Stringer("kind", ev.Kind), zap.Error(err))
	})
	if err := n.air.Start(ctx); err != nil {
		return err
	}
	if err := n.air.AddPeer(ident.Broadcast, nil, false); err != nil {
		return err
	}
	n.log.Info("node up", zap.Stringer("mac", n.self))

	input := lines.Lines(ctx, os.Stdin, lines.DefaultMax)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	n.register()

	for {
		// one loop owns all node state; events are polled between the other sources
		evCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		ev, ok := events.Next(evCtx)
		cancel()
		if ok && ev.Kind == radio.Received {
			n.handle(ev.Peer, ev.Data)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n.gateway.IsZero() {
				n.register()
			}
		case l, open := <-input:
			if !open {
				input = nil
				continue
			}
			n.sendLine(l)
		default:
		}
	}
}

func (n *node) register() {
	obj := router.NewObject().SetString("type", router.TypeRegister)
	n.send(ident.Broadcast, obj)
}

func (n *node) handle(from ident.MAC, data []byte) {
	pkt, err := proto.Decode(data)
	if err != nil {
		n.log.Debug("bad packet", zap.Stringer("from", from), zap.Error(err))
		return
	}
	obj, err := router.ParseObject(pkt.Payload)
	if err != nil {
		n.log.Info("non-JSON payload", zap.Stringer("from", from), zap.ByteString("payload", pkt.Payload))
		return
	}
	typ, _ := obj.String("type")
	switch typ {
	case router.TypeRegisterAck:
		gw := ident.Parse(mustString(obj, "mac"))
		if gw.IsZero() || gw != from || gw == n.gateway {
			return
		}
		key, err := crypto.DeriveKey(n.pmk, n.self)
		if err != nil {
			n.log.Error("link key", zap.Error(err))
			return
		}
		if err := n.air.AddPeer(gw, key, n.encrypt); err != nil {
			n.log.Error("add gateway peer", zap.Error(err))
			return
		}
		n.gateway = gw
		n.log.Info("registered", zap.Stringer("gateway", gw))
	case router.TypeConfigRequest:
		reply := router.NewObject().SetString("type", "config").SetString("mac", n.self.String()).SetRaw("configurations", n.cfg)
		if err := reply.Set("uptime_s", int64(time.Since(n.started).Seconds())); err != nil {
			n.log.Warn("uptime", zap.Error(err))
		}
		n.send(from, reply)
	case router.TypeSetConfig:
		cfg, ok := obj.Raw("configurations")
		if !ok {
			return
		}
		n.cfg = cfg
		n.log.Info("config applied", zap.ByteString("configurations", cfg))
		ack := router.NewObject().SetString("type", router.TypeSetConfig).SetString("mac", n.self.String()).SetRaw("configurations", cfg)
		n.send(from, ack)
	default:
		n.log.Info("payload", zap.Stringer("from", from), zap.ByteString("json", pkt.Payload))
	}
}

func (n *node) sendLine(l string) {
	if n.gateway.IsZero() {
		n.log.Warn("not registered yet, line dropped")
		return
	}
	obj, err := router.ParseObject([]byte(l))
	if err != nil {
		n.log.Warn("stdin line is not a JSON object", zap.String("line", l))
		return
	}
	n.send(n.gateway, obj)
}

func (n *node) send(to ident.MAC, obj router.Object) {
	b, err := obj.Marshal()
	if err != nil {
		return
	}
	kind := proto.KindUnicast
	if to.IsBroadcast() {
		kind = proto.KindBroadcast
	}
	n.seq++
	pkt := proto.EncodePacket(&proto.Packet{Kind: kind, Seq: n.seq, Token: rand.Uint32(), Payload: b})
	if err := n.air.Send(to, pkt); err != nil {
		n.log.Warn("send", zap.Stringer("to", to), zap.Error(err))
	}
}

func mustString(o router.Object, name string) string {
	s, _ := o.String(name)
	return s
}
