// nowgate gateway: bridges the radio air and the host controller link.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/config"
	"dev.c0redev.nowgate/internal/gateway"
	"dev.c0redev.nowgate/internal/hostlink"
	"dev.c0redev.nowgate/internal/ident"
	"dev.c0redev.nowgate/internal/logging"
	"dev.c0redev.nowgate/internal/radio"
	"dev.c0redev.nowgate/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default: nowgate.yaml search, NOWGATE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	self, err := ownMAC(cfg)
	if err != nil {
		return err
	}
	logger.Info("own identity", zap.Stringer("mac", self))

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	air, err := radio.NewAir(radio.AirConfig{
		Self:   self,
		Listen: cfg.Radio.Listen,
		Air:    cfg.Radio.Air,
		Logger: logger.Named("radio"),
	})
	if err != nil {
		return err
	}
	defer air.Close()

	host, err := hostlink.Open(hostlink.Options{
		Kind:    cfg.Host.Kind,
		Listen:  cfg.Host.Listen,
		CertDir: cfg.DataDir,
		Auth:    hostlink.Authorizer{Token: cfg.Host.Token, TokenHash: cfg.Host.TokenHash},
		Logger:  logger.Named("hostlink"),
	})
	if err != nil {
		return err
	}
	defer host.Close()

	gw, err := gateway.New(gateway.Options{
		Self:          self,
		PMK:           []byte(cfg.PMK),
		Encrypt:       cfg.Radio.Encrypt,
		Store:         db,
		PeersMax:      cfg.Peers.Max,
		Radio:         air,
		Host:          host,
		RadioQueue:    cfg.Queues.RadioEvents,
		LineQueue:     cfg.Queues.HostLines,
		LineMax:       cfg.Host.LineMax,
		ReadTimeout:   time.Duration(cfg.Host.ReadTimeoutMS) * time.Millisecond,
		Poll:          time.Duration(cfg.Host.PollMS) * time.Millisecond,
		StatsInterval: time.Duration(cfg.Stats.IntervalSec) * time.Second,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := gw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func ownMAC(cfg *config.Config) (ident.MAC, error) {
	if cfg.MAC != "" {
		return ident.Parse(cfg.MAC), nil
	}
	return ident.LoadOrCreate(cfg.DataDir, ident.OwnFile)
}
