// nowgate peers: list or erase the gateway's stored peer directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/config"
	"dev.c0redev.nowgate/internal/crypto"
	"dev.c0redev.nowgate/internal/logging"
	"dev.c0redev.nowgate/internal/peers"
	"dev.c0redev.nowgate/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "config file")
	erase := flag.Bool("erase", false, "erase all stored peers")
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

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open store", zap.String("path", cfg.Store.Path), zap.Error(err))
	}
	defer db.Close()

	dir := peers.New(db, cfg.Peers.Max, crypto.KeyFunc([]byte(cfg.PMK)), logger.Named("peers"))
	if *erase {
		if err := dir.EraseAll(); err != nil {
			logger.Error("erase", zap.Error(err))
			os.Exit(1)
		}
		fmt.Println("all peers erased")
		return
	}
	if err := dir.Load(); err != nil {
		logger.Error("load", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("%d/%d peers in %s\n", dir.Len(), dir.Capacity(), cfg.Store.Path)
	for i, r := range dir.All() {
		fmt.Printf("%d\t%s\tkey %x...\n", i+1, r.ID, r.Key[:4])
	}
}
