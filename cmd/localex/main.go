package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"localex/internal/config"
	"localex/internal/logger"
	"localex/internal/pairing"

	"github.com/cespare/xxhash"
)

func main() {
	fs := flag.NewFlagSet("localex", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), config.Usage())
	}

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		exit("Error: %v\n", err)
	}

	log := logger.New(cfg.Level)

	manager, err := pairing.New(pairing.DefaultConfig(), log)
	if err != nil {
		exit("Failed to set up pairing: %v\n", err)
	}
	announcer, listener, err := manager.Split()
	if err != nil {
		exit("Failed to split pairing manager: %v\n", err)
	}
	defer announcer.Close()
	defer listener.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	peers := pairing.NewPeerQueue(cfg.QueueSize, cfg.Policy)

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- listener.RunQueue(ctx, peers)
	}()

	go consumePeers(ctx, peers, log.With("peers"))
	go announce(ctx, announcer, cfg.AnnounceInterval, log)

	select {
	case err = <-listenDone:
	case <-ctx.Done():
		log.Info("shutting down")
		listener.Stop()
		err = <-listenDone
	}
	cancel()

	if err != nil {
		log.Error("pairing listener failed: %v", err)
		announcer.Close()
		listener.Close()
		os.Exit(1)
	}
}

// announce probes once, then every interval if it is positive.
func announce(ctx context.Context, a *pairing.Announcer, interval time.Duration, log *logger.Logger) {
	if err := a.Announce(); err != nil {
		log.Warn("failed to announce: %v", err)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Announce(); err != nil {
				log.Warn("failed to announce: %v", err)
			}
		}
	}
}

// consumePeers stands in for the pairing decision logic. It only reports the
// first sighting of each peer address.
func consumePeers(ctx context.Context, q *pairing.PeerQueue, log *logger.Logger) {
	seen := make(map[uint64]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case addr := <-q.C():
			key := fingerprint(addr)
			if _, ok := seen[key]; ok {
				log.Debug("peer %s seen again", addr)
				continue
			}
			seen[key] = struct{}{}
			log.Info("new peer %s (%d known)", addr, len(seen))
		}
	}
}

func fingerprint(addr *net.UDPAddr) uint64 {
	return xxhash.Sum64String(addr.String())
}

func exit(msg string, a ...any) {
	fmt.Fprintf(os.Stderr, msg, a...)
	os.Exit(1)
}
