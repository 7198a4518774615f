package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/pkg/torrent"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/seed"
	"github.com/NamanBalaji/btcore/pkg/torrent/storage"
)

// Development seeder: serves one complete file to leechers on addr so the
// client can be exercised without a public swarm.
func main() {
	torrentPath := flag.String("torrent", "", "Path or URL of the .torrent to seed")
	filePath := flag.String("file", "", "Complete file described by the torrent")
	addr := flag.String("addr", "127.0.0.1:6881", "Listen address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *torrentPath == "" || *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := logger.InitLogging(*debug, ""); err != nil {
		log.Fatalf("Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mi, err := torrent.LoadMetainfo(ctx, *torrentPath)
	if err != nil {
		log.Fatalf("Error loading torrent: %v\n", err)
	}

	store, err := storage.OpenFile(*filePath)
	if err != nil {
		log.Fatalf("Error opening %s: %v\n", *filePath, err)
	}
	defer store.Close()

	if store.Len() != mi.Info.Length {
		log.Fatalf("%s is %d bytes, torrent describes %d\n", *filePath, store.Len(), mi.Info.Length)
	}

	have := peer.NewBitfield(mi.NumPieces())
	for i := range mi.NumPieces() {
		ok, err := storage.VerifyPiece(store, mi, i)
		if err != nil {
			log.Fatalf("Error verifying piece %d: %v\n", i, err)
		}
		if ok {
			have.Set(i)
		} else {
			logger.Warnf("piece %d does not match its hash, not advertising it", i)
		}
	}

	id, err := peer.NewID("-BS0001-")
	if err != nil {
		log.Fatalf("Error generating peer id: %v\n", err)
	}

	l, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("Error listening on %s: %v\n", *addr, err)
	}

	s := seed.New(mi, store, id, peer.Options{})
	s.Advertise(have)

	fmt.Printf("Seeding %s (%s, %d/%d pieces) on %s\n",
		mi.Info.Name, mi.InfoHashHex(), have.Count(mi.NumPieces()), mi.NumPieces(), l.Addr())

	if err := s.Serve(ctx, l); err != nil {
		logger.Errorf("Serve: %v", err)
	}

	logger.Infof("Seeder stopped.")
}
