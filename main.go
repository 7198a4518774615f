package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NamanBalaji/btcore/internal/config"
	"github.com/NamanBalaji/btcore/internal/errors"
	"github.com/NamanBalaji/btcore/internal/logger"
)

const usage = `usage: btcore [-config path] [-debug] <command> [arguments]

commands:
  decode <bencoded value>
  info <file.torrent|url>
  peers <file.torrent|url>
  handshake <file.torrent|url> <ip:port>
  download_piece [-o out] <file.torrent|url> <piece index>
  download [-o out] <file.torrent|url>
  create -announce <url> [-piece-length n] -o <out.torrent> <file>
  history
`

func main() {
	flags := flag.NewFlagSet("btcore", flag.ExitOnError)
	flags.Usage = func() { fmt.Fprint(flags.Output(), usage) }
	configPath := flags.String("config", "", "Path to the YAML configuration file (default "+config.Path()+")")
	debug := flags.Bool("debug", false, "Enable debug logging")
	flags.Parse(os.Args[1:])

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath == "" {
		cfg, err = config.GetConfig()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		log.Fatalf("Error loading config: %v\n", err)
	}

	cfg.Debug = cfg.Debug || *debug

	err = logger.InitLogging(cfg.Debug, cfg.LogPath)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, ok := commands[flags.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flags.Arg(0))
		flags.Usage()
		os.Exit(2)
	}

	if err := cmd(ctx, cfg, flags.Args()[1:], os.Stdout); err != nil {
		if cfg.LogPath != "" {
			logger.Errorf("%s failed (%s): %v", flags.Arg(0), errors.CategoryOf(err), err)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", flags.Arg(0), err)
		if errors.IsRetryable(err) {
			fmt.Fprintln(os.Stderr, "The failure looks temporary, running the command again may succeed.")
		}
		logger.Close()
		os.Exit(1)
	}
}
