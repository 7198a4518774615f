package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/NamanBalaji/btcore/internal/client"
	"github.com/NamanBalaji/btcore/internal/config"
	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/internal/repository"
	"github.com/NamanBalaji/btcore/pkg/torrent"
	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
)

var errUsage = errors.New("wrong arguments, run btcore -h for usage")

type command func(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error

var commands = map[string]command{
	"decode":         decodeCmd,
	"info":           infoCmd,
	"peers":          peersCmd,
	"handshake":      handshakeCmd,
	"download_piece": downloadPieceCmd,
	"download":       downloadCmd,
	"create":         createCmd,
	"history":        historyCmd,
}

// newClient opens the history database and builds a client. The returned
// func releases the database. A history that cannot be opened disables
// recording instead of failing the command.
func newClient(cfg *config.Config) (*client.Client, func(), error) {
	var history repository.Repository

	repo, err := repository.NewBboltRepository(cfg.HistoryPath)
	if err != nil {
		logger.Warnf("Download history disabled: %v", err)
	} else {
		history = repo
	}

	c, err := client.New(cfg, history)
	if err != nil {
		if repo != nil {
			repo.Close()
		}
		return nil, nil, err
	}

	closeFn := func() {
		if repo == nil {
			return
		}
		if err := repo.Close(); err != nil {
			logger.Warnf("Failed to close history: %v", err)
		}
	}

	return c, closeFn, nil
}

func decodeCmd(_ context.Context, _ *config.Config, args []string, w io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}

	v, err := bencode.DecodeAll([]byte(args[0]))
	if err != nil {
		return err
	}

	out, err := json.Marshal(bencode.Native(v))
	if err != nil {
		return err
	}

	fmt.Fprintln(w, string(out))
	return nil
}

func infoCmd(ctx context.Context, _ *config.Config, args []string, w io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}

	mi, err := torrent.LoadMetainfo(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Tracker URL: %s\n", mi.Announce)
	fmt.Fprintf(w, "Length: %d\n", mi.Info.Length)
	fmt.Fprintf(w, "Info Hash: %s\n", mi.InfoHashHex())
	fmt.Fprintf(w, "Piece Length: %d\n", mi.Info.PieceLength)
	fmt.Fprintln(w, "Piece Hashes:")
	for _, h := range mi.PieceHashes() {
		fmt.Fprintln(w, hex.EncodeToString(h[:]))
	}

	return nil
}

func peersCmd(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}

	mi, err := torrent.LoadMetainfo(ctx, args[0])
	if err != nil {
		return err
	}

	c, err := client.New(cfg, nil)
	if err != nil {
		return err
	}

	peers, err := c.Peers(ctx, mi)
	if err != nil {
		return err
	}

	for _, p := range peers {
		fmt.Fprintln(w, p)
	}

	return nil
}

func handshakeCmd(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}

	mi, err := torrent.LoadMetainfo(ctx, args[0])
	if err != nil {
		return err
	}

	c, err := client.New(cfg, nil)
	if err != nil {
		return err
	}

	id, err := c.Handshake(ctx, mi, args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Peer ID: %s\n", hex.EncodeToString(id[:]))
	return nil
}

func downloadPieceCmd(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	flags := flag.NewFlagSet("download_piece", flag.ContinueOnError)
	out := flags.String("o", "", "Output file for the piece")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() != 2 {
		return errUsage
	}

	index, err := strconv.Atoi(flags.Arg(1))
	if err != nil {
		return fmt.Errorf("piece index %q: %w", flags.Arg(1), err)
	}

	mi, err := torrent.LoadMetainfo(ctx, flags.Arg(0))
	if err != nil {
		return err
	}

	if *out == "" {
		*out = filepath.Join(cfg.DownloadDir, fmt.Sprintf("%s.piece%d", mi.Info.Name, index))
	}

	c, closeFn, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.DownloadPiece(ctx, mi, index, *out); err != nil {
		return err
	}

	fmt.Fprintf(w, "Piece %d downloaded to %s.\n", index, *out)
	return nil
}

func downloadCmd(ctx context.Context, cfg *config.Config, args []string, w io.Writer) error {
	flags := flag.NewFlagSet("download", flag.ContinueOnError)
	out := flags.String("o", "", "Output file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() != 1 {
		return errUsage
	}

	mi, err := torrent.LoadMetainfo(ctx, flags.Arg(0))
	if err != nil {
		return err
	}

	if *out == "" {
		*out = filepath.Join(cfg.DownloadDir, mi.Info.Name)
	}

	c, closeFn, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Download(ctx, mi, *out); err != nil {
		return err
	}

	fmt.Fprintf(w, "Downloaded %s to %s.\n", flags.Arg(0), *out)
	return nil
}

func createCmd(_ context.Context, _ *config.Config, args []string, w io.Writer) error {
	flags := flag.NewFlagSet("create", flag.ContinueOnError)
	announce := flags.String("announce", "", "Tracker announce URL")
	pieceLength := flags.Int64("piece-length", metainfo.DefaultPieceLength, "Piece length in bytes")
	out := flags.String("o", "", "Output .torrent file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() != 1 || *announce == "" {
		return errUsage
	}

	path := flags.Arg(0)
	if *out == "" {
		*out = filepath.Base(path) + ".torrent"
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := metainfo.Create(f, filepath.Base(path), *announce, *pieceLength)
	if err != nil {
		return err
	}

	mi, err := metainfo.Parse(raw)
	if err != nil {
		return err
	}

	if err := os.WriteFile(*out, raw, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(w, "Created %s (info hash %s, %d pieces).\n", *out, mi.InfoHashHex(), mi.NumPieces())
	return nil
}

func historyCmd(_ context.Context, cfg *config.Config, args []string, w io.Writer) error {
	if len(args) != 0 {
		return errUsage
	}

	c, closeFn, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	records, err := c.History()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tNAME\tPIECE\tBYTES\tTOOK\tOUTPUT\tERROR")

	for _, rec := range records {
		piece := "all"
		if rec.Piece != repository.AllPieces {
			piece = strconv.Itoa(rec.Piece)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.StartedAt.Local().Format(time.DateTime), rec.Status, rec.Name, piece,
			rec.Length, rec.Duration().Round(time.Millisecond), rec.Output, rec.Error)
	}

	return tw.Flush()
}
