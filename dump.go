package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"prism-board/config"
	"prism-board/domain"
	"prism-board/storage"
)

func dumpCmd(configPath *string) *cobra.Command {
	var source, out string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the stored board document",
		Long: `Print the board document as stored, read directly from the remote
or the local cache. No store logic runs: the document is only decoded and
normalized.

Examples:
  prism-board dump
  prism-board dump --source cache --out board.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var b *domain.Board
			switch source {
			case "remote":
				b, err = readRemote(ctx, cfg, logger)
			case "cache":
				b, err = readCache(ctx, cfg)
			default:
				return fmt.Errorf("unknown source %q", source)
			}
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("no board stored in %s", source)
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeDocument(w, b)
		},
	}
	cmd.Flags().StringVar(&source, "source", "remote", "where to read from: remote or cache")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "give up after this long")
	return cmd
}

func readRemote(ctx context.Context, cfg *config.Config, logger *log.Logger) (*domain.Board, error) {
	remote, err := storage.OpenRemote(ctx, cfg.StorageRemote(), cfg.Board.ID, logger)
	if err != nil {
		return nil, err
	}
	defer remote.Close()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := remote.Subscribe(subCtx)
	if err != nil {
		return nil, err
	}
	select {
	case s, ok := <-ch:
		if !ok {
			return nil, errors.New("subscription closed before the first snapshot")
		}
		return s.Board, s.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func readCache(ctx context.Context, cfg *config.Config) (*domain.Board, error) {
	cache, err := storage.OpenCache(ctx, cfg.StorageCache())
	if err != nil {
		return nil, err
	}
	defer cache.Close()
	return cache.Load(ctx)
}

func writeDocument(w io.Writer, b *domain.Board) error {
	data, err := domain.MarshalDocument(b)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}
