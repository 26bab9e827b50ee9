package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/signadot/go-mutate/remote"
	"github.com/signadot/go-mutate/remote/boltstore"
	"github.com/signadot/go-mutate/remote/wsremote"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		addr   string
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve a document store over websockets",
		Long: `Serve exposes a document store on a websocket endpoint. With --db the
store is durable on a bbolt file; without it documents live in memory
and vanish on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()

			var store remote.Store
			if dbPath != "" {
				bs, err := boltstore.Open(dbPath, log)
				if err != nil {
					return err
				}
				defer bs.Close()
				store = bs
			} else {
				ms := remote.NewInMemStore(log)
				defer ms.Close()
				store = ms
			}

			srv := &http.Server{
				Addr:    addr,
				Handler: wsremote.NewServer(store, log),
			}
			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.Info("serving", "addr", addr, "db", dbPath)

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8700", "listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "bbolt database file; empty serves from memory")
	return cmd
}
