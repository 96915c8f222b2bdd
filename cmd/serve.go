package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agchavez/interlace/internal/api"
	"github.com/agchavez/interlace/internal/api/handlers"
	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Start the browser facing HTTP API that proxies the claims workflow, exports and live notifications`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	checks := map[string]handlers.Pinger{
		"database": dbPinger{db: a.gormDB},
	}
	if a.cache.Enabled() {
		checks["redis"] = a.cache
	}

	server := api.NewServer(cfg, api.Dependencies{
		Context:       ctx,
		Sessions:      a.auth,
		Profile:       a.client,
		Claims:        a.claims,
		Notifications: a.notifications,
		Exports:       a.exports,
		Lookups:       a.client,
		Stream:        a.streamFunc(),
		Metrics:       a.metrics,
		HealthChecks:  checks,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

// streamFunc opens one upstream notification channel per browser connection
func (a *app) streamFunc() handlers.StreamFunc {
	return func(ts apiclient.TokenSource, store *notify.Store) (handlers.Runner, error) {
		listener, err := notify.NewListener(ts, store, notify.ListenerOptions{
			WSURL:       a.cfg.Upstream.WSURL,
			MaxInterval: a.cfg.Notifications.ReconnectMaxInterval,
			Metrics:     a.metrics,
		})
		if err != nil {
			return nil, err
		}
		return listener, nil
	}
}
