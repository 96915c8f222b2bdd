package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agchavez/interlace/internal/notify"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Follow notifications for the signed in operator",
	Long: `Start the notification worker. It keeps a live channel to the claims API
open with reconnect backoff and polls the REST list on a schedule as a
fallback for missed events.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ts, err := a.current(ctx)
	if err != nil {
		return err
	}

	store := a.notifications.Store()
	listener, err := notify.NewListener(ts, store, notify.ListenerOptions{
		WSURL:       cfg.Upstream.WSURL,
		MaxInterval: cfg.Notifications.ReconnectMaxInterval,
		Metrics:     a.metrics,
	})
	if err != nil {
		return err
	}
	poller, err := notify.NewPoller(a.notifications.Fetcher(ts), store, cfg.Notifications.PollInterval)
	if err != nil {
		return err
	}

	events, cancel := store.Subscribe(16)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("url", cfg.Upstream.WSURL).Msg("Starting notification listener")
		return listener.Run(ctx)
	})

	g.Go(func() error {
		log.Info().Dur("interval", cfg.Notifications.PollInterval).Msg("Starting notification poll as fallback")
		if err := poller.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		log.Info().Msg("Shutting down notification poll")
		return poller.Shutdown()
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				logEvent(ev)
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
		return err
	}
	log.Info().Msg("Worker stopped")
	return nil
}

func logEvent(ev notify.Event) {
	switch ev.Type {
	case notify.EventNew:
		if ev.Notification == nil {
			return
		}
		log.Info().
			Int("id", ev.Notification.ID).
			Str("module", ev.Notification.Module).
			Str("title", ev.Notification.Title).
			Int("unread", len(ev.Notifications)).
			Msg("Notification received")
	case notify.EventRead:
		log.Debug().Int("id", ev.ID).Int("unread", len(ev.Notifications)).Msg("Notification read")
	default:
		log.Debug().Str("type", string(ev.Type)).Int("unread", len(ev.Notifications)).Msg("Notifications updated")
	}
}
