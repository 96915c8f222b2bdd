package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/notify"
)

var readAll bool

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "List, acknowledge and follow notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unread notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			ts, err := a.current(ctx)
			if err != nil {
				return err
			}
			list, err := a.notifications.Sync(ctx, ts)
			if err != nil {
				return err
			}
			return printNotifications(cmd.OutOrStdout(), list)
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark a notification, or all of them, as read",
	Args: func(cmd *cobra.Command, args []string) error {
		if readAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			ts, err := a.current(ctx)
			if err != nil {
				return err
			}

			if !readAll {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Errorf("invalid notification id %q", args[0])
				}
				if err := a.notifications.MarkRead(ctx, ts, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notification %d marked as read\n", id)
				return nil
			}

			if _, err := a.notifications.Sync(ctx, ts); err != nil {
				return err
			}
			n, err := a.notifications.MarkAllRead(ctx, ts)
			fmt.Fprintf(cmd.OutOrStdout(), "%d notifications marked as read\n", n)
			return err
		})
	},
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print notifications as they arrive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		events, cancel := store.Subscribe(16)
		defer cancel()

		if _, err := a.notifications.Sync(ctx, ts); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return listener.Run(ctx)
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
					if err := printEvent(out, ev); err != nil {
						return err
					}
				}
			}
		})
		return g.Wait()
	},
}

func init() {
	notificationsReadCmd.Flags().BoolVar(&readAll, "all", false, "mark every unread notification as read")

	notificationsCmd.AddCommand(notificationsListCmd, notificationsReadCmd, notificationsWatchCmd)
	rootCmd.AddCommand(notificationsCmd)
}

func printNotifications(w io.Writer, list []models.Notification) error {
	if jsonOutput {
		return printJSON(w, list)
	}
	rows := make([][]string, 0, len(list))
	for _, n := range list {
		rows = append(rows, []string{
			strconv.Itoa(n.ID),
			n.CreatedAt.Local().Format("2006-01-02 15:04"),
			n.Module,
			n.Title,
			n.Subtitle,
		})
	}
	return printTable(w, []string{"ID", "DATE", "MODULE", "TITLE", "SUBTITLE"}, rows)
}

func printEvent(w io.Writer, ev notify.Event) error {
	if jsonOutput {
		return printJSON(w, ev)
	}
	var err error
	switch ev.Type {
	case notify.EventNew:
		if ev.Notification != nil {
			n := ev.Notification
			_, err = fmt.Fprintf(w, "[%s] #%d %s: %s (%d unread)\n", n.Module, n.ID, n.Title, n.Description, len(ev.Notifications))
		}
	case notify.EventRead:
		_, err = fmt.Fprintf(w, "#%d read (%d unread)\n", ev.ID, len(ev.Notifications))
	default:
		_, err = fmt.Fprintf(w, "%d unread\n", len(ev.Notifications))
	}
	return err
}
