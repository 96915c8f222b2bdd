package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/notify"
)

// NotificationAPI is the part of the claims API that serves notifications
type NotificationAPI interface {
	ListNotifications(ctx context.Context, ts apiclient.TokenSource) ([]models.Notification, error)
	MarkRead(ctx context.Context, ts apiclient.TokenSource, id int) error
}

// NotificationService reads and acknowledges operator notifications
type NotificationService struct {
	api     NotificationAPI
	store   *notify.Store
	metrics *metrics.Metrics
}

// NewNotificationService creates a new notification service
func NewNotificationService(api NotificationAPI, store *notify.Store, m *metrics.Metrics) *NotificationService {
	if store == nil {
		store = notify.NewStore()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &NotificationService{api: api, store: store, metrics: m}
}

// Store returns the in-memory notification list
func (s *NotificationService) Store() *notify.Store {
	return s.store
}

// List fetches the unread list over REST and leaves the held snapshot alone
func (s *NotificationService) List(ctx context.Context, ts apiclient.TokenSource) ([]models.Notification, error) {
	list, err := s.api.ListNotifications(ctx, ts)
	s.metrics.Observe("notifications.sync", err)
	return list, err
}

// Sync fetches the unread list over REST and replaces the held snapshot
func (s *NotificationService) Sync(ctx context.Context, ts apiclient.TokenSource) ([]models.Notification, error) {
	list, err := s.List(ctx, ts)
	if err != nil {
		return nil, err
	}
	s.store.Replace(list)
	return s.store.List(), nil
}

// Fetcher adapts Sync's REST call for the poll fallback
func (s *NotificationService) Fetcher(ts apiclient.TokenSource) notify.FetchFunc {
	return func(ctx context.Context) ([]models.Notification, error) {
		return s.api.ListNotifications(ctx, ts)
	}
}

// MarkRead acknowledges a notification upstream and drops it locally
func (s *NotificationService) MarkRead(ctx context.Context, ts apiclient.TokenSource, id int) error {
	if err := s.api.MarkRead(ctx, ts, id); err != nil {
		s.metrics.RecordError("notifications.mark_read")
		return errors.Wrapf(err, "failed to mark notification %d as read", id)
	}
	s.metrics.RecordSuccess("notifications.mark_read")
	s.store.MarkRead(id)
	return nil
}

// MarkAllRead acknowledges every held notification. Notifications that
// failed stay in the store.
func (s *NotificationService) MarkAllRead(ctx context.Context, ts apiclient.TokenSource) (int, error) {
	held := s.store.List()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, n := range held {
		id := n.ID
		g.Go(func() error {
			return s.MarkRead(ctx, ts, id)
		})
	}
	err := g.Wait()

	done := len(held) - s.store.Len()
	log.Info().Int("marked", done).Int("remaining", s.store.Len()).Msg("Notifications marked as read")
	return done, err
}
