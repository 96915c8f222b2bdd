package notify

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/models"
)

// FetchFunc loads the current unread notifications over REST
type FetchFunc func(ctx context.Context) ([]models.Notification, error)

// Poller refreshes the store on a schedule in case live events were missed
type Poller struct {
	fetch     FetchFunc
	store     *Store
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewPoller creates a poller. Start must be called to schedule it.
func NewPoller(fetch FetchFunc, store *Store, interval time.Duration) (*Poller, error) {
	if interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	return &Poller{
		fetch:     fetch,
		store:     store,
		interval:  interval,
		scheduler: scheduler,
	}, nil
}

// Poll fetches the list once and replaces the store contents
func (p *Poller) Poll(ctx context.Context) error {
	list, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	p.store.Replace(list)
	return nil
}

// Start schedules the poll job, running it once right away
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(func() {
			if err := p.Poll(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to poll notifications")
				return
			}
			log.Debug().Int("unread", p.store.Len()).Msg("Notifications polled")
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrap(err, "failed to schedule notification poll")
	}
	p.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler
func (p *Poller) Shutdown() error {
	return p.scheduler.Shutdown()
}
