package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agchavez/interlace/config"
	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/auth"
	"github.com/agchavez/interlace/internal/cache"
	"github.com/agchavez/interlace/internal/database"
	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/repositories"
	"github.com/agchavez/interlace/internal/services"
)

// app holds the dependencies shared by every command
type app struct {
	cfg      config.Config
	db       database.DB
	gormDB   *gorm.DB
	cache    *cache.RedisCache
	metrics  *metrics.Metrics
	client   *apiclient.Client
	sessions *repositories.SessionRepository
	auth     *auth.Manager

	claims        *services.ClaimService
	notifications *services.NotificationService
	exports       *services.ExportService
}

// newApp opens the session store, the query cache and the claims API client
func newApp(cfg config.Config) (*app, error) {
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate session store")
	}
	gormDB, err := db.DB()
	if err != nil {
		db.Close()
		return nil, err
	}

	m := metrics.NewMetrics()

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache, _ = cache.NewRedisCache(config.RedisConfig{})
	}

	opts := apiclient.Options{
		BaseURL: cfg.Upstream.APIURL,
		Timeout: cfg.Upstream.Timeout,
		Metrics: m,
	}
	if redisCache.Enabled() {
		opts.Cache = redisCache
		opts.CacheTTL = cfg.Redis.TTL
	}
	client, err := apiclient.New(opts)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessions := repositories.NewSessionRepository(gormDB)

	return &app{
		cfg:           cfg,
		db:            db,
		gormDB:        gormDB,
		cache:         redisCache,
		metrics:       m,
		client:        client,
		sessions:      sessions,
		auth:          auth.NewManager(sessions, client),
		claims:        services.NewClaimService(client, m),
		notifications: services.NewNotificationService(client, nil, m),
		exports:       services.NewExportService(client, m),
	}, nil
}

// Close releases the store and cache connections
func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis cache")
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close session store")
	}
}

// current returns the credentials of the signed in operator
func (a *app) current(ctx context.Context) (apiclient.TokenSource, error) {
	ts, session, err := a.auth.Current(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("username", session.Username).Msg("Acting as stored session")
	return ts, nil
}

// withApp runs fn with a ready app
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(context.Background(), a)
}

// reportError prints the operator facing messages of err. Local failures
// with no operator message print the error itself.
func reportError(err error) {
	msgs := services.UserMessages(err)
	if len(msgs) == 1 && msgs[0] == services.MessageGeneric {
		msgs = []string{err.Error()}
	}
	for _, msg := range msgs {
		fmt.Fprintln(os.Stderr, "error: "+strings.TrimSpace(msg))
	}
	log.Debug().Err(err).Msg("Command failed")
}

// dbPinger checks the session store for the health endpoint
type dbPinger struct {
	db *gorm.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
