package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/metrics"
)

// ListenerOptions configures a Listener
type ListenerOptions struct {
	// WSURL is the websocket root, e.g. ws://host:8000
	WSURL string
	// MaxInterval caps the reconnect backoff
	MaxInterval time.Duration
	Metrics     *metrics.Metrics
	Dialer      *websocket.Dialer
}

// Listener keeps a Store in sync with the live notification channel
type Listener struct {
	wsURL       string
	tokens      apiclient.TokenSource
	store       *Store
	dialer      *websocket.Dialer
	maxInterval time.Duration
	metrics     *metrics.Metrics
}

// NewListener creates a listener for the operator behind tokens
func NewListener(tokens apiclient.TokenSource, store *Store, opts ListenerOptions) (*Listener, error) {
	if opts.WSURL == "" {
		return nil, errors.New("websocket URL is required")
	}
	if _, err := url.Parse(opts.WSURL); err != nil {
		return nil, errors.Wrap(err, "invalid websocket URL")
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	maxInterval := opts.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics()
	}

	return &Listener{
		wsURL:       strings.TrimRight(opts.WSURL, "/"),
		tokens:      tokens,
		store:       store,
		dialer:      dialer,
		maxInterval: maxInterval,
		metrics:     m,
	}, nil
}

// ChannelURL returns the websocket endpoint for a token
func (l *Listener) ChannelURL(tok apiclient.Token) string {
	return fmt.Sprintf("%s/ws/notification/%d/?token=%s", l.wsURL, tok.UserID, url.QueryEscape(tok.Access))
}

// Run connects and reconnects until ctx is done
func (l *Listener) Run(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.MaxInterval = l.maxInterval
	eb.MaxElapsedTime = 0

	op := func() error {
		err := l.session(ctx, eb.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		l.metrics.IncrementCounter("notifications.reconnect")
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Notification channel lost, reconnecting")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// session runs one connection until it fails. connected is called once the
// handshake succeeds.
func (l *Listener) session(ctx context.Context, connected func()) error {
	tok, err := l.tokens.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get access token")
	}

	conn, _, err := l.dialer.DialContext(ctx, l.ChannelURL(tok), nil)
	if err != nil {
		l.metrics.SetHealth("notifications", false)
		return errors.Wrap(err, "failed to dial notification channel")
	}
	defer conn.Close()

	connected()
	l.metrics.SetHealth("notifications", true)
	log.Info().Int("user_id", tok.UserID).Msg("Notification channel connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			l.metrics.SetHealth("notifications", false)
			return errors.Wrap(err, "notification channel read failed")
		}
		l.handle(frame)
	}
}

func (l *Listener) handle(frame []byte) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		l.metrics.IncrementCounter("notifications.malformed")
		log.Warn().Err(err).Msg("Ignoring malformed notification frame")
		return
	}
	if err := l.store.Apply(env); err != nil {
		l.metrics.IncrementCounter("notifications.malformed")
		log.Warn().Err(err).Str("type", string(env.Type)).Msg("Ignoring notification event")
		return
	}
	l.metrics.IncrementCounter("notifications." + string(env.Type))
	log.Debug().Str("type", string(env.Type)).Int("unread", l.store.Len()).Msg("Notification event applied")
}
