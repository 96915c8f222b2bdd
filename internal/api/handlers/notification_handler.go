package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/api/middleware"
	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/notify"
	"github.com/agchavez/interlace/internal/services"
)

const (
	streamWriteWait = 10 * time.Second
	streamBuffer    = 32
)

// Runner keeps a store in sync until its context ends
type Runner interface {
	Run(ctx context.Context) error
}

// StreamFunc builds the upstream feed for one browser connection
type StreamFunc func(ts apiclient.TokenSource, store *notify.Store) (Runner, error)

// NotificationHandler handles the notification endpoints
type NotificationHandler struct {
	base          context.Context
	notifications *services.NotificationService
	stream        StreamFunc
	upgrader      websocket.Upgrader
}

// NewNotificationHandler creates a new notification handler. A nil stream
// serves the REST snapshot only. Open streams close when base is done.
func NewNotificationHandler(base context.Context, notifications *services.NotificationService, stream StreamFunc, origins []string) *NotificationHandler {
	return &NotificationHandler{
		base:          base,
		notifications: notifications,
		stream:        stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// HandleList returns the unread notifications
func (h *NotificationHandler) HandleList(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), middleware.TokenSource(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "results": list})
}

// HandleMarkRead acknowledges one notification
func (h *NotificationHandler) HandleMarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), middleware.TokenSource(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleStream upgrades to a websocket and forwards store events. Each
// connection owns a store seeded from the REST list and fed by its own
// upstream channel.
func (h *NotificationHandler) HandleStream(c *gin.Context) {
	ts := middleware.TokenSource(c)
	list, err := h.notifications.List(c.Request.Context(), ts)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Notification stream upgrade failed")
		return
	}
	defer conn.Close()

	store := notify.NewStore()
	store.Replace(list)
	events, unsubscribe := store.Subscribe(streamBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	if h.stream != nil {
		runner, err := h.stream(ts, store)
		if err != nil {
			log.Error().Err(err).Msg("Failed to start upstream notification feed")
		} else {
			go func() {
				if err := runner.Run(ctx); err != nil {
					log.Warn().Err(err).Msg("Upstream notification feed stopped")
				}
			}()
		}
	}

	// The browser only sends control frames; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, notify.Event{Type: notify.EventSnapshot, Notifications: list}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, ev); err != nil {
				log.Debug().Err(err).Msg("Notification stream closed")
				return
			}
		}
	}
}

func (h *NotificationHandler) write(conn *websocket.Conn, ev notify.Event) error {
	if ev.Type == notify.EventSnapshot && ev.Notifications == nil {
		ev.Notifications = []models.Notification{}
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}

// RegisterRoutes registers the handler's routes
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		notifications.GET("", h.HandleList)
		notifications.GET("/stream", h.HandleStream)
		notifications.POST("/:id/read", h.HandleMarkRead)
	}
}
