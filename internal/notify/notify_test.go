package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/models"
)

func mustApply(t *testing.T, s *Store, frame string) {
	t.Helper()
	env, err := DecodeEnvelope([]byte(frame))
	require.NoError(t, err)
	require.NoError(t, s.Apply(env))
}

func ids(list []models.Notification) []int {
	out := make([]int, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func TestStoreAppliesEveryShape(t *testing.T) {
	s := NewStore()

	mustApply(t, s, `{"type": "notifications", "data": [{"id": 1, "title": "a"}, {"id": 2, "title": "b"}]}`)
	assert.Equal(t, []int{1, 2}, ids(s.List()))

	mustApply(t, s, `{"type": "new_notification", "data": {"id": 3, "title": "c"}}`)
	assert.Equal(t, []int{1, 2, 3}, ids(s.List()))

	mustApply(t, s, `{"type": "notification_read", "data": {"id": 2}}`)
	assert.Equal(t, []int{1, 3}, ids(s.List()))

	mustApply(t, s, `{"type": "notification_read", "data": 1}`)
	assert.Equal(t, []int{3}, ids(s.List()))

	mustApply(t, s, `{"type": "notifications_read", "data": null}`)
	assert.Empty(t, s.List())
}

func TestStoreRejectsUnknownAndMalformed(t *testing.T) {
	s := NewStore()

	env, err := DecodeEnvelope([]byte(`{"type": "typing", "data": {}}`))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Apply(env), ErrUnknownEvent)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"data": []}`))
	assert.Error(t, err)

	env, err = DecodeEnvelope([]byte(`{"type": "notification_read", "data": {"id": "x"}}`))
	require.NoError(t, err)
	assert.Error(t, s.Apply(env))
}

func TestStoreAddReplacesDuplicates(t *testing.T) {
	s := NewStore()
	s.Add(models.Notification{ID: 1, Title: "old"})
	s.Add(models.Notification{ID: 1, Title: "new"})

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Title)
	assert.False(t, s.MarkRead(99))
}

func TestSubscribersReceiveEvents(t *testing.T) {
	s := NewStore()
	events, cancel := s.Subscribe(4)

	s.Add(models.Notification{ID: 1})
	s.MarkRead(1)

	ev := <-events
	assert.Equal(t, EventNew, ev.Type)
	assert.Equal(t, []int{1}, ids(ev.Notifications))

	ev = <-events
	assert.Equal(t, EventRead, ev.Type)
	assert.Equal(t, 1, ev.ID)
	assert.Empty(t, ev.Notifications)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)

	// publishing after cancel must not panic
	s.Clear()
}

func TestListenerSyncsStoreFromChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/notification/5/" || r.URL.Query().Get("token") != "tok en" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// the first connection drops right after the snapshot
		if atomic.AddInt32(&connections, 1) == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "notifications", "data": [{"id": 1}]}`))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "new_notification", "data": {"id": 2}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "notification_read", "data": {"id": 1}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := NewStore()
	m := metrics.NewMetrics()
	l, err := NewListener(apiclient.StaticToken{Access: "tok en", UserID: 5}, store, ListenerOptions{
		WSURL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		MaxInterval: 50 * time.Millisecond,
		Metrics:     m,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		list := store.List()
		return len(list) == 1 && list[0].ID == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}

	assert.GreaterOrEqual(t, m.Counter("notifications.reconnect"), int64(1))
	assert.EqualValues(t, 1, m.Counter("notifications.malformed"))
}

func TestChannelURL(t *testing.T) {
	l, err := NewListener(apiclient.StaticToken{}, NewStore(), ListenerOptions{WSURL: "wss://claims.example.com/"})
	require.NoError(t, err)
	assert.Equal(t,
		"wss://claims.example.com/ws/notification/9/?token=a%2Bb",
		l.ChannelURL(apiclient.Token{Access: "a+b", UserID: 9}))
}

func TestPollerReplacesSnapshot(t *testing.T) {
	store := NewStore()
	store.Add(models.Notification{ID: 99})

	calls := 0
	fetch := func(context.Context) ([]models.Notification, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("offline")
		}
		return []models.Notification{{ID: 1}, {ID: 2}}, nil
	}

	p, err := NewPoller(fetch, store, time.Minute)
	require.NoError(t, err)

	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, []int{1, 2}, ids(store.List()))

	require.Error(t, p.Poll(context.Background()))
	assert.Equal(t, []int{1, 2}, ids(store.List()))

	_, err = NewPoller(fetch, store, 0)
	assert.Error(t, err)
}
