package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/models"
)

// memoryCache is a QueryCache backed by a map
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(data, value)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func (m *memoryCache) DeleteMatching(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if ok, _ := path.Match(strings.ReplaceAll(pattern, "/", "|"), strings.ReplaceAll(k, "/", "|")); ok {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *memoryCache) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out
}

func newTestClient(t *testing.T, handler http.Handler, cache QueryCache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:  srv.URL,
		Cache:    cache,
		CacheTTL: time.Minute,
		Metrics:  metrics.NewMetrics(),
	})
	require.NoError(t, err)
	return c
}

var testToken = StaticToken{Access: "access-1", UserID: 5}

func TestGetClaimSendsBearerAndDecodesPhotos(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/claim/42/", r.URL.Path)
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": 42,
			"status": "EN_REVISION",
			"claim_type": "FALTANTE",
			"type": "CLAIM",
			"tracker": 7,
			"assigned_to": {"id": 5, "username": "ana"},
			"claim_products": [{"sap_code": "100", "product_name": "Agua", "quantity": 3, "batch": "L1"}],
			"photos_damaged_boxes": [{"id": 1, "name": "a.jpg", "file": "claims/a.jpg"}]
		}`)
	})
	c := newTestClient(t, handler, nil)

	claim, err := c.GetClaim(context.Background(), testToken, 42)
	require.NoError(t, err)
	require.Equal(t, 42, claim.ID)
	require.Equal(t, models.StatusInReview, claim.Status)
	require.Equal(t, "ana", claim.AssignedTo.Username)
	require.Len(t, claim.Products, 1)
	require.Len(t, claim.Attachments(models.CategoryDamagedBoxes), 1)
	require.Empty(t, claim.Attachments(models.CategoryContainerClosed))
}

func TestGetJSONUsesCache(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `{"count": 1, "results": [{"id": 1, "status": "PENDIENTE"}]}`)
	})
	cache := newMemoryCache()
	c := newTestClient(t, handler, cache)

	filter := models.ClaimFilter{Status: models.StatusPending, Limit: 10}
	for i := 0; i < 3; i++ {
		page, err := c.ListClaims(context.Background(), testToken, filter)
		require.NoError(t, err)
		require.Equal(t, 1, page.Count)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Equal(t, []string{"query:u5:/claim/?limit=10&status=PENDIENTE"}, cache.keys())
}

func TestMutationInvalidatesClaimQueries(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/claim/1/":
			io.WriteString(w, `{"id": 1, "status": "PENDIENTE"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/api/tracker/3/":
			io.WriteString(w, `{"id": 3}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/claim/1/change-state/":
			io.WriteString(w, `{"id": 1, "status": "EN_REVISION"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	cache := newMemoryCache()
	c := newTestClient(t, handler, cache)
	ctx := context.Background()

	_, err := c.GetClaim(ctx, testToken, 1)
	require.NoError(t, err)
	_, err = c.GetTracker(ctx, testToken, 3)
	require.NoError(t, err)
	require.Len(t, cache.keys(), 2)

	form := &Form{}
	form.Set("new_state", "EN_REVISION")
	claim, err := c.ChangeState(ctx, testToken, 1, form)
	require.NoError(t, err)
	require.Equal(t, models.StatusInReview, claim.Status)

	require.Equal(t, []string{"query:u5:/tracker/3/"}, cache.keys())
}

func TestChangeStateSendsMultipart(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/claim/42/change-state/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "APROBADO", r.FormValue("new_state"))
		require.Equal(t, "5", r.FormValue("changed_by_id"))
		require.Equal(t, "C-100", r.FormValue("new_claim_number"))

		f, hdr, err := r.FormFile("claim_file")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "claim.pdf", hdr.Filename)
		data, _ := io.ReadAll(f)
		require.Equal(t, "%PDF-1.4", string(data))

		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, handler, nil)

	form := &Form{}
	form.Set("new_state", "APROBADO")
	form.Set("changed_by_id", "5")
	form.Set("new_claim_number", "C-100")
	form.AddFile("claim_file", "claim.pdf", []byte("%PDF-1.4"))

	claim, err := c.ChangeState(context.Background(), testToken, 42, form)
	require.NoError(t, err)
	require.Nil(t, claim)
}

func TestStructuredErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{
			"new_claim_number": [{"message": "Claim number already used.", "code": "unique"}],
			"discard_doc": ["This field is required."],
			"observations": "Too short."
		}`)
	})
	c := newTestClient(t, handler, nil)

	_, err := c.ChangeState(context.Background(), testToken, 1, &Form{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.True(t, apiErr.Structured())
	require.Equal(t, []string{"discard_doc", "new_claim_number", "observations"}, apiErr.FieldNames())
	require.Equal(t, "unique", apiErr.Fields["new_claim_number"][0].Code)
	require.Equal(t, "Too short.", apiErr.Fields["observations"][0].Message)
}

func TestServerErrorAndNetworkError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<html>boom</html>")
	})
	c := newTestClient(t, handler, nil)

	_, err := c.GetClaim(context.Background(), testToken, 1)
	require.True(t, IsStatus(err, http.StatusInternalServerError))

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	offline, err := New(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = offline.GetClaim(context.Background(), testToken, 1)
	require.True(t, errors.Is(err, ErrNetwork))
}

func TestRequestsWithoutTokenSource(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), nil)
	_, err := c.GetClaim(context.Background(), nil, 1)
	require.True(t, errors.Is(err, ErrUnauthorized))
}

func TestListNotificationsAcceptsListAndPage(t *testing.T) {
	bodies := []string{
		`[{"id": 1, "title": "Nuevo reclamo"}]`,
		`{"count": 1, "results": [{"id": 1, "title": "Nuevo reclamo"}]}`,
	}
	for _, body := range bodies {
		body := body
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/notificacion/", r.URL.Path)
			io.WriteString(w, body)
		})
		c := newTestClient(t, handler, nil)

		list, err := c.ListNotifications(context.Background(), testToken)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "Nuevo reclamo", list[0].Title)
	}
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/refresh/", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, `{"access": "new-access"}`)
	})
	c := newTestClient(t, handler, nil)

	pair, err := c.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "new-access", pair.Access)
	require.Equal(t, "refresh-1", pair.Refresh)
}

func TestConcurrentQueriesShareOneRequest(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		io.WriteString(w, `{"id": 9, "status": "PENDIENTE"}`)
	})
	c := newTestClient(t, handler, nil)

	const callers = 5
	var wg sync.WaitGroup
	ids := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claim, err := c.GetClaim(context.Background(), testToken, 9)
			if err == nil {
				ids[i] = claim.ID
			}
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, id := range ids {
		require.Equal(t, 9, id)
	}
}

func TestCancelledCallerDoesNotFailSharedQuery(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		io.WriteString(w, `{"id": 5, "status": "EN_REVISION"}`)
	})
	c := newTestClient(t, handler, nil)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetClaim(leaderCtx, testToken, 5)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		claim *models.Claim
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		claim, err := c.GetClaim(context.Background(), testToken, 5)
		follower <- result{claim, err}
	}()
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared request")
	}

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	require.Equal(t, 5, res.claim.ID)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
