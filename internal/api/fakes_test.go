package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/repositories"
)

// fakeSessions keeps sessions in memory
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	loginErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[uuid.UUID]*models.Session{}}
}

func (f *fakeSessions) add(userID int) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.sessions[id] = &models.Session{ID: id, UserID: userID, Username: "operator" + strconv.Itoa(userID)}
	return id
}

func (f *fakeSessions) Login(_ context.Context, creds models.Credentials) (*models.Session, *models.User, error) {
	if f.loginErr != nil {
		return nil, nil, f.loginErr
	}
	id := f.add(5)
	return f.sessions[id], &models.User{ID: 5, Username: creds.Username}, nil
}

func (f *fakeSessions) Logout(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) Session(_ context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, repositories.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Source(id uuid.UUID) apiclient.TokenSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID := 0
	if s, ok := f.sessions[id]; ok {
		userID = s.UserID
	}
	return apiclient.StaticToken{Access: "access-" + id.String(), UserID: userID}
}

// fakeClaimsAPI is an in-memory claims backend
type fakeClaimsAPI struct {
	mu        sync.Mutex
	claims    map[int]*models.Claim
	files     map[string][]byte
	changeErr error
	changes   []*apiclient.Form
	updates   []*apiclient.Form
	nextID    int
}

func newFakeClaimsAPI(claims ...models.Claim) *fakeClaimsAPI {
	f := &fakeClaimsAPI{claims: map[int]*models.Claim{}, files: map[string][]byte{}, nextID: 100}
	for i := range claims {
		c := claims[i]
		f.claims[c.ID] = &c
	}
	return f
}

func notFound() error {
	return &apiclient.APIError{StatusCode: http.StatusNotFound, Detail: "Not found."}
}

func (f *fakeClaimsAPI) ListClaims(_ context.Context, _ apiclient.TokenSource, filter models.ClaimFilter) (*models.Page[models.Claim], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []models.Claim
	for _, c := range f.claims {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	page := &models.Page[models.Claim]{Count: len(all)}
	start := min(filter.Offset, len(all))
	end := len(all)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(all))
	}
	page.Results = all[start:end]
	if end < len(all) {
		next := "more"
		page.Next = &next
	}
	return page, nil
}

func (f *fakeClaimsAPI) GetClaim(_ context.Context, _ apiclient.TokenSource, id int) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[id]
	if !ok {
		return nil, notFound()
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClaimsAPI) RefreshClaim(ctx context.Context, ts apiclient.TokenSource, id int) (*models.Claim, error) {
	return f.GetClaim(ctx, ts, id)
}

func (f *fakeClaimsAPI) CreateClaim(_ context.Context, _ apiclient.TokenSource, in models.CreateClaimInput) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &models.Claim{
		ID:        f.nextID,
		ClaimType: in.ClaimType,
		Type:      in.Type,
		Status:    models.StatusPending,
		Tracker:   in.Tracker,
		Products:  in.Products,
	}
	f.claims[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeClaimsAPI) ChangeState(_ context.Context, _ apiclient.TokenSource, id int, form *apiclient.Form) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, form)
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	c, ok := f.claims[id]
	if !ok {
		return nil, notFound()
	}
	state, _ := form.Value("new_state")
	c.Status = models.ClaimStatus(state)
	if number, ok := form.Value("new_claim_number"); ok {
		c.ClaimNumber = number
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClaimsAPI) UpdateClaim(_ context.Context, _ apiclient.TokenSource, id int, form *apiclient.Form) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, form)
	c, ok := f.claims[id]
	if !ok {
		return nil, notFound()
	}
	if desc, ok := form.Value("description"); ok {
		c.Description = desc
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClaimsAPI) DownloadFile(_ context.Context, _ apiclient.TokenSource, _ int, filename string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[filename]
	if !ok {
		return nil, "", notFound()
	}
	return data, "application/pdf", nil
}

func (f *fakeClaimsAPI) changeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.changes)
}

// fakeNotificationAPI serves a fixed unread list
type fakeNotificationAPI struct {
	mu   sync.Mutex
	list []models.Notification
	read []int
}

func (f *fakeNotificationAPI) ListNotifications(context.Context, apiclient.TokenSource) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.list...), nil
}

func (f *fakeNotificationAPI) MarkRead(_ context.Context, _ apiclient.TokenSource, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.list {
		if n.ID == id {
			f.read = append(f.read, id)
			return nil
		}
	}
	return notFound()
}

// fakeLookups serves the dashboard, trackers and profile
type fakeLookups struct{}

func (fakeLookups) Dashboard(context.Context, apiclient.TokenSource, models.DashboardFilter) (*models.Dashboard, error) {
	return &models.Dashboard{TotalClaims: 3, ByStatus: map[string]int{"PENDIENTE": 2, "APROBADO": 1}}, nil
}

func (fakeLookups) ListTrackers(_ context.Context, _ apiclient.TokenSource, search string, _, _ int) (*models.Page[models.Tracker], error) {
	return &models.Page[models.Tracker]{Count: 1, Results: []models.Tracker{{ID: 7, TrackingCode: search}}}, nil
}

func (fakeLookups) GetTracker(_ context.Context, _ apiclient.TokenSource, id int) (*models.Tracker, error) {
	if id != 7 {
		return nil, notFound()
	}
	return &models.Tracker{ID: 7, TrackingCode: "TRK-7"}, nil
}

func (fakeLookups) Me(ctx context.Context, ts apiclient.TokenSource) (*models.User, error) {
	tok, err := ts.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &models.User{ID: tok.UserID, Username: "ana"}, nil
}
