package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/arkhan2/invoicing-system-sub001/internal/auth"
	"github.com/arkhan2/invoicing-system-sub001/internal/observability"
	"github.com/arkhan2/invoicing-system-sub001/internal/platform/httpx"
	"github.com/arkhan2/invoicing-system-sub001/internal/shared"
)

const testCookie = "invoicing_session"

type memoryAuthRepo struct {
	mu        sync.Mutex
	users     map[string]*auth.User
	companies map[int64]auth.Company
	sessions  map[string]int64
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{users: map[string]*auth.User{}, companies: map[int64]auth.Company{}, sessions: map[string]int64{}}
}

func (m *memoryAuthRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryAuthRepo) Profile(_ context.Context, userID int64) (auth.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			return auth.Profile{User: *u, Company: m.companies[u.CompanyID]}, nil
		}
	}
	return auth.Profile{}, shared.ErrNotFound
}

func (m *memoryAuthRepo) CreateCompanyWithUser(_ context.Context, name string, user *auth.User) (auth.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return auth.Company{}, auth.ErrEmailTaken
	}
	company := auth.Company{ID: int64(len(m.companies) + 1), Name: name, CreatedAt: time.Now()}
	m.companies[company.ID] = company
	user.ID = int64(len(m.users) + 100)
	user.CompanyID = company.ID
	user.IsActive = true
	cp := *user
	m.users[user.Email] = &cp
	return company, nil
}

func (m *memoryAuthRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = userID
	return nil
}

func (m *memoryAuthRepo) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// whoami echoes the identity so tests can see tenant scoping.
type whoami struct{}

func (whoami) MountRoutes(r chi.Router) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		id, err := shared.RequireIdentity(r.Context())
		if err != nil {
			httpx.RespondError(w, nil, err)
			return
		}
		httpx.JSON(w, http.StatusOK, id)
	}
	r.Get("/whoami", handler)
	r.Post("/whoami", handler)
}

type testServer struct {
	handler http.Handler
	redis   *miniredis.Miniredis
	repo    *memoryAuthRepo
	cookies []*http.Cookie
	token   string
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", RateLimitPerMin: 1000, AppRequestTimeout: 5 * time.Second}
	sessions := shared.NewSessionManager(client, testCookie, time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	repo := newMemoryAuthRepo()
	authService := auth.NewService(repo, nil).WithCost(bcrypt.MinCost)

	handler := NewRouter(RouterParams{
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Metrics:        observability.NewMetrics(),
		AuthHandler:    auth.NewHandler(nil, authService, sessions, csrf),
		Handlers:       []RouteMounter{whoami{}},
		HealthChecks:   checks,
	})
	return &testServer{handler: handler, redis: mr, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	if s.token != "" {
		req.Header.Set(shared.CSRFHeader, s.token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	if set := rr.Result().Cookies(); len(set) > 0 {
		s.cookies = set
	}
	return rr
}

func (s *testServer) fetchToken(t *testing.T) {
	t.Helper()
	rr := s.do(t, http.MethodGet, "/auth/csrf", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.NotEmpty(t, view.CSRFToken)
	s.token = view.CSRFToken
}

const registerBody = `{"company_name":"Acme Traders","full_name":"Ayesha","email":"Owner@Acme.test","password":"correct horse"}`

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(t, http.MethodGet, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")

	rr = srv.do(t, http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnsafeRequestsRequireCSRFToken(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(t, http.MethodPost, "/auth/register", registerBody)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	srv.fetchToken(t)
	srv.token = "forged"
	rr = srv.do(t, http.MethodPost, "/auth/register", registerBody)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, srv.repo.users)
}

func TestRegisterLoginFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.fetchToken(t)
	anonymousToken := srv.token

	rr := srv.do(t, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var signedIn struct {
		User struct {
			ID        int64  `json:"id"`
			CompanyID int64  `json:"company_id"`
			Email     string `json:"email"`
		} `json:"user"`
		Company struct {
			Name string `json:"name"`
		} `json:"company"`
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signedIn))
	assert.Equal(t, "owner@acme.test", signedIn.User.Email)
	assert.Equal(t, "Acme Traders", signedIn.Company.Name)
	assert.NotContains(t, rr.Body.String(), "password")
	require.NotEqual(t, anonymousToken, signedIn.CSRFToken)
	srv.token = signedIn.CSRFToken
	assert.Len(t, srv.repo.sessions, 1)

	rr = srv.do(t, http.MethodGet, "/whoami", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var id shared.Identity
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &id))
	assert.Equal(t, signedIn.User.CompanyID, id.CompanyID)
	assert.Equal(t, signedIn.User.ID, id.UserID)

	rr = srv.do(t, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "owner@acme.test")

	// the pre-login token no longer works once the session rotated
	srv.token = anonymousToken
	rr = srv.do(t, http.MethodPost, "/whoami", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	srv.token = signedIn.CSRFToken
	rr = srv.do(t, http.MethodPost, "/whoami", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(t, http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, srv.repo.sessions)
	rr = srv.do(t, http.MethodGet, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	srv.fetchToken(t)
	rr = srv.do(t, http.MethodPost, "/auth/login", `{"email":"owner@acme.test","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = srv.do(t, http.MethodPost, "/auth/login", `{"email":"owner@acme.test","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	srv.fetchToken(t)
	rr = srv.do(t, http.MethodPost, "/auth/register", registerBody)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rr := srv.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"}}`, rr.Body.String())
	assert.Zero(t, len(srv.redis.Keys()), "health checks must not create sessions")

	failing := newTestServer(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rr = failing.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestMetricsAndSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodGet, "/healthz", "")
	rr := srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `invoicing_http_requests_total{code="200",route="/healthz"}`)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
