package permreq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise/gatewise/internal/auth"
	"github.com/gatewise/gatewise/internal/directory"
	"github.com/gatewise/gatewise/internal/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubDirectory struct {
	users map[int64]*directory.User
}

func (s *stubDirectory) Create(ctx context.Context, email, name, passwordHash string, role shared.Role) (*directory.User, error) {
	return nil, fmt.Errorf("stub: create unsupported: %w", shared.ErrValidation)
}

func (s *stubDirectory) FindByID(ctx context.Context, id int64) (*directory.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("stub: user %d: %w", id, shared.ErrNotFound)
	}
	return user, nil
}

func (s *stubDirectory) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, fmt.Errorf("stub: email %s: %w", email, shared.ErrNotFound)
}

type testEnv struct {
	router     chi.Router
	repo       *mockRepository
	adminToken string
	userToken  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := auth.NewTokenStore(redisClient, time.Hour)

	users := &stubDirectory{users: map[int64]*directory.User{
		1: {ID: 1, Email: "alice@test.local", Name: "Alice", Role: shared.RoleUser, IsActive: true},
		9: {ID: 9, Email: "admin@test.local", Name: "Admin", Role: shared.RoleAdmin, IsActive: true},
	}}

	authService := auth.NewService(users, tokens)
	guard := auth.Middleware{Service: authService}

	repo := newMockRepository()
	repo.addUser(1, "alice@test.local", "Alice")
	repo.addUser(9, "admin@test.local", "Admin")

	service := NewService(repo, nil, nil, nil, nil)
	handler := NewHandler(newTestLogger(), service, guard)

	router := chi.NewRouter()
	router.Route("/permission-requests", handler.MountRoutes)

	adminToken, err := tokens.Issue(context.Background(), 9)
	require.NoError(t, err)
	userToken, err := tokens.Issue(context.Background(), 1)
	require.NoError(t, err)

	return &testEnv{
		router:     router,
		repo:       repo,
		adminToken: adminToken,
		userToken:  userToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func TestSubmitRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", "", shared.Permissions{CanAdd: true})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestSubmitReturnsCreatedRequest(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", env.userToken, shared.Permissions{CanAdd: true})
	require.Equal(t, http.StatusCreated, res.Code)

	var created struct {
		ID        string             `json:"id"`
		Status    string             `json:"status"`
		Requested shared.Permissions `json:"requestedPermissions"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)
	assert.True(t, created.Requested.CanAdd)
	assert.NotEmpty(t, created.ID)
}

func TestSubmitEmptyFlagsReturnsBadRequest(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", env.userToken, shared.Permissions{})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestListPendingRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/permission-requests", env.userToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = env.do(t, http.MethodGet, "/permission-requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestListPendingIncludesRequesterIdentity(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", env.userToken, shared.Permissions{CanUpdate: true})
	require.Equal(t, http.StatusCreated, res.Code)

	res = env.do(t, http.MethodGet, "/permission-requests", env.adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)

	var pending []struct {
		Status    string `json:"status"`
		Requester struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"requester"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].Status)
	assert.Equal(t, "alice@test.local", pending[0].Requester.Email)
}

func TestApproveFlow(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", env.userToken, shared.Permissions{CanAdd: true})
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))

	// A non-admin may not review, not even their own request.
	res = env.do(t, http.MethodPatch, "/permission-requests/"+created.ID+"/approve", env.userToken, shared.Permissions{CanAdd: true})
	assert.Equal(t, http.StatusForbidden, res.Code)

	granted := shared.Permissions{CanAdd: true, CanUpdate: true}
	res = env.do(t, http.MethodPatch, "/permission-requests/"+created.ID+"/approve", env.adminToken, granted)
	require.Equal(t, http.StatusOK, res.Code)

	var approved struct {
		Status     string `json:"status"`
		ReviewedBy *int64 `json:"reviewedBy"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &approved))
	assert.Equal(t, "approved", approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, int64(9), *approved.ReviewedBy)
	assert.Equal(t, granted, env.repo.users[1].perms)

	// Terminal state: a second approval attempt conflicts.
	res = env.do(t, http.MethodPatch, "/permission-requests/"+created.ID+"/approve", env.adminToken, granted)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestDenyFlow(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", env.userToken, shared.Permissions{CanDelete: true})
	require.Equal(t, http.StatusCreated, res.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))

	res = env.do(t, http.MethodPatch, "/permission-requests/"+created.ID+"/deny", env.adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)

	var denied struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &denied))
	assert.Equal(t, "denied", denied.Status)
	assert.Equal(t, shared.Permissions{}, env.repo.users[1].perms)

	res = env.do(t, http.MethodPatch, "/permission-requests/"+created.ID+"/deny", env.adminToken, nil)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestGetUnknownRequestReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/permission-requests/3d9c0f9e-8a30-4f3e-9a93-000000000000", env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = env.do(t, http.MethodGet, "/permission-requests/not-a-uuid", env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHistoryReturnsCallerRequestsOnly(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/permission-requests", env.userToken, shared.Permissions{CanAdd: true})
	require.Equal(t, http.StatusCreated, res.Code)

	res = env.do(t, http.MethodGet, "/permission-requests/user/history", env.adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var adminHistory []json.RawMessage
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &adminHistory))
	assert.Empty(t, adminHistory)

	res = env.do(t, http.MethodGet, "/permission-requests/user/history", env.userToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var userHistory []json.RawMessage
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &userHistory))
	assert.Len(t, userHistory, 1)
}
