package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerstack/ledgerstack/internal/shared"
)

type fakeRepo struct {
	accounts map[string]*Account
	sessions map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[string]*Account), sessions: make(map[string]int64)}
}

func (r *fakeRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	a, ok := r.accounts[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (r *fakeRepo) CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = accountID
	return nil
}

func (r *fakeRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

func testHandler(t *testing.T) (*Handler, *fakeRepo, *shared.SessionManager) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "ledgerstack_session", "secret", time.Hour, false)
	repo := newFakeRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, NewService(repo), sessions), repo, sessions
}

func seedAccount(t *testing.T, repo *fakeRepo, email, password string) *Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	account := &Account{
		ID:           7,
		Email:        email,
		BusinessName: "Acme Books",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	repo.accounts[email] = account
	return account
}

func login(t *testing.T, h *Handler, sessions *shared.SessionManager, body map[string]any) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)

	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	h.handleLogin(rec, req)
	return rec, sess
}

func TestLogin(t *testing.T) {
	h, repo, sessions := testHandler(t)
	account := seedAccount(t, repo, "owner@acme.test", "correct-horse")

	rec, sess := login(t, h, sessions, map[string]any{
		"email":    "owner@acme.test",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, account.ID, resp.AccountID)
	require.Equal(t, "Acme Books", resp.BusinessName)

	require.Equal(t, account.ID, shared.AccountFromSession(sess))
	require.Contains(t, repo.sessions, sess.ID)
}

func TestLoginBadCredentials(t *testing.T) {
	h, repo, sessions := testHandler(t)
	seedAccount(t, repo, "owner@acme.test", "correct-horse")

	rec, _ := login(t, h, sessions, map[string]any{
		"email":    "owner@acme.test",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = login(t, h, sessions, map[string]any{
		"email":    "nobody@acme.test",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	h, repo, sessions := testHandler(t)
	account := seedAccount(t, repo, "owner@acme.test", "correct-horse")
	account.IsActive = false

	rec, _ := login(t, h, sessions, map[string]any{
		"email":    "owner@acme.test",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	h, _, sessions := testHandler(t)

	rec, _ := login(t, h, sessions, map[string]any{"email": "not-an-email", "password": "correct-horse"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = login(t, h, sessions, map[string]any{"email": "owner@acme.test", "password": "short"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	h, repo, sessions := testHandler(t)
	seedAccount(t, repo, "owner@acme.test", "correct-horse")

	rec, sess := login(t, h, sessions, map[string]any{
		"email":    "owner@acme.test",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec = httptest.NewRecorder()
	h.handleLogout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, repo.sessions, sess.ID)
}
