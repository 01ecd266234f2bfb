package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Jakkraphat/identity_service/config"
	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/Jakkraphat/identity_service/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- in-memory fakes ----

type fakeUserRepo struct {
	mu    sync.Mutex
	seq   uint
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) CreateUser(user *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return nil, domain.ErrDuplicateAccount
	}
	f.seq++
	user.ID = f.seq
	cp := *user
	f.users[user.Email] = &cp
	return user, nil
}

func (f *fakeUserRepo) FindUserByEmail(email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) MarkVerified(email, code string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || u.Verified || u.VerificationCode == nil || *u.VerificationCode != code {
		return 0, nil
	}
	u.Verified = true
	u.VerificationCode = nil
	return 1, nil
}

func (f *fakeUserRepo) SetVerificationCode(email, code string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || u.Verified {
		return 0, nil
	}
	u.VerificationCode = &code
	return 1, nil
}

func (f *fakeUserRepo) SetResetToken(email, token string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return domain.ErrNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpiry = &expiry
	return nil
}

func (f *fakeUserRepo) ClearResetAndSetPassword(email, token, passwordHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || u.ResetToken == nil || *u.ResetToken != token {
		return 0, nil
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.ResetTokenExpiry = nil
	return 1, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*domain.Session)}
}

func (f *fakeSessions) Create(user dto.UserResponse) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	sess := &domain.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Verified:   user.Verified,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(helper.SessionTTL),
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Find(id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok || sess.Expired(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeSessions) Refresh(id string, user dto.UserResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.UserID = user.ID
	sess.Username = user.Username
	sess.Email = user.Email
	sess.Verified = user.Verified
	return nil
}

func (f *fakeSessions) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type fakeNotifier struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
}

func (f *fakeNotifier) SendVerificationCode(_ context.Context, _ uint, _ string, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications = append(f.verifications, code)
	return nil
}

func (f *fakeNotifier) SendResetCode(_ context.Context, _ uint, _ string, code string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, code)
	return nil
}

func (f *fakeNotifier) lastVerification() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.verifications) == 0 {
		return ""
	}
	return f.verifications[len(f.verifications)-1]
}

// ---- harness ----

type envelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	User    dto.UserResponse `json:"user"`
}

type harness struct {
	app      *fiber.App
	repo     *fakeUserRepo
	sessions *fakeSessions
	notifier *fakeNotifier
	cookies  []*http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo := newFakeUserRepo()
	sessions := newFakeSessions()
	n := &fakeNotifier{}
	auth := helper.SetupAuth("jwt-test-secret", "session-test-secret", false)

	svc := services.NewAuthService(repo, auth, n)
	oauthSvc := services.NewOAuthService(config.Config{}, repo, auth)
	h := NewAuthHandler(svc, oauthSvc, sessions, auth, "http://localhost:5173")

	app := fiber.New()
	h.SetupRoutes(app)

	return &harness{app: app, repo: repo, sessions: sessions, notifier: n}
}

// do sends a request carrying the harness cookie jar and absorbs any
// Set-Cookie headers from the response, the way a browser would.
func (h *harness) do(t *testing.T, method, path string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range h.cookies {
		if c.MaxAge >= 0 && c.Value != "" {
			req.AddCookie(c)
		}
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)

	for _, c := range resp.Cookies() {
		h.setCookie(c)
	}

	var env envelope
	if resp.Header.Get("Content-Type") != "" {
		_ = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
	}
	return resp, env
}

func (h *harness) setCookie(c *http.Cookie) {
	for i, existing := range h.cookies {
		if existing.Name == c.Name {
			h.cookies[i] = c
			return
		}
	}
	h.cookies = append(h.cookies, c)
}

func (h *harness) clearCookies() {
	h.cookies = nil
}

func (h *harness) cookie(name string) *http.Cookie {
	for _, c := range h.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---- tests ----

func TestRegisterLoginVerifyScenario(t *testing.T) {
	h := newHarness(t)

	// Register: success, unverified, both cookies issued.
	resp, env := h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "user registered successfully", env.Message)
	assert.False(t, env.User.Verified)
	require.NotNil(t, h.cookie(helper.SessionCookieName))
	require.NotNil(t, h.cookie(helper.TokenCookieName))
	firstCode := h.notifier.lastVerification()
	require.Len(t, firstCode, 6)

	// Registering again while signed in is blocked by the gate.
	resp, env = h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Already authenticated. Please logout first.", env.Message)

	// Resend rotates the code.
	resp, env = h.do(t, http.MethodPost, "/api/auth/resendVerificationEmail", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	newCode := h.notifier.lastVerification()
	assert.NotEqual(t, firstCode, newCode)

	// Verify with the fresh code.
	resp, env = h.do(t, http.MethodPost, "/api/auth/verify-email", dto.VerifyEmailRequest{Code: newCode})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.True(t, env.User.Verified)

	// Verify again with any code.
	resp, env = h.do(t, http.MethodPost, "/api/auth/verify-email", dto.VerifyEmailRequest{Code: newCode})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "User already verified", env.Message)

	// Auth status reflects the refreshed projection.
	resp, env = h.do(t, http.MethodPost, "/api/auth/CheckAuthStatus", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "ada@x.com", env.User.Email)
	assert.True(t, env.User.Verified)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// A different anonymous caller tries the same email.
	h.clearCookies()
	resp, env := h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "eve", Email: "ada@x.com", Password: "Other456!",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Email already exists", env.Message)
}

func TestLoginEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})
	h.clearCookies()

	resp, env := h.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Email: "nobody@x.com", Password: "Secret123!",
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User does not exist", env.Message)
	h.clearCookies()

	resp, env = h.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Email: "ada@x.com", Password: "wrong",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Incorrect Password", env.Message)
	h.clearCookies()

	resp, env = h.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Email: "ada@x.com", Password: "Secret123!",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "ada@x.com", env.User.Email)
	assert.NotNil(t, h.cookie(helper.SessionCookieName))
	assert.NotNil(t, h.cookie(helper.TokenCookieName))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})
	require.Equal(t, 1, h.sessions.count())

	resp, env := h.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "user logged out successfully", env.Message)

	// Session destroyed server-side, cookies instructed to expire.
	assert.Equal(t, 0, h.sessions.count())
	assert.Empty(t, h.cookie(helper.SessionCookieName).Value)
	assert.Empty(t, h.cookie(helper.TokenCookieName).Value)

	// Logout again without credentials.
	h.clearCookies()
	resp, env = h.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "You must be logged in to access this route", env.Message)
}

func TestPasswordResetEndpoints(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})
	h.clearCookies()

	// Unknown email: NotFound, nothing persisted.
	resp, env := h.do(t, http.MethodPost, "/api/auth/sendResetPasswordEmail", dto.ForgotPasswordRequest{
		Email: "nobody@x.com",
	})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)

	resp, env = h.do(t, http.MethodPost, "/api/auth/sendResetPasswordEmail", dto.ForgotPasswordRequest{
		Email: "ada@x.com",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	h.notifier.mu.Lock()
	code := h.notifier.resets[len(h.notifier.resets)-1]
	h.notifier.mu.Unlock()

	resp, env = h.do(t, http.MethodPost, "/api/auth/resetPassword", dto.ResetPasswordRequest{
		Email: "ada@x.com", Code: code, NewPassword: "Changed789!",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	resp, env = h.do(t, http.MethodPost, "/api/auth/login", dto.LoginRequest{
		Email: "ada@x.com", Password: "Changed789!",
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestCheckAuthStatusRequiresCredentials(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, http.MethodPost, "/api/auth/CheckAuthStatus", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", env.Message)
}

func TestVerifyRouteNotShadowedByProvider(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/api/auth/register", dto.RegisterRequest{
		Username: "ada", Email: "ada@x.com", Password: "Secret123!",
	})

	// GET /verify must hit the auth-status handler, not the provider route.
	resp, env := h.do(t, http.MethodGet, "/api/auth/verify", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "ada@x.com", env.User.Email)
}

func TestUnknownOAuthProvider(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, http.MethodGet, "/api/auth/gitlab", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown provider", env.Message)
}

func TestOAuthCallbackStateMismatchRedirects(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodGet, "/api/auth/github/callback?code=abc&state=forged", nil)
	assert.Equal(t, fiber.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173/login?error=oauth", resp.Header.Get("Location"))
}
