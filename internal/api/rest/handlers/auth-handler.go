package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/Jakkraphat/identity_service/internal/api/rest/middleware"
	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/Jakkraphat/identity_service/internal/helper/utils"
	"github.com/Jakkraphat/identity_service/internal/repository"
	"github.com/Jakkraphat/identity_service/internal/services"
	"github.com/gofiber/fiber/v2"
)

const stateCookieName = "oauth_state"

type AuthHandler struct {
	svc         services.AuthService
	oauth       services.OAuthService
	sessions    repository.SessionRepository
	auth        helper.Auth
	frontendURL string
}

func NewAuthHandler(
	svc services.AuthService,
	oauth services.OAuthService,
	sessions repository.SessionRepository,
	auth helper.Auth,
	frontendURL string,
) *AuthHandler {
	return &AuthHandler{
		svc:         svc,
		oauth:       oauth,
		sessions:    sessions,
		auth:        auth,
		frontendURL: frontendURL,
	}
}

func (h *AuthHandler) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")
	auth := api.Group("/auth")

	requireAnon := middleware.RequireUnauthenticated(h.auth, h.sessions)
	authed := middleware.Authenticate(h.auth, h.sessions)

	auth.Post("/register", requireAnon, h.Register)
	auth.Post("/login", requireAnon, h.Login)
	auth.Post("/logout", middleware.RequireAuthForLogout(h.auth, h.sessions), h.Logout)

	auth.Get("/verify", authed, h.CheckAuthStatus)
	auth.Post("/CheckAuthStatus", authed, h.CheckAuthStatus)
	auth.Post("/verify-email", authed, h.VerifyEmail)
	auth.Post("/resendVerificationEmail", authed, h.ResendVerification)

	auth.Post("/sendResetPasswordEmail", requireAnon, h.ForgotPassword)
	auth.Post("/resetPassword", requireAnon, h.ResetPassword)

	// Registered after the static routes so /verify and friends win.
	auth.Get("/:provider", requireAnon, h.OAuthRedirect)
	auth.Get("/:provider/callback", h.OAuthCallback)
}

func (h *AuthHandler) Register(ctx *fiber.Ctx) error {
	var body dto.RegisterRequest
	if err := ctx.BodyParser(&body); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, domain.ErrValidation.Error())
	}

	user, err := h.svc.Register(body)
	if err != nil {
		return utils.ResponseError(ctx, statusForError(err), err.Error())
	}

	// An unverified user still gets a working session; verification gating
	// happens per endpoint.
	if err := h.issueSession(ctx, user); err != nil {
		return utils.ResponseError(ctx, fiber.StatusInternalServerError, "could not create session")
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "user registered successfully", user)
}

func (h *AuthHandler) Login(ctx *fiber.Ctx) error {
	var body dto.LoginRequest
	if err := ctx.BodyParser(&body); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, domain.ErrValidation.Error())
	}

	user, err := h.svc.Login(body)
	if err != nil {
		return utils.ResponseError(ctx, statusForError(err), err.Error())
	}

	if err := h.issueSession(ctx, user); err != nil {
		return utils.ResponseError(ctx, fiber.StatusInternalServerError, "could not create session")
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "user logged in successfully", user)
}

func (h *AuthHandler) Logout(ctx *fiber.Ctx) error {
	if id, ok := ctx.Locals(middleware.LocalSessionID).(string); ok && id != "" {
		_ = h.sessions.Delete(id)
	}

	ctx.Cookie(h.auth.ExpiredCookie(helper.TokenCookieName))
	ctx.Cookie(h.auth.ExpiredCookie(helper.SessionCookieName))

	return utils.ResponseSuccess(ctx, fiber.StatusOK, "user logged out successfully", nil)
}

func (h *AuthHandler) VerifyEmail(ctx *fiber.Ctx) error {
	identity, err := h.auth.GetCurrentUser(ctx)
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, "Unauthorized")
	}

	var body dto.VerifyEmailRequest
	if err := ctx.BodyParser(&body); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, domain.ErrValidation.Error())
	}

	user, err := h.svc.VerifyEmail(identity.Email, body.Code)
	if err != nil {
		return utils.ResponseError(ctx, statusForError(err), err.Error())
	}

	// Re-issue both channels with the updated projection.
	if id, ok := ctx.Locals(middleware.LocalSessionID).(string); ok && id != "" {
		if err := h.sessions.Refresh(id, user); err != nil {
			return utils.ResponseError(ctx, fiber.StatusInternalServerError, "could not refresh session")
		}
	}
	token, err := h.auth.GenerateToken(user)
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusInternalServerError, "could not generate token")
	}
	ctx.Cookie(h.auth.NewTokenCookie(token))

	return utils.ResponseSuccess(ctx, fiber.StatusOK, "email verified successfully", user)
}

func (h *AuthHandler) ResendVerification(ctx *fiber.Ctx) error {
	identity, err := h.auth.GetCurrentUser(ctx)
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, "Unauthorized")
	}

	if err := h.svc.ResendVerification(identity.Email); err != nil {
		return utils.ResponseError(ctx, statusForError(err), err.Error())
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "verification code sent", nil)
}

func (h *AuthHandler) ForgotPassword(ctx *fiber.Ctx) error {
	var body dto.ForgotPasswordRequest
	if err := ctx.BodyParser(&body); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, domain.ErrValidation.Error())
	}

	if err := h.svc.RequestPasswordReset(body.Email); err != nil {
		return utils.ResponseError(ctx, statusForError(err), err.Error())
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "password reset code sent", nil)
}

func (h *AuthHandler) ResetPassword(ctx *fiber.Ctx) error {
	var body dto.ResetPasswordRequest
	if err := ctx.BodyParser(&body); err != nil {
		return utils.ResponseError(ctx, fiber.StatusBadRequest, domain.ErrValidation.Error())
	}

	if err := h.svc.ConfirmPasswordReset(body); err != nil {
		return utils.ResponseError(ctx, statusForError(err), err.Error())
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "password reset successfully", nil)
}

func (h *AuthHandler) CheckAuthStatus(ctx *fiber.Ctx) error {
	user, err := h.auth.GetCurrentUser(ctx)
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusUnauthorized, "Unauthorized")
	}
	return utils.ResponseSuccess(ctx, fiber.StatusOK, "", user)
}

func (h *AuthHandler) OAuthRedirect(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")

	state, err := randomState()
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusInternalServerError, "could not start oauth flow")
	}

	url, err := h.oauth.AuthURL(provider, state)
	if err != nil {
		return utils.ResponseError(ctx, fiber.StatusNotFound, "unknown provider")
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HTTPOnly: true,
		Secure:   h.auth.Production,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return ctx.Redirect(url, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) OAuthCallback(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")
	cookieState := ctx.Cookies(stateCookieName)

	ctx.Cookie(h.auth.ExpiredCookie(stateCookieName))

	if code == "" || state == "" || state != cookieState {
		return h.failureRedirect(ctx)
	}

	user, err := h.oauth.HandleCallback(ctx.UserContext(), provider, code)
	if err != nil {
		return h.failureRedirect(ctx)
	}

	if err := h.issueSession(ctx, user); err != nil {
		return h.failureRedirect(ctx)
	}
	return ctx.Redirect(h.frontendURL, fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) failureRedirect(ctx *fiber.Ctx) error {
	return ctx.Redirect(h.frontendURL+"/login?error=oauth", fiber.StatusTemporaryRedirect)
}

// issueSession creates the session record and sets both cookies.
func (h *AuthHandler) issueSession(ctx *fiber.Ctx, user dto.UserResponse) error {
	sess, err := h.sessions.Create(user)
	if err != nil {
		return err
	}
	token, err := h.auth.GenerateToken(user)
	if err != nil {
		return err
	}

	ctx.Cookie(h.auth.NewSessionCookie(h.auth.SignSessionID(sess.ID)))
	ctx.Cookie(h.auth.NewTokenCookie(token))
	return nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrWeakPassword),
		errors.Is(err, domain.ErrDuplicateAccount),
		errors.Is(err, domain.ErrBadCredential),
		errors.Is(err, domain.ErrAlreadyVerified),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenExpired):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
