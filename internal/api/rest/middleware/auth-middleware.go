package middleware

import (
	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/Jakkraphat/identity_service/internal/repository"
	"github.com/gofiber/fiber/v2"
)

// Locals keys populated for downstream handlers. Defined in helper so
// GetCurrentUser reads the same key this package writes.
const (
	LocalUser      = helper.LocalUser
	LocalSessionID = helper.LocalSessionID
)

// Authenticate reconciles the two credential channels into one resolved
// identity per request:
//
//	session  token   action
//	absent   absent  401
//	present  absent  mint a fresh token from the session record
//	absent   present materialize a session record from the token claims
//	present  present session record is authoritative
func Authenticate(auth helper.Auth, sessions repository.SessionRepository) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		sess := liveSession(ctx, auth, sessions)
		tokenStr := ctx.Cookies(helper.TokenCookieName)

		// Case 1: no session and no token.
		if sess == nil && tokenStr == "" {
			return unauthorized(ctx)
		}

		// Case 2: session exists but no token. Re-mint the bearer token
		// from the session record.
		if sess != nil && tokenStr == "" {
			user := sessionUser(sess)
			token, err := auth.GenerateToken(user)
			if err != nil {
				return unauthorized(ctx)
			}
			ctx.Cookie(auth.NewTokenCookie(token))
			ctx.Locals(LocalUser, user)
			ctx.Locals(LocalSessionID, sess.ID)
			return ctx.Next()
		}

		// Case 3: token exists but no session. A valid token materializes a
		// fresh session record; anything else clears the cookie.
		if sess == nil {
			user, err := auth.VerifyToken(tokenStr)
			if err != nil {
				ctx.Cookie(auth.ExpiredCookie(helper.TokenCookieName))
				return unauthorized(ctx)
			}
			created, err := sessions.Create(user)
			if err != nil {
				return unauthorized(ctx)
			}
			ctx.Cookie(auth.NewSessionCookie(auth.SignSessionID(created.ID)))
			ctx.Locals(LocalUser, user)
			ctx.Locals(LocalSessionID, created.ID)
			return ctx.Next()
		}

		// Case 4: both present. The session record wins; the token is not
		// re-validated here.
		ctx.Locals(LocalUser, sessionUser(sess))
		ctx.Locals(LocalSessionID, sess.ID)
		return ctx.Next()
	}
}

// RequireUnauthenticated guards entry points (register, login, OAuth entry,
// reset request) against already-signed-in callers.
func RequireUnauthenticated(auth helper.Auth, sessions repository.SessionRepository) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if ctx.Cookies(helper.TokenCookieName) != "" || liveSession(ctx, auth, sessions) != nil {
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Already authenticated. Please logout first.",
			})
		}
		return ctx.Next()
	}
}

// RequireAuthForLogout lets logout through when at least one credential is
// present, and resolves the session id so the handler can destroy it.
func RequireAuthForLogout(auth helper.Auth, sessions repository.SessionRepository) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		sess := liveSession(ctx, auth, sessions)
		if sess == nil && ctx.Cookies(helper.TokenCookieName) == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "You must be logged in to access this route",
			})
		}
		if sess != nil {
			ctx.Locals(LocalSessionID, sess.ID)
		}
		return ctx.Next()
	}
}

// RequireVerified is the capability check layered on top of Authenticate for
// endpoints that need a confirmed email address.
func RequireVerified() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		user, ok := ctx.Locals(LocalUser).(dto.UserResponse)
		if !ok {
			return unauthorized(ctx)
		}
		if !user.Verified {
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Email not verified",
			})
		}
		return ctx.Next()
	}
}

func liveSession(ctx *fiber.Ctx, auth helper.Auth, sessions repository.SessionRepository) *domain.Session {
	cookie := ctx.Cookies(helper.SessionCookieName)
	if cookie == "" {
		return nil
	}
	id, err := auth.VerifySessionCookie(cookie)
	if err != nil {
		return nil
	}
	sess, err := sessions.Find(id)
	if err != nil {
		return nil
	}
	return sess
}

func sessionUser(sess *domain.Session) dto.UserResponse {
	return dto.UserResponse{
		ID:       sess.UserID,
		Username: sess.Username,
		Email:    sess.Email,
		Verified: sess.Verified,
	}
}

func unauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": "Unauthorized",
	})
}
