package helper

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookieName = "sessionId"
	TokenCookieName   = "token"

	SessionTTL = 24 * time.Hour
	TokenTTL   = time.Hour
)

// Locals keys for the identity resolved by the auth middleware.
const (
	LocalUser      = "user"
	LocalSessionID = "sessionID"
)

var ErrInvalidToken = errors.New("invalid token")

type Auth struct {
	Secret        string
	SessionSecret string
	Production    bool
}

func SetupAuth(secret, sessionSecret string, production bool) Auth {
	return Auth{
		Secret:        secret,
		SessionSecret: sessionSecret,
		Production:    production,
	}
}

// GenerateToken signs a bearer token carrying the trimmed user projection,
// expiring in one hour.
func (a Auth) GenerateToken(user dto.UserResponse) (string, error) {
	if user.ID == 0 || user.Email == "" {
		return "", errors.New("required inputs are missing to generate token")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user": jwt.MapClaims{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
			"verified": user.Verified,
		},
		"iat": now.Unix(),
		"exp": now.Add(TokenTTL).Unix(),
	})

	tokenStr, err := token.SignedString([]byte(a.Secret))
	if err != nil {
		return "", errors.New("unable to sign the token")
	}
	return tokenStr, nil
}

// VerifyToken validates signature and expiry and returns the embedded
// projection. Malformed, tampered and expired tokens all come back as
// ErrInvalidToken; the precise cause only goes to the log.
func (a Auth) VerifyToken(tokenStr string) (dto.UserResponse, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return dto.UserResponse{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.Secret), nil
	})
	if err != nil {
		log.Printf("token rejected: %v", err)
		return dto.UserResponse{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return dto.UserResponse{}, ErrInvalidToken
	}

	userAny, ok := claims["user"].(map[string]interface{})
	if !ok {
		return dto.UserResponse{}, ErrInvalidToken
	}

	id, ok := userAny["id"].(float64)
	if !ok || id <= 0 {
		return dto.UserResponse{}, ErrInvalidToken
	}
	email, _ := userAny["email"].(string)
	if email == "" {
		return dto.UserResponse{}, ErrInvalidToken
	}
	username, _ := userAny["username"].(string)
	verified, _ := userAny["verified"].(bool)

	return dto.UserResponse{
		ID:       uint(id),
		Username: username,
		Email:    email,
		Verified: verified,
	}, nil
}

// SignSessionID produces the cookie value "<id>.<hmac>" so a tampered
// session id never reaches the store.
func (a Auth) SignSessionID(id string) string {
	mac := hmac.New(sha256.New, []byte(a.SessionSecret))
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySessionCookie checks the signature and returns the bare session id.
func (a Auth) VerifySessionCookie(value string) (string, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", domain.ErrSessionNotFound
	}
	want, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", domain.ErrSessionNotFound
	}
	mac := hmac.New(sha256.New, []byte(a.SessionSecret))
	mac.Write([]byte(id))
	if !hmac.Equal(mac.Sum(nil), want) {
		return "", domain.ErrSessionNotFound
	}
	return id, nil
}

func (a Auth) HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.New("failed to hash password")
	}
	return string(hash), nil
}

func (a Auth) VerifyPassword(plain, hashed string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)); err != nil {
		return domain.ErrBadCredential
	}
	return nil
}

// Cross-site frontend needs SameSite=None + Secure behind HTTPS in
// production, Lax otherwise. Both cookies are HttpOnly on Path=/.
func (a Auth) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if a.Production {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   a.Production,
		SameSite: sameSite,
	}
}

func (a Auth) NewSessionCookie(signedID string) *fiber.Cookie {
	return a.cookie(SessionCookieName, signedID, SessionTTL)
}

func (a Auth) NewTokenCookie(token string) *fiber.Cookie {
	return a.cookie(TokenCookieName, token, TokenTTL)
}

func (a Auth) ExpiredCookie(name string) *fiber.Cookie {
	c := a.cookie(name, "", 0)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

func (a Auth) GetCurrentUser(ctx *fiber.Ctx) (dto.UserResponse, error) {
	u := ctx.Locals(LocalUser)
	user, ok := u.(dto.UserResponse)
	if !ok {
		return dto.UserResponse{}, errors.New("missing auth user in context")
	}
	return user, nil
}
