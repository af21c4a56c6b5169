package middleware

import (
	"time"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookie        = "8by8-session"
	EmailForSignInCookie = "8by8-email-for-signin"
	InviteCodeCookie     = "8by8-invite-code"

	sessionTokenKey = "session"
)

// SessionProtected rejects requests without a valid session cookie with
// 401 {"message":"Unauthorized."}.
func SessionProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:  jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
		TokenLookup: "cookie:" + SessionCookie,
		ContextKey:  sessionTokenKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized.",
			})
		},
	})
}

// UserID returns the subject of the session token verified by
// SessionProtected, or "" when there is none.
func UserID(c *fiber.Ctx) string {
	token, ok := c.Locals(sessionTokenKey).(*jwt.Token)
	if !ok || token == nil {
		return ""
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

func SetSessionCookie(c *fiber.Ctx, cfg *config.Config, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(cfg.SessionExpiry),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func ClearSessionCookie(c *fiber.Ctx, cfg *config.Config) {
	clearCookie(c, cfg, SessionCookie, fiber.CookieSameSiteLaxMode)
}

// SetEmailForSignInCookie remembers the address awaiting a passcode for
// one hour.
func SetEmailForSignInCookie(c *fiber.Ctx, cfg *config.Config, email string) {
	c.Cookie(&fiber.Cookie{
		Name:     EmailForSignInCookie,
		Value:    email,
		Path:     "/",
		Expires:  time.Now().Add(time.Hour),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func ClearEmailForSignInCookie(c *fiber.Ctx, cfg *config.Config) {
	clearCookie(c, cfg, EmailForSignInCookie, fiber.CookieSameSiteStrictMode)
}

func SetInviteCodeCookie(c *fiber.Ctx, cfg *config.Config, code string) {
	c.Cookie(&fiber.Cookie{
		Name:     InviteCodeCookie,
		Value:    code,
		Path:     "/",
		Expires:  time.Now().Add(cfg.SessionExpiry),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearCookie(c *fiber.Ctx, cfg *config.Config, name, sameSite string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSite,
	})
}

// SessionOptional verifies the session cookie when one is sent and lets
// the request through either way. UserID is "" for anonymous requests.
func SessionOptional(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:  jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
		TokenLookup: "cookie:" + SessionCookie,
		ContextKey:  sessionTokenKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Next()
		},
	})
}
