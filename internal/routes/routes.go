package routes

import (
	"time"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/handlers"
	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Challenge *handlers.ChallengeHandler
	Session   *handlers.SessionHandler
	Invite    *handlers.InviteHandler
	Health    *handlers.HealthHandler
	Realtime  *handlers.RealtimeHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// Passcode routes send mail, so they get a stricter limit: 10 req/min per IP
	otpLimit := limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
	api.Post("/signup-with-email", otpLimit, h.Auth.SignUpWithEmail)
	api.Post("/send-otp-to-email", otpLimit, h.Auth.SendOTPToEmail)
	api.Post("/resend-otp-to-email", otpLimit, h.Auth.ResendOTPToEmail)
	api.Post("/signin-with-otp", otpLimit, h.Auth.SignInWithOTP)
	api.Delete("/signout", h.Auth.SignOut)

	api.Get("/session", middleware.SessionOptional(cfg), h.Session.Session)
	api.Get("/invite/:code", h.Invite.Resolve)

	// Session required; applied per route so public routes stay open
	protected := middleware.SessionProtected(cfg)
	api.Put("/award-election-reminders-badge", protected, h.Challenge.Award(dto.ActionElectionReminders))
	api.Put("/award-register-to-vote-badge", protected, h.Challenge.Award(dto.ActionVoterRegistration))
	api.Put("/share-challenge", protected, h.Challenge.Award(dto.ActionSharedChallenge))
	api.Put("/restart-challenge", protected, h.Challenge.RestartChallenge)
	api.Get("/refresh-user", protected, h.Challenge.RefreshUser)
	api.Post("/refresh-user", protected, h.Challenge.RefreshUser)

	api.Get("/realtime/badges/:userId", protected, h.Realtime.Upgrade, h.Realtime.Stream())
}
