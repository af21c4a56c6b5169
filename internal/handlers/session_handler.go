package handlers

import (
	"errors"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/8by8-org/challenge-api/internal/services"
	"github.com/gofiber/fiber/v2"
)

type SessionHandler struct {
	challengeService *services.ChallengeService
	cfg              *config.Config
}

func NewSessionHandler(challengeService *services.ChallengeService, cfg *config.Config) *SessionHandler {
	return &SessionHandler{challengeService: challengeService, cfg: cfg}
}

// Session returns the snapshot a client initializes its store from. An
// anonymous request gets a null user and whatever address is awaiting a
// passcode.
func (h *SessionHandler) Session(c *fiber.Ctx) error {
	anonymous := dto.SessionResponse{EmailForSignIn: c.Cookies(middleware.EmailForSignInCookie)}

	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(anonymous)
	}

	snap, err := h.challengeService.Session(c.UserContext(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		middleware.ClearSessionCookie(c, h.cfg)
		return c.JSON(anonymous)
	}
	if err != nil {
		return respondError(c, err)
	}
	snap.EmailForSignIn = anonymous.EmailForSignIn
	return c.JSON(snap)
}
