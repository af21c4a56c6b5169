package handlers

import (
	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/8by8-org/challenge-api/internal/services"
	"github.com/gofiber/fiber/v2"
)

type InviteHandler struct {
	challengeService *services.ChallengeService
	cfg              *config.Config
}

func NewInviteHandler(challengeService *services.ChallengeService, cfg *config.Config) *InviteHandler {
	return &InviteHandler{challengeService: challengeService, cfg: cfg}
}

// Resolve looks up the challenger behind :code and remembers the code so
// that a following sign-up joins as that challenger's player.
func (h *InviteHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	invitedBy, err := h.challengeService.ResolveInvite(c.UserContext(), code)
	if err != nil {
		return respondError(c, err)
	}

	middleware.SetInviteCodeCookie(c, h.cfg, invitedBy.ChallengerInviteCode)
	return c.JSON(invitedBy)
}
