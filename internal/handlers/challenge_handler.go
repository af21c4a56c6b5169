package handlers

import (
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/8by8-org/challenge-api/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
}

func NewChallengeHandler(challengeService *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: challengeService}
}

// Award returns a handler that records action for the signed-in user.
func (h *ChallengeHandler) Award(action dto.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := h.challengeService.Award(c.UserContext(), middleware.UserID(c), action)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(dto.UserResponse{User: user})
	}
}

func (h *ChallengeHandler) RestartChallenge(c *fiber.Ctx) error {
	user, err := h.challengeService.Restart(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.UserResponse{User: user})
}

func (h *ChallengeHandler) RefreshUser(c *fiber.Ctx) error {
	user, err := h.challengeService.User(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.UserResponse{User: user})
}
