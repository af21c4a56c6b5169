package handlers

import (
	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/middleware"
	"github.com/8by8-org/challenge-api/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
	cfg         *config.Config
}

func NewAuthHandler(authService *services.AuthService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg}
}

func (h *AuthHandler) SignUpWithEmail(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}

	user, err := h.authService.SignUp(c.UserContext(), &req, c.Cookies(middleware.InviteCodeCookie), c.IP())
	if err != nil {
		return respondError(c, err)
	}

	middleware.SetEmailForSignInCookie(c, h.cfg, user.Email)
	return c.Status(fiber.StatusCreated).JSON(dto.UserResponse{User: user})
}

func (h *AuthHandler) SendOTPToEmail(c *fiber.Ctx) error {
	var req dto.SendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}

	email, err := h.authService.SendOTP(c.UserContext(), &req, c.IP())
	if err != nil {
		return respondError(c, err)
	}

	middleware.SetEmailForSignInCookie(c, h.cfg, email)
	return c.JSON(fiber.Map{"message": "Passcode sent."})
}

func (h *AuthHandler) ResendOTPToEmail(c *fiber.Ctx) error {
	var req dto.ResendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}

	if _, err := h.authService.ResendOTP(c.UserContext(), &req); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Passcode sent."})
}

func (h *AuthHandler) SignInWithOTP(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c)
	}

	resp, token, err := h.authService.SignIn(c.UserContext(), &req)
	if err != nil {
		return respondError(c, err)
	}

	middleware.SetSessionCookie(c, h.cfg, token)
	middleware.ClearEmailForSignInCookie(c, h.cfg)
	return c.JSON(resp)
}

func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	middleware.ClearSessionCookie(c, h.cfg)
	return c.JSON(fiber.Map{"message": "Signed out."})
}
