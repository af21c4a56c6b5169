package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/repository"
)

var (
	ErrEmailTaken   = repository.ErrEmailTaken
	ErrUserNotFound = repository.ErrUserNotFound
	ErrInvalidInput = errors.New("invalid input")
)

const (
	maxNameLen        = 255
	inviteCodeRetries = 3
)

type AuthService struct {
	store   repository.Store
	cfg     *config.Config
	captcha CaptchaVerifier
	otp     *OTPService
	now     func() time.Time
}

func NewAuthService(store repository.Store, cfg *config.Config, captcha CaptchaVerifier, otp *OTPService) *AuthService {
	return &AuthService{
		store:   store,
		cfg:     cfg,
		captcha: captcha,
		otp:     otp,
		now:     time.Now,
	}
}

// SignUp creates the user and mails a passcode. A valid inviteCode makes
// the new user a player invited by that challenger.
func (s *AuthService) SignUp(ctx context.Context, req *dto.SignUpRequest, inviteCode, remoteIP string) (*dto.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !dto.ValidAvatar(req.Avatar) {
		return nil, fmt.Errorf("%w: unknown avatar", ErrInvalidInput)
	}
	if err := s.verifyCaptcha(ctx, req.CaptchaToken, remoteIP); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	nu := repository.NewUser{
		Email:        email,
		Name:         name,
		Avatar:       req.Avatar,
		Type:         dto.UserTypeChallenger,
		ChallengeEnd: s.now().Add(dto.ChallengeDuration),
	}
	if inviteCode != "" {
		if challenger, err := s.store.GetUserByInviteCode(ctx, inviteCode); err == nil {
			nu.Type = dto.UserTypePlayer
			nu.InvitedBy = &dto.InvitedBy{
				ChallengerInviteCode: challenger.InviteCode,
				ChallengerName:       challenger.Name,
				ChallengerAvatar:     challenger.Avatar,
			}
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	var user *dto.User
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		if nu.InviteCode, err = NewInviteCode(name); err != nil {
			return nil, err
		}
		user, err = s.store.CreateUser(ctx, nu)
		if !errors.Is(err, repository.ErrInviteCodeTaken) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user signed up", "component", "auth", "user_id", user.UID, "type", user.Type)
	if err := s.otp.Issue(ctx, email); err != nil {
		return nil, err
	}
	return user, nil
}

// SendOTP mails a passcode to an existing user.
func (s *AuthService) SendOTP(ctx context.Context, req *dto.SendOTPRequest, remoteIP string) (string, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return "", err
	}
	if err := s.verifyCaptcha(ctx, req.CaptchaToken, remoteIP); err != nil {
		return "", err
	}
	return email, s.issueForExisting(ctx, email)
}

func (s *AuthService) ResendOTP(ctx context.Context, req *dto.ResendOTPRequest) (string, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return "", err
	}
	return email, s.issueForExisting(ctx, email)
}

// SignIn consumes the passcode and returns the user together with a
// signed session token.
func (s *AuthService) SignIn(ctx context.Context, req *dto.SignInRequest) (*dto.SignInResponse, string, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, "", err
	}
	if len(req.OTP) != otpDigits {
		return nil, "", ErrInvalidOTP
	}
	if err := s.otp.Verify(ctx, email, req.OTP); err != nil {
		return nil, "", err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	invitedBy, err := s.store.GetInvitedBy(ctx, user.UID)
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueSessionToken(user)
	if err != nil {
		return nil, "", err
	}

	slog.InfoContext(ctx, "user signed in", "component", "auth", "user_id", user.UID)
	return &dto.SignInResponse{User: user, InvitedBy: invitedBy}, token, nil
}

func (s *AuthService) IssueSessionToken(user *dto.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.UID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.cfg.SessionExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) issueForExisting(ctx context.Context, email string) error {
	if _, err := s.store.GetUserByEmail(ctx, email); err != nil {
		return err
	}
	return s.otp.Issue(ctx, email)
}

func (s *AuthService) verifyCaptcha(ctx context.Context, token, remoteIP string) error {
	ok, err := s.captcha.Verify(ctx, token, remoteIP)
	if err != nil {
		slog.ErrorContext(ctx, "captcha verification error", "component", "auth", "error", err)
		return ErrCaptchaFailed
	}
	if !ok {
		return ErrCaptchaFailed
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}
