package repository

import (
	"context"
	"errors"
	"time"

	"github.com/8by8-org/challenge-api/internal/dto"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrInviteCodeTaken = errors.New("invite code already in use")
	ErrOTPNotFound     = errors.New("no passcode issued for email")
	ErrInvalidAction   = errors.New("unknown action")
)

// NewUser describes a user to create. InvitedBy is set when the user
// signed up through a challenger's invite link.
type NewUser struct {
	Email        string
	Name         string
	Avatar       string
	Type         dto.UserType
	InviteCode   string
	ChallengeEnd time.Time
	InvitedBy    *dto.InvitedBy
}

// BadgeInsert is a badge written during an award, addressed to its owner.
type BadgeInsert struct {
	UserID string
	Badge  dto.Badge
}

// AwardResult carries the updated user and every badge row inserted by the
// award, including one granted to the inviting challenger.
type AwardResult struct {
	User     *dto.User
	Inserted []BadgeInsert
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*dto.User, error)
	GetUserByEmail(ctx context.Context, email string) (*dto.User, error)
	GetUserByInviteCode(ctx context.Context, code string) (*dto.User, error)
	// GetInvitedBy returns nil without error for users that were not invited.
	GetInvitedBy(ctx context.Context, userID string) (*dto.InvitedBy, error)
	CreateUser(ctx context.Context, u NewUser) (*dto.User, error)
	// AwardActionBadge records action for the user. It is idempotent per
	// user and action.
	AwardActionBadge(ctx context.Context, userID string, action dto.Action) (*AwardResult, error)
	RestartChallenge(ctx context.Context, userID string, end time.Time) (*dto.User, error)
}

type OTPRecord struct {
	ID        string
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	Consumed  bool
}

type OTPStore interface {
	// SaveOTP stores a new code hash. Older unconsumed codes for the same
	// email stop being returned by LatestOTP.
	SaveOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error
	LatestOTP(ctx context.Context, email string) (*OTPRecord, error)
	MarkOTPAttempt(ctx context.Context, id string) error
	ConsumeOTP(ctx context.Context, id string) error
	DeleteExpiredOTPs(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	UserRepository
	OTPStore
	Ping(ctx context.Context) error
}

// canAddActionBadge applies the badge rules shared by every implementation:
// at most one action badge per action and never more than the completion
// threshold in total.
func canAddActionBadge(badges []dto.Badge, action dto.Action) bool {
	if len(badges) >= dto.CompletionThreshold {
		return false
	}
	for _, b := range badges {
		if b.Action == action {
			return false
		}
	}
	return true
}

func setActionFlag(c *dto.CompletedActions, action dto.Action) {
	switch action {
	case dto.ActionElectionReminders:
		c.ElectionReminders = true
	case dto.ActionVoterRegistration:
		c.RegisterToVote = true
	case dto.ActionSharedChallenge:
		c.SharedChallenge = true
	}
}
