package dto

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CompletionThreshold is the number of badges that completes a challenge.
const CompletionThreshold = 8

// ChallengeDuration is how long a challenge runs from sign-up or restart.
const ChallengeDuration = 8 * 24 * time.Hour

type UserType string

const (
	UserTypeChallenger UserType = "challenger"
	UserTypePlayer     UserType = "player"
	UserTypeHybrid     UserType = "hybrid"
)

func (t UserType) Valid() bool {
	switch t {
	case UserTypeChallenger, UserTypePlayer, UserTypeHybrid:
		return true
	}
	return false
}

type Action string

const (
	ActionElectionReminders Action = "electionReminders"
	ActionVoterRegistration Action = "voterRegistration"
	ActionSharedChallenge   Action = "sharedChallenge"
)

func (a Action) Valid() bool {
	switch a {
	case ActionElectionReminders, ActionVoterRegistration, ActionSharedChallenge:
		return true
	}
	return false
}

// ValidAvatar reports whether avatar is one of the selectable avatars "0" to "3".
func ValidAvatar(avatar string) bool {
	return len(avatar) == 1 && avatar[0] >= '0' && avatar[0] <= '3'
}

var (
	ErrMissingUID     = errors.New("user is missing uid")
	ErrInvalidUser    = errors.New("invalid user record")
	ErrInvalidBadge   = errors.New("badge must be either an action badge or a player badge")
	ErrTooManyBadges  = errors.New("user holds more badges than the completion threshold")
	ErrInvalidPayload = errors.New("invalid badge event")
)

type CompletedActions struct {
	ElectionReminders bool `json:"electionReminders"`
	RegisterToVote    bool `json:"registerToVote"`
	SharedChallenge   bool `json:"sharedChallenge"`
}

// Has reports whether the flag for action is set.
func (c CompletedActions) Has(action Action) bool {
	switch action {
	case ActionElectionReminders:
		return c.ElectionReminders
	case ActionVoterRegistration:
		return c.RegisterToVote
	case ActionSharedChallenge:
		return c.SharedChallenge
	}
	return false
}

// Badge is either an action badge (Action set) or a player badge
// (PlayerName and PlayerAvatar set), never both.
type Badge struct {
	Action       Action `json:"action,omitempty"`
	PlayerName   string `json:"playerName,omitempty"`
	PlayerAvatar string `json:"playerAvatar,omitempty"`
}

func (b Badge) IsActionBadge() bool { return b.Action != "" }

func (b Badge) Validate() error {
	isAction := b.Action != ""
	isPlayer := b.PlayerName != "" || b.PlayerAvatar != ""
	if isAction == isPlayer {
		return ErrInvalidBadge
	}
	if isAction && !b.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidBadge, b.Action)
	}
	return nil
}

type ChallengerSummary struct {
	ChallengerName   string `json:"challengerName"`
	ChallengerAvatar string `json:"challengerAvatar"`
}

// InvitedBy identifies the challenger that referred a player.
type InvitedBy struct {
	ChallengerInviteCode string `json:"challengerInviteCode"`
	ChallengerName       string `json:"challengerName"`
	ChallengerAvatar     string `json:"challengerAvatar"`
}

type User struct {
	UID                   string              `json:"uid"`
	Email                 string              `json:"email"`
	Name                  string              `json:"name"`
	Avatar                string              `json:"avatar"`
	Type                  UserType            `json:"type"`
	CompletedActions      CompletedActions    `json:"completedActions"`
	Badges                []Badge             `json:"badges"`
	ChallengeEndTimestamp int64               `json:"challengeEndTimestamp"`
	CompletedChallenge    bool                `json:"completedChallenge"`
	RedeemedAward         bool                `json:"redeemedAward"`
	ContributedTo         []ChallengerSummary `json:"contributedTo"`
	InviteCode            string              `json:"inviteCode"`
}

// Validate checks the record received from the network before it is
// allowed into session state.
func (u *User) Validate() error {
	if u == nil {
		return ErrInvalidUser
	}
	if u.UID == "" {
		return ErrMissingUID
	}
	if !u.Type.Valid() {
		return fmt.Errorf("%w: unknown user type %q", ErrInvalidUser, u.Type)
	}
	if len(u.Badges) > CompletionThreshold {
		return ErrTooManyBadges
	}
	for i, b := range u.Badges {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("badge %d: %w", i, err)
		}
	}
	return nil
}

// DaysRemaining returns the whole days left in the challenge, rounded up
// and never negative.
func (u *User) DaysRemaining(now time.Time) int {
	remaining := time.Unix(u.ChallengeEndTimestamp, 0).Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// CanRestartChallenge reports whether the challenge window has closed.
func (u *User) CanRestartChallenge(now time.Time) bool {
	return u.DaysRemaining(now) == 0
}

type UserResponse struct {
	User *User `json:"user"`
}

type SignInResponse struct {
	User      *User      `json:"user"`
	InvitedBy *InvitedBy `json:"invitedBy"`
}

// SessionResponse is the server snapshot a session store is initialized from.
type SessionResponse struct {
	User           *User      `json:"user"`
	InvitedBy      *InvitedBy `json:"invitedBy"`
	EmailForSignIn string     `json:"emailForSignIn"`
}
