package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a challenge participant. Badges, completed actions, the invite
// that brought the user in and the challengers they contributed to live
// in their own tables.
type User struct {
	ID                    uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email                 string           `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Name                  string           `gorm:"not null;size:255" json:"name"`
	Avatar                string           `gorm:"not null;size:1" json:"avatar"`
	Type                  string           `gorm:"not null;size:20;default:'challenger'" json:"type"`
	ChallengeEndTimestamp int64            `gorm:"not null" json:"challenge_end_timestamp"`
	CompletedChallenge    bool             `gorm:"not null;default:false" json:"completed_challenge"`
	RedeemedAward         bool             `gorm:"not null;default:false" json:"redeemed_award"`
	InviteCode            string           `gorm:"not null;size:64;uniqueIndex" json:"invite_code"`
	CompletedActions      CompletedActions `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"completed_actions"`
	Badges                []Badge          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"badges"`
	Invitation            *Invitation      `gorm:"foreignKey:PlayerID;constraint:OnDelete:CASCADE" json:"invited_by,omitempty"`
	Contributions         []Contribution   `gorm:"foreignKey:PlayerID;constraint:OnDelete:CASCADE" json:"contributed_to"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// CompletedActions holds the monotonic per-action flags of a user.
type CompletedActions struct {
	UserID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ElectionReminders bool      `gorm:"not null;default:false" json:"election_reminders"`
	RegisterToVote    bool      `gorm:"not null;default:false" json:"register_to_vote"`
	SharedChallenge   bool      `gorm:"not null;default:false" json:"shared_challenge"`
}
