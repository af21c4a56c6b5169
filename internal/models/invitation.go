package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation records the challenger whose invite code a player signed up with.
type Invitation struct {
	PlayerID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"player_id"`
	ChallengerID         uuid.UUID `gorm:"type:uuid;not null;index" json:"challenger_id"`
	ChallengerInviteCode string    `gorm:"not null;size:64" json:"challenger_invite_code"`
	ChallengerName       string    `gorm:"not null;size:255" json:"challenger_name"`
	ChallengerAvatar     string    `gorm:"not null;size:1" json:"challenger_avatar"`
	CreatedAt            time.Time `json:"created_at"`
}

// Contribution is written when a player's first action earns their
// challenger a player badge.
type Contribution struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	PlayerID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contributions_pair" json:"player_id"`
	ChallengerID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contributions_pair" json:"challenger_id"`
	ChallengerName   string    `gorm:"not null;size:255" json:"challenger_name"`
	ChallengerAvatar string    `gorm:"not null;size:1" json:"challenger_avatar"`
	CreatedAt        time.Time `json:"created_at"`
}
