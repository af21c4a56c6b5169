package models

import (
	"time"

	"github.com/google/uuid"
)

// Badge rows are either action badges (Action set) or player badges
// (PlayerName and PlayerAvatar set). A user never holds more than eight.
type Badge struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Action       *string   `gorm:"size:32" json:"action,omitempty"`
	PlayerName   *string   `gorm:"size:255" json:"player_name,omitempty"`
	PlayerAvatar *string   `gorm:"size:1" json:"player_avatar,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
