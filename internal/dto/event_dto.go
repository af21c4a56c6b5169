package dto

import "fmt"

const (
	EventInsert = "INSERT"
	EventResync = "RESYNC"
	TableBadges = "badges"
)

// BadgeEvent is pushed over the realtime channel of the user that
// received a badge.
type BadgeEvent struct {
	Type   string      `json:"type"`
	Table  string      `json:"table"`
	Record BadgeRecord `json:"record"`
}

type BadgeRecord struct {
	UserID       string `json:"user_id"`
	Action       Action `json:"action,omitempty"`
	PlayerName   string `json:"player_name,omitempty"`
	PlayerAvatar string `json:"player_avatar,omitempty"`
}

func NewBadgeInsertEvent(userID string, b Badge) BadgeEvent {
	return BadgeEvent{
		Type:  EventInsert,
		Table: TableBadges,
		Record: BadgeRecord{
			UserID:       userID,
			Action:       b.Action,
			PlayerName:   b.PlayerName,
			PlayerAvatar: b.PlayerAvatar,
		},
	}
}

// NewResyncEvent tells a subscriber that events may have been missed and
// its view of the user should be reloaded. It never crosses the wire.
func NewResyncEvent(userID string) BadgeEvent {
	return BadgeEvent{Type: EventResync, Table: TableBadges, Record: BadgeRecord{UserID: userID}}
}

func (e BadgeEvent) Badge() Badge {
	return Badge{
		Action:       e.Record.Action,
		PlayerName:   e.Record.PlayerName,
		PlayerAvatar: e.Record.PlayerAvatar,
	}
}

func (e BadgeEvent) IsBadgeInsert() bool {
	return e.Type == EventInsert && e.Table == TableBadges
}

func (e BadgeEvent) IsResync() bool {
	return e.Type == EventResync && e.Table == TableBadges
}

func (e BadgeEvent) Validate() error {
	if !e.IsBadgeInsert() {
		return fmt.Errorf("%w: %s on %s", ErrInvalidPayload, e.Type, e.Table)
	}
	if e.Record.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidPayload)
	}
	if err := e.Badge().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
