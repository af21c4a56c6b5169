package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/8by8-org/challenge-api/internal/database"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/models"
)

// GormStore persists users and passcodes in PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Ping(ctx context.Context) error {
	return database.Ping(ctx, s.db)
}

func (s *GormStore) GetUserByID(ctx context.Context, id string) (*dto.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return loadUser(s.db.WithContext(ctx), "id = ?", uid)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*dto.User, error) {
	return loadUser(s.db.WithContext(ctx), "email = ?", normalizeEmail(email))
}

func (s *GormStore) GetUserByInviteCode(ctx context.Context, code string) (*dto.User, error) {
	return loadUser(s.db.WithContext(ctx), "invite_code = ?", code)
}

func (s *GormStore) GetInvitedBy(ctx context.Context, userID string) (*dto.InvitedBy, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	var inv models.Invitation
	err = s.db.WithContext(ctx).Where("player_id = ?", uid).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return &dto.InvitedBy{
		ChallengerInviteCode: inv.ChallengerInviteCode,
		ChallengerName:       inv.ChallengerName,
		ChallengerAvatar:     inv.ChallengerAvatar,
	}, nil
}

func (s *GormStore) CreateUser(ctx context.Context, nu NewUser) (*dto.User, error) {
	var created *dto.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		email := normalizeEmail(nu.Email)

		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		if err := tx.Model(&models.User{}).Where("invite_code = ?", nu.InviteCode).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrInviteCodeTaken
		}

		m := models.User{
			ID:                    uuid.New(),
			Email:                 email,
			Name:                  nu.Name,
			Avatar:                nu.Avatar,
			Type:                  string(nu.Type),
			ChallengeEndTimestamp: nu.ChallengeEnd.Unix(),
			InviteCode:            nu.InviteCode,
		}
		if err := tx.Omit(clause.Associations).Create(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		if err := tx.Create(&models.CompletedActions{UserID: m.ID}).Error; err != nil {
			return err
		}

		if nu.InvitedBy != nil {
			var ch models.User
			err := tx.Where("invite_code = ?", nu.InvitedBy.ChallengerInviteCode).First(&ch).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("inviting challenger: %w", ErrUserNotFound)
			}
			if err != nil {
				return err
			}
			inv := models.Invitation{
				PlayerID:             m.ID,
				ChallengerID:         ch.ID,
				ChallengerInviteCode: ch.InviteCode,
				ChallengerName:       ch.Name,
				ChallengerAvatar:     ch.Avatar,
			}
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}
		}

		u, err := loadUser(tx, "id = ?", m.ID)
		if err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func actionColumn(action dto.Action) (string, error) {
	switch action {
	case dto.ActionElectionReminders:
		return "election_reminders", nil
	case dto.ActionVoterRegistration:
		return "register_to_vote", nil
	case dto.ActionSharedChallenge:
		return "shared_challenge", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, action)
}

// AwardActionBadge runs the whole award in one transaction. The player row
// is locked before the inviting challenger's row.
func (s *GormStore) AwardActionBadge(ctx context.Context, userID string, action dto.Action) (*AwardResult, error) {
	column, err := actionColumn(action)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	res := &AwardResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var player models.User
		if err := lockUser(tx, uid, &player); err != nil {
			return err
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{column: true}),
		}).Create(&models.CompletedActions{UserID: uid}).Error
		if err != nil {
			return fmt.Errorf("set %s: %w", column, err)
		}

		badges, err := userBadges(tx, uid)
		if err != nil {
			return err
		}
		if canAddActionBadge(badges, action) {
			a := string(action)
			if err := tx.Create(&models.Badge{UserID: uid, Action: &a}).Error; err != nil {
				return fmt.Errorf("insert action badge: %w", err)
			}
			badges = append(badges, dto.Badge{Action: action})
			res.Inserted = append(res.Inserted, BadgeInsert{UserID: userID, Badge: dto.Badge{Action: action}})
		}
		if len(badges) >= dto.CompletionThreshold && !player.CompletedChallenge {
			if err := tx.Model(&player).Update("completed_challenge", true).Error; err != nil {
				return err
			}
		}

		inserted, err := awardChallenger(tx, &player)
		if err != nil {
			return err
		}
		if inserted != nil {
			res.Inserted = append(res.Inserted, *inserted)
		}

		u, err := loadUser(tx, "id = ?", uid)
		if err != nil {
			return err
		}
		res.User = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// awardChallenger gives the inviting challenger a player badge the first
// time the player completes an action.
func awardChallenger(tx *gorm.DB, player *models.User) (*BadgeInsert, error) {
	var inv models.Invitation
	err := tx.Where("player_id = ?", player.ID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var count int64
	err = tx.Model(&models.Contribution{}).
		Where("player_id = ? AND challenger_id = ?", player.ID, inv.ChallengerID).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}

	var challenger models.User
	if err := lockUser(tx, inv.ChallengerID, &challenger); err != nil {
		return nil, err
	}
	badges, err := userBadges(tx, challenger.ID)
	if err != nil {
		return nil, err
	}

	var inserted *BadgeInsert
	if len(badges) < dto.CompletionThreshold {
		name, avatar := player.Name, player.Avatar
		if err := tx.Create(&models.Badge{UserID: challenger.ID, PlayerName: &name, PlayerAvatar: &avatar}).Error; err != nil {
			return nil, fmt.Errorf("insert player badge: %w", err)
		}
		badges = append(badges, dto.Badge{PlayerName: name, PlayerAvatar: avatar})
		inserted = &BadgeInsert{
			UserID: challenger.ID.String(),
			Badge:  dto.Badge{PlayerName: name, PlayerAvatar: avatar},
		}
	}
	if len(badges) >= dto.CompletionThreshold && !challenger.CompletedChallenge {
		if err := tx.Model(&challenger).Update("completed_challenge", true).Error; err != nil {
			return nil, err
		}
	}

	contribution := models.Contribution{
		PlayerID:         player.ID,
		ChallengerID:     challenger.ID,
		ChallengerName:   challenger.Name,
		ChallengerAvatar: challenger.Avatar,
	}
	if err := tx.Create(&contribution).Error; err != nil {
		return nil, fmt.Errorf("record contribution: %w", err)
	}
	return inserted, nil
}

func (s *GormStore) RestartChallenge(ctx context.Context, userID string, end time.Time) (*dto.User, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	db := s.db.WithContext(ctx)
	result := db.Model(&models.User{}).Where("id = ?", uid).Update("challenge_end_timestamp", end.Unix())
	if result.Error != nil {
		return nil, fmt.Errorf("restart challenge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return loadUser(db, "id = ?", uid)
}

func (s *GormStore) SaveOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	email = normalizeEmail(email)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		err := tx.Model(&models.OneTimePasscode{}).
			Where("email = ? AND consumed_at IS NULL", email).
			Update("consumed_at", now).Error
		if err != nil {
			return err
		}
		return tx.Create(&models.OneTimePasscode{
			ID:        uuid.New(),
			Email:     email,
			CodeHash:  codeHash,
			ExpiresAt: expiresAt,
		}).Error
	})
}

func (s *GormStore) LatestOTP(ctx context.Context, email string) (*OTPRecord, error) {
	var m models.OneTimePasscode
	err := s.db.WithContext(ctx).
		Where("email = ? AND consumed_at IS NULL", normalizeEmail(email)).
		Order("created_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, err
	}
	return &OTPRecord{
		ID:        m.ID.String(),
		Email:     m.Email,
		CodeHash:  m.CodeHash,
		ExpiresAt: m.ExpiresAt,
		Attempts:  m.Attempts,
		Consumed:  m.ConsumedAt != nil,
	}, nil
}

func (s *GormStore) MarkOTPAttempt(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.OneTimePasscode{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOTPNotFound
	}
	return nil
}

// ConsumeOTP succeeds for exactly one caller per code.
func (s *GormStore) ConsumeOTP(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.OneTimePasscode{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOTPNotFound
	}
	return nil
}

func (s *GormStore) DeleteExpiredOTPs(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR consumed_at IS NOT NULL", before).
		Delete(&models.OneTimePasscode{})
	return result.RowsAffected, result.Error
}

func lockUser(tx *gorm.DB, id uuid.UUID, out *models.User) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}

func userBadges(tx *gorm.DB, id uuid.UUID) ([]dto.Badge, error) {
	var rows []models.Badge
	if err := tx.Where("user_id = ?", id).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toBadges(rows), nil
}

func loadUser(db *gorm.DB, query string, arg any) (*dto.User, error) {
	var m models.User
	err := db.
		Preload("CompletedActions").
		Preload("Badges", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Contributions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where(query, arg).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return toDTO(&m), nil
}

func toDTO(m *models.User) *dto.User {
	u := &dto.User{
		UID:    m.ID.String(),
		Email:  m.Email,
		Name:   m.Name,
		Avatar: m.Avatar,
		Type:   dto.UserType(m.Type),
		CompletedActions: dto.CompletedActions{
			ElectionReminders: m.CompletedActions.ElectionReminders,
			RegisterToVote:    m.CompletedActions.RegisterToVote,
			SharedChallenge:   m.CompletedActions.SharedChallenge,
		},
		Badges:                toBadges(m.Badges),
		ChallengeEndTimestamp: m.ChallengeEndTimestamp,
		CompletedChallenge:    m.CompletedChallenge,
		RedeemedAward:         m.RedeemedAward,
		ContributedTo:         make([]dto.ChallengerSummary, 0, len(m.Contributions)),
		InviteCode:            m.InviteCode,
	}
	for _, c := range m.Contributions {
		u.ContributedTo = append(u.ContributedTo, dto.ChallengerSummary{
			ChallengerName:   c.ChallengerName,
			ChallengerAvatar: c.ChallengerAvatar,
		})
	}
	return u
}

func toBadges(rows []models.Badge) []dto.Badge {
	out := make([]dto.Badge, 0, len(rows))
	for _, r := range rows {
		var b dto.Badge
		if r.Action != nil {
			b.Action = dto.Action(*r.Action)
		}
		if r.PlayerName != nil {
			b.PlayerName = *r.PlayerName
		}
		if r.PlayerAvatar != nil {
			b.PlayerAvatar = *r.PlayerAvatar
		}
		out = append(out, b)
	}
	return out
}
