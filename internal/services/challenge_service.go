package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/repository"
)

var ErrChallengeActive = errors.New("challenge is still running")

// BadgePublisher fans badge insertions out to realtime subscribers.
type BadgePublisher interface {
	Publish(ev dto.BadgeEvent)
}

type ChallengeService struct {
	store     repository.UserRepository
	publisher BadgePublisher
	now       func() time.Time
}

func NewChallengeService(store repository.UserRepository, publisher BadgePublisher) *ChallengeService {
	return &ChallengeService{store: store, publisher: publisher, now: time.Now}
}

// Award records action for the user and publishes every badge the award
// inserted, including one granted to the inviting challenger.
func (s *ChallengeService) Award(ctx context.Context, userID string, action dto.Action) (*dto.User, error) {
	res, err := s.store.AwardActionBadge(ctx, userID, action)
	if err != nil {
		return nil, err
	}
	for _, ins := range res.Inserted {
		slog.InfoContext(ctx, "badge awarded", "component", "challenge", "user_id", ins.UserID, "action", string(action))
		if s.publisher != nil {
			s.publisher.Publish(dto.NewBadgeInsertEvent(ins.UserID, ins.Badge))
		}
	}
	return res.User, nil
}

// Restart opens a new eight day window once the current one has closed.
func (s *ChallengeService) Restart(ctx context.Context, userID string) (*dto.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !user.CanRestartChallenge(now) {
		return nil, ErrChallengeActive
	}
	return s.store.RestartChallenge(ctx, userID, now.Add(dto.ChallengeDuration))
}

func (s *ChallengeService) User(ctx context.Context, userID string) (*dto.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// Session returns what a client needs to initialize its session store.
func (s *ChallengeService) Session(ctx context.Context, userID string) (*dto.SessionResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	invitedBy, err := s.store.GetInvitedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.SessionResponse{User: user, InvitedBy: invitedBy}, nil
}

// ResolveInvite looks up the challenger behind an invite code.
func (s *ChallengeService) ResolveInvite(ctx context.Context, code string) (*dto.InvitedBy, error) {
	challenger, err := s.store.GetUserByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &dto.InvitedBy{
		ChallengerInviteCode: challenger.InviteCode,
		ChallengerName:       challenger.Name,
		ChallengerAvatar:     challenger.Avatar,
	}, nil
}
