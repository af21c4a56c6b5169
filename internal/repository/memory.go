package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/8by8-org/challenge-api/internal/dto"
)

type memoryUser struct {
	user         dto.User
	invitedBy    *dto.InvitedBy
	challengerID string
	contributed  map[string]bool
}

// MemoryStore keeps everything in process memory. It backs local
// development with STORAGE_DRIVER=memory and the handler tests.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]*memoryUser
	byEmail map[string]string
	byCode  map[string]string
	otps    map[string]*OTPRecord
	otpSeq  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*memoryUser),
		byEmail: make(map[string]string),
		byCode:  make(map[string]string),
		otps:    make(map[string]*OTPRecord),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*dto.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(&mu.user), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*dto.User, error) {
	s.mu.Lock()
	id, ok := s.byEmail[normalizeEmail(email)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *MemoryStore) GetUserByInviteCode(ctx context.Context, code string) (*dto.User, error) {
	s.mu.Lock()
	id, ok := s.byCode[code]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *MemoryStore) GetInvitedBy(_ context.Context, userID string) (*dto.InvitedBy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if mu.invitedBy == nil {
		return nil, nil
	}
	inv := *mu.invitedBy
	return &inv, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, nu NewUser) (*dto.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(nu.Email)
	if _, ok := s.byEmail[email]; ok {
		return nil, ErrEmailTaken
	}
	if _, ok := s.byCode[nu.InviteCode]; ok {
		return nil, ErrInviteCodeTaken
	}

	mu := &memoryUser{
		user: dto.User{
			UID:                   uuid.NewString(),
			Email:                 email,
			Name:                  nu.Name,
			Avatar:                nu.Avatar,
			Type:                  nu.Type,
			Badges:                []dto.Badge{},
			ChallengeEndTimestamp: nu.ChallengeEnd.Unix(),
			ContributedTo:         []dto.ChallengerSummary{},
			InviteCode:            nu.InviteCode,
		},
		contributed: make(map[string]bool),
	}

	if nu.InvitedBy != nil {
		challengerID, ok := s.byCode[nu.InvitedBy.ChallengerInviteCode]
		if !ok {
			return nil, fmt.Errorf("inviting challenger: %w", ErrUserNotFound)
		}
		ch := s.users[challengerID].user
		mu.challengerID = challengerID
		mu.invitedBy = &dto.InvitedBy{
			ChallengerInviteCode: ch.InviteCode,
			ChallengerName:       ch.Name,
			ChallengerAvatar:     ch.Avatar,
		}
	}

	s.users[mu.user.UID] = mu
	s.byEmail[email] = mu.user.UID
	s.byCode[nu.InviteCode] = mu.user.UID
	return cloneUser(&mu.user), nil
}

func (s *MemoryStore) AwardActionBadge(_ context.Context, userID string, action dto.Action) (*AwardResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	res := &AwardResult{}
	u := &mu.user
	setActionFlag(&u.CompletedActions, action)
	if canAddActionBadge(u.Badges, action) {
		b := dto.Badge{Action: action}
		u.Badges = append(u.Badges, b)
		res.Inserted = append(res.Inserted, BadgeInsert{UserID: u.UID, Badge: b})
	}
	if len(u.Badges) >= dto.CompletionThreshold {
		u.CompletedChallenge = true
	}

	if mu.invitedBy != nil && !mu.contributed[mu.challengerID] {
		if ch, ok := s.users[mu.challengerID]; ok {
			cu := &ch.user
			if len(cu.Badges) < dto.CompletionThreshold {
				b := dto.Badge{PlayerName: u.Name, PlayerAvatar: u.Avatar}
				cu.Badges = append(cu.Badges, b)
				res.Inserted = append(res.Inserted, BadgeInsert{UserID: cu.UID, Badge: b})
			}
			if len(cu.Badges) >= dto.CompletionThreshold {
				cu.CompletedChallenge = true
			}
			mu.contributed[mu.challengerID] = true
			u.ContributedTo = append(u.ContributedTo, dto.ChallengerSummary{
				ChallengerName:   cu.Name,
				ChallengerAvatar: cu.Avatar,
			})
		}
	}

	res.User = cloneUser(u)
	return res, nil
}

func (s *MemoryStore) RestartChallenge(_ context.Context, userID string, end time.Time) (*dto.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	mu.user.ChallengeEndTimestamp = end.Unix()
	return cloneUser(&mu.user), nil
}

func (s *MemoryStore) SaveOTP(_ context.Context, email, codeHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalizeEmail(email)
	for _, rec := range s.otps {
		if rec.Email == email {
			rec.Consumed = true
		}
	}
	rec := &OTPRecord{ID: uuid.NewString(), Email: email, CodeHash: codeHash, ExpiresAt: expiresAt}
	s.otps[rec.ID] = rec
	s.otpSeq = append(s.otpSeq, rec.ID)
	return nil
}

func (s *MemoryStore) LatestOTP(_ context.Context, email string) (*OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalizeEmail(email)
	for i := len(s.otpSeq) - 1; i >= 0; i-- {
		rec, ok := s.otps[s.otpSeq[i]]
		if ok && rec.Email == email && !rec.Consumed {
			out := *rec
			return &out, nil
		}
	}
	return nil, ErrOTPNotFound
}

func (s *MemoryStore) MarkOTPAttempt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.otps[id]
	if !ok {
		return ErrOTPNotFound
	}
	rec.Attempts++
	return nil
}

func (s *MemoryStore) ConsumeOTP(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.otps[id]
	if !ok || rec.Consumed {
		return ErrOTPNotFound
	}
	rec.Consumed = true
	return nil
}

func (s *MemoryStore) DeleteExpiredOTPs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	kept := s.otpSeq[:0]
	for _, id := range s.otpSeq {
		rec := s.otps[id]
		if rec.ExpiresAt.Before(before) || rec.Consumed {
			delete(s.otps, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	s.otpSeq = kept
	return deleted, nil
}

func cloneUser(u *dto.User) *dto.User {
	out := *u
	out.Badges = slices.Clone(u.Badges)
	out.ContributedTo = slices.Clone(u.ContributedTo)
	if out.Badges == nil {
		out.Badges = []dto.Badge{}
	}
	if out.ContributedTo == nil {
		out.ContributedTo = []dto.ChallengerSummary{}
	}
	return &out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
