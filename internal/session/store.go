package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/8by8-org/challenge-api/internal/dto"
)

const (
	RouteSignInWithOTP = "/signin-with-otp"
	RoutePlayerWelcome = "/playerwelcome"
)

// Navigator receives route changes requested by store operations.
type Navigator interface {
	Push(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Push(route string) { f(route) }

// State is an immutable snapshot of the session. Callers must not modify
// the values it points to.
type State struct {
	User           *dto.User
	InvitedBy      *dto.InvitedBy
	EmailForSignIn string
}

func (s State) SignedIn() bool { return s.User != nil }

// NeedsPlayerWelcome reports whether the session arrived through a
// challenger's invite and should be sent to the player welcome page.
func (s State) NeedsPlayerWelcome() bool { return s.InvitedBy != nil }

type snapshot struct {
	closed bool
	state  State
}

// Store owns the session state of one user agent. Every operation makes
// at most one request and, once it resolves, replaces the state in a
// single atomic swap. A failed request leaves the state untouched.
type Store struct {
	client   *Client
	nav      Navigator
	realtime Realtime
	onChange func(State)
	logger   *slog.Logger

	current  atomic.Pointer[snapshot]
	listener *badgeListener
}

type Option func(*Store)

func WithNavigator(n Navigator) Option {
	return func(s *Store) { s.nav = n }
}

// WithRealtime enables the badge listener started by Mount.
func WithRealtime(rt Realtime) Option {
	return func(s *Store) { s.realtime = rt }
}

// WithOnChange registers a callback invoked after every state replacement.
func WithOnChange(fn func(State)) Option {
	return func(s *Store) { s.onChange = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(client *Client, initial State, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&snapshot{state: initial})
	if s.realtime != nil {
		s.listener = newBadgeListener(s.realtime, s.signedInUserID, s.refreshFor, s.logger)
	}
	return s
}

// Restore builds a store from the server's current session snapshot.
func Restore(ctx context.Context, client *Client, opts ...Option) (*Store, error) {
	snap, err := client.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	return NewStore(client, State{
		User:           snap.User,
		InvitedBy:      snap.InvitedBy,
		EmailForSignIn: snap.EmailForSignIn,
	}, opts...), nil
}

// State returns the current snapshot.
func (s *Store) State() State {
	return s.current.Load().state
}

// Mount starts the badge listener for the signed-in user, if any.
func (s *Store) Mount(ctx context.Context) error {
	if s.current.Load().closed {
		return ErrClosed
	}
	if s.listener == nil {
		return nil
	}
	return s.listener.mount(ctx)
}

// Close ends the store's lifetime. Responses that resolve afterwards are
// discarded and their operations return ErrClosed.
func (s *Store) Close() {
	for {
		cur := s.current.Load()
		if cur.closed {
			return
		}
		if s.current.CompareAndSwap(cur, &snapshot{closed: true, state: cur.state}) {
			break
		}
	}
	if s.listener != nil {
		s.listener.unmount()
	}
}

func (s *Store) SignUpWithEmail(ctx context.Context, email, name, avatar, captchaToken string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	req := dto.SignUpRequest{Email: email, Name: name, Avatar: avatar, CaptchaToken: captchaToken}
	if err := s.client.SignUpWithEmail(ctx, req); err != nil {
		return err
	}
	return s.setEmailForSignIn(email)
}

func (s *Store) SendOTPToEmail(ctx context.Context, email, captchaToken string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.client.SendOTPToEmail(ctx, dto.SendOTPRequest{Email: email, CaptchaToken: captchaToken}); err != nil {
		return err
	}
	return s.setEmailForSignIn(email)
}

// ResendOTP requests a new code for the address awaiting sign-in. State is
// not modified.
func (s *Store) ResendOTP(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.client.ResendOTP(ctx, dto.ResendOTPRequest{Email: s.State().EmailForSignIn}); err != nil {
		return err
	}
	return s.ensureOpen()
}

func (s *Store) SignInWithOTP(ctx context.Context, otp string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	resp, err := s.client.SignInWithOTP(ctx, dto.SignInRequest{Email: s.State().EmailForSignIn, OTP: otp})
	if err != nil {
		return err
	}
	return s.commit(func(st State) (State, bool) {
		st.User = resp.User
		st.InvitedBy = resp.InvitedBy
		return st, true
	})
}

func (s *Store) SignOut(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.client.SignOut(ctx); err != nil {
		return err
	}
	return s.commit(func(st State) (State, bool) {
		st.User = nil
		return st, true
	})
}

func (s *Store) GotElectionReminders(ctx context.Context) error {
	return s.awardAction(ctx, dto.ActionElectionReminders, s.client.AwardElectionRemindersBadge)
}

func (s *Store) RegisteredToVote(ctx context.Context) error {
	return s.awardAction(ctx, dto.ActionVoterRegistration, s.client.AwardRegisterToVoteBadge)
}

func (s *Store) ShareChallenge(ctx context.Context) error {
	return s.awardAction(ctx, dto.ActionSharedChallenge, s.client.ShareChallenge)
}

func (s *Store) RestartChallenge(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !s.State().SignedIn() {
		return nil
	}
	user, err := s.client.RestartChallenge(ctx)
	if err != nil {
		return err
	}
	return s.replaceUser(user)
}

// RefreshUser fetches the latest user record and replaces the current one.
func (s *Store) RefreshUser(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	user, err := s.client.RefreshUser(ctx)
	if err != nil {
		return err
	}
	return s.replaceUser(user)
}

// awardAction skips the request when nobody is signed in or the action is
// already recorded.
func (s *Store) awardAction(ctx context.Context, action dto.Action, call func(context.Context) (*dto.User, error)) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	user := s.State().User
	if user == nil || user.CompletedActions.Has(action) {
		return nil
	}
	updated, err := call(ctx)
	if err != nil {
		return err
	}
	return s.replaceUser(updated)
}

// refreshFor applies a refresh only while uid is still the signed-in user,
// so a listener racing a sign-out cannot resurrect the old session.
func (s *Store) refreshFor(ctx context.Context, uid string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	user, err := s.client.RefreshUser(ctx)
	if err != nil {
		return err
	}
	_, err = s.apply(func(st State) (State, bool) {
		if st.User == nil || st.User.UID != uid || user.UID != uid {
			return st, false
		}
		st.User = user
		return st, true
	})
	return err
}

func (s *Store) replaceUser(user *dto.User) error {
	return s.commit(func(st State) (State, bool) {
		st.User = user
		return st, true
	})
}

func (s *Store) setEmailForSignIn(email string) error {
	err := s.commit(func(st State) (State, bool) {
		st.EmailForSignIn = email
		return st, true
	})
	if err != nil {
		return err
	}
	if s.nav != nil {
		s.nav.Push(RouteSignInWithOTP)
	}
	return nil
}

func (s *Store) ensureOpen() error {
	if s.current.Load().closed {
		return ErrClosed
	}
	return nil
}

// commit applies update and then lets the badge listener catch up with
// whoever is signed in now. The listener reads the latest state itself, so
// racing commits cannot leave it on a stale user, and a subscription that
// failed to open earlier is retried.
func (s *Store) commit(update func(State) (State, bool)) error {
	changed, err := s.apply(update)
	if err != nil || !changed || s.listener == nil {
		return err
	}
	if err := s.listener.sync(); err != nil {
		s.logger.Warn("badge listener out of sync", "user_id", s.signedInUserID(), "error", err)
	}
	return nil
}

// apply swaps in the state produced by update. Racing updates are applied
// in the order they win the swap. Event handlers use apply directly since
// they run on the subscription the listener may be closing.
func (s *Store) apply(update func(State) (State, bool)) (bool, error) {
	for {
		cur := s.current.Load()
		if cur.closed {
			return false, ErrClosed
		}
		next, ok := update(cur.state)
		if !ok {
			return false, nil
		}
		if !s.current.CompareAndSwap(cur, &snapshot{state: next}) {
			continue
		}
		if s.onChange != nil {
			s.onChange(next)
		}
		return true, nil
	}
}

func (s *Store) signedInUserID() string {
	cur := s.current.Load()
	if cur.closed {
		return ""
	}
	return userID(cur.state.User)
}

func userID(u *dto.User) string {
	if u == nil {
		return ""
	}
	return u.UID
}
