package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/dto"
	"github.com/8by8-org/challenge-api/internal/repository"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendOTP(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return nil
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type capturePublisher struct {
	events []dto.BadgeEvent
}

func (p *capturePublisher) Publish(ev dto.BadgeEvent) { p.events = append(p.events, ev) }

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		SessionExpiry:  time.Hour,
		OTPTTL:         15 * time.Minute,
		OTPMaxAttempts: 3,
	}
}

type fixture struct {
	store  *repository.MemoryStore
	mailer *captureMailer
	otp    *OTPService
	auth   *AuthService
}

func newFixture(captchaPass bool) *fixture {
	cfg := testConfig()
	store := repository.NewMemoryStore()
	mailer := &captureMailer{}
	otp := NewOTPService(store, mailer, cfg)
	otp.cost = bcrypt.MinCost
	return &fixture{
		store:  store,
		mailer: mailer,
		otp:    otp,
		auth:   NewAuthService(store, cfg, StaticCaptcha{Pass: captchaPass}, otp),
	}
}

func (f *fixture) signUp(t *testing.T, email, name, inviteCode string) *dto.User {
	t.Helper()
	u, err := f.auth.SignUp(context.Background(), &dto.SignUpRequest{
		Email: email, Name: name, Avatar: "2", CaptchaToken: "token",
	}, inviteCode, "")
	require.NoError(t, err)
	return u
}

func TestOTPVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	require.NoError(t, f.otp.Issue(ctx, "user@example.com"))
	code := f.mailer.code("user@example.com")
	require.Regexp(t, `^\d{6}$`, code)

	require.NoError(t, f.otp.Verify(ctx, "user@example.com", code))
	require.ErrorIs(t, f.otp.Verify(ctx, "user@example.com", code), ErrInvalidOTP)
}

func TestOTPAttemptLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	require.NoError(t, f.otp.Issue(ctx, "user@example.com"))
	code := f.mailer.code("user@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, f.otp.Verify(ctx, "user@example.com", wrong), ErrInvalidOTP)
	}
	require.ErrorIs(t, f.otp.Verify(ctx, "user@example.com", code), ErrTooManyAttempts)
}

func TestOTPExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	require.NoError(t, f.otp.Issue(ctx, "user@example.com"))

	f.otp.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	require.ErrorIs(t, f.otp.Verify(ctx, "user@example.com", f.mailer.code("user@example.com")), ErrOTPExpired)

	n, err := f.otp.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestTurnstileVerifier(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "secret", r.PostForm.Get("secret"))
		require.Equal(t, "10.0.0.1", r.PostForm.Get("remoteip"))
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("response") == "good" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(&config.Config{TurnstileSecretKey: "secret", TurnstileVerifyURL: srv.URL})
	ctx := context.Background()

	ok, err := v.Verify(ctx, "good", "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.Verify(ctx, "bad", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = v.Verify(ctx, "", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)
	require.EqualValues(t, 2, calls.Load())
}

func TestTurnstileVerifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(&config.Config{TurnstileVerifyURL: srv.URL})
	_, err := v.Verify(context.Background(), "token", "")
	require.Error(t, err)
}

func TestNewInviteCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9-]+-[0-9a-f]{8}$`)
	tests := []struct {
		name   string
		prefix string
	}{
		{name: "Ada Lovelace", prefix: "ada-lovelace-"},
		{name: "  ", prefix: "challenger-"},
		{name: "A very long name that keeps on going forever", prefix: "a-very-long-name-that-ke"},
	}
	for _, tt := range tests {
		code, err := NewInviteCode(tt.name)
		require.NoError(t, err)
		require.Regexp(t, pattern, code)
		require.Contains(t, code, tt.prefix)
	}

	a, _ := NewInviteCode("Ada")
	b, _ := NewInviteCode("Ada")
	require.NotEqual(t, a, b)
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		req  dto.SignUpRequest
		pass bool
		want error
	}{
		{name: "bad email", req: dto.SignUpRequest{Email: "nope", Name: "A", Avatar: "0", CaptchaToken: "t"}, pass: true, want: ErrInvalidInput},
		{name: "missing name", req: dto.SignUpRequest{Email: "a@example.com", Avatar: "0", CaptchaToken: "t"}, pass: true, want: ErrInvalidInput},
		{name: "bad avatar", req: dto.SignUpRequest{Email: "a@example.com", Name: "A", Avatar: "9", CaptchaToken: "t"}, pass: true, want: ErrInvalidInput},
		{name: "captcha", req: dto.SignUpRequest{Email: "a@example.com", Name: "A", Avatar: "0", CaptchaToken: "t"}, pass: false, want: ErrCaptchaFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.pass)
			_, err := f.auth.SignUp(ctx, &tt.req, "", "")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	challenger := f.signUp(t, "Ada@Example.com", "Ada", "")
	require.Equal(t, dto.UserTypeChallenger, challenger.Type)
	require.Equal(t, "ada@example.com", challenger.Email)
	require.NotEmpty(t, f.mailer.code("ada@example.com"))

	_, err := f.auth.SignUp(ctx, &dto.SignUpRequest{Email: "ada@example.com", Name: "Ada", Avatar: "0", CaptchaToken: "t"}, "", "")
	require.ErrorIs(t, err, ErrEmailTaken)

	player := f.signUp(t, "grace@example.com", "Grace", challenger.InviteCode)
	require.Equal(t, dto.UserTypePlayer, player.Type)

	resp, token, err := f.auth.SignIn(ctx, &dto.SignInRequest{Email: "grace@example.com", OTP: f.mailer.code("grace@example.com")})
	require.NoError(t, err)
	require.Equal(t, player.UID, resp.User.UID)
	require.Equal(t, &dto.InvitedBy{
		ChallengerInviteCode: challenger.InviteCode,
		ChallengerName:       "Ada",
		ChallengerAvatar:     "2",
	}, resp.InvitedBy)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, player.UID, sub)

	_, _, err = f.auth.SignIn(ctx, &dto.SignInRequest{Email: "ada@example.com", OTP: "12"})
	require.ErrorIs(t, err, ErrInvalidOTP)
}

func TestSignUpWithUnknownInviteCode(t *testing.T) {
	f := newFixture(true)
	u := f.signUp(t, "ada@example.com", "Ada", "missing-code")
	require.Equal(t, dto.UserTypeChallenger, u.Type)
}

func TestSendAndResendOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)

	_, err := f.auth.SendOTP(ctx, &dto.SendOTPRequest{Email: "ghost@example.com", CaptchaToken: "t"}, "")
	require.ErrorIs(t, err, ErrUserNotFound)

	f.signUp(t, "ada@example.com", "Ada", "")
	first := f.mailer.code("ada@example.com")

	email, err := f.auth.ResendOTP(ctx, &dto.ResendOTPRequest{Email: " ADA@example.com"})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", email)

	second := f.mailer.code("ada@example.com")
	if first != second {
		require.ErrorIs(t, f.otp.Verify(ctx, email, first), ErrInvalidOTP)
	}
	require.NoError(t, f.otp.Verify(ctx, email, second))
}

func TestChallengeAwardPublishesInsertedBadges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	challenger := f.signUp(t, "ada@example.com", "Ada", "")
	player := f.signUp(t, "grace@example.com", "Grace", challenger.InviteCode)

	pub := &capturePublisher{}
	svc := NewChallengeService(f.store, pub)

	u, err := svc.Award(ctx, player.UID, dto.ActionVoterRegistration)
	require.NoError(t, err)
	require.True(t, u.CompletedActions.RegisterToVote)
	require.Equal(t, []dto.BadgeEvent{
		dto.NewBadgeInsertEvent(player.UID, dto.Badge{Action: dto.ActionVoterRegistration}),
		dto.NewBadgeInsertEvent(challenger.UID, dto.Badge{PlayerName: "Grace", PlayerAvatar: "2"}),
	}, pub.events)

	_, err = svc.Award(ctx, player.UID, dto.ActionVoterRegistration)
	require.NoError(t, err)
	require.Len(t, pub.events, 2)
}

func TestChallengeRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	u := f.signUp(t, "ada@example.com", "Ada", "")
	svc := NewChallengeService(f.store, nil)

	_, err := svc.Restart(ctx, u.UID)
	require.ErrorIs(t, err, ErrChallengeActive)

	later := time.Now().Add(dto.ChallengeDuration + time.Hour)
	svc.now = func() time.Time { return later }
	restarted, err := svc.Restart(ctx, u.UID)
	require.NoError(t, err)
	require.Equal(t, later.Add(dto.ChallengeDuration).Unix(), restarted.ChallengeEndTimestamp)
	require.Equal(t, 8, restarted.DaysRemaining(later))
}

func TestChallengeSessionAndInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(true)
	challenger := f.signUp(t, "ada@example.com", "Ada", "")
	svc := NewChallengeService(f.store, nil)

	inv, err := svc.ResolveInvite(ctx, challenger.InviteCode)
	require.NoError(t, err)
	require.Equal(t, "Ada", inv.ChallengerName)

	_, err = svc.ResolveInvite(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)

	snap, err := svc.Session(ctx, challenger.UID)
	require.NoError(t, err)
	require.Equal(t, challenger, snap.User)
	require.Nil(t, snap.InvitedBy)
}
