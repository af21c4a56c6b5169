package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/8by8-org/challenge-api/internal/config"
	"github.com/8by8-org/challenge-api/internal/repository"
)

var (
	ErrInvalidOTP      = errors.New("invalid one-time passcode")
	ErrOTPExpired      = errors.New("one-time passcode expired")
	ErrTooManyAttempts = errors.New("too many passcode attempts")
)

const otpDigits = 6

// OTPService issues and verifies six digit sign-in codes. Only bcrypt
// hashes are stored and each code can be used once.
type OTPService struct {
	store       repository.OTPStore
	mailer      Mailer
	ttl         time.Duration
	maxAttempts int
	cost        int
	now         func() time.Time
}

func NewOTPService(store repository.OTPStore, mailer Mailer, cfg *config.Config) *OTPService {
	return &OTPService{
		store:       store,
		mailer:      mailer,
		ttl:         cfg.OTPTTL,
		maxAttempts: cfg.OTPMaxAttempts,
		cost:        bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// Issue replaces any outstanding code for email and mails the new one.
func (s *OTPService) Issue(ctx context.Context, email string) error {
	code, err := generateOTP()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash passcode: %w", err)
	}
	if err := s.store.SaveOTP(ctx, email, string(hash), s.now().Add(s.ttl)); err != nil {
		return fmt.Errorf("failed to store passcode: %w", err)
	}
	if err := s.mailer.SendOTP(ctx, email, code); err != nil {
		return fmt.Errorf("failed to send passcode: %w", err)
	}
	return nil
}

func (s *OTPService) Verify(ctx context.Context, email, code string) error {
	rec, err := s.store.LatestOTP(ctx, email)
	if errors.Is(err, repository.ErrOTPNotFound) {
		return ErrInvalidOTP
	}
	if err != nil {
		return err
	}

	if !s.now().Before(rec.ExpiresAt) {
		return ErrOTPExpired
	}
	if rec.Attempts >= s.maxAttempts {
		return ErrTooManyAttempts
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)); err != nil {
		if err := s.store.MarkOTPAttempt(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		return ErrInvalidOTP
	}

	if err := s.store.ConsumeOTP(ctx, rec.ID); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return ErrInvalidOTP
		}
		return err
	}
	return nil
}

// PurgeExpired deletes codes that expired or were used before now.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredOTPs(ctx, s.now())
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
