package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/pkg/response"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const (
	otpPeriod      = 300 // seconds a code stays valid
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5
)

var (
	ErrOTPInvalid = response.NewUnauthorized("invalid or expired code")
	ErrOTPLocked  = response.NewTooManyRequests("too many attempts, request a new code")
)

var otpOpts = totp.ValidateOpts{
	Period:    otpPeriod,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// OTPService issues and checks one-time sign-in codes sent by email. Each
// challenge gets its own TOTP secret; the code is never stored.
type OTPService struct {
	db    *gorm.DB
	queue MailQueue
	now   func() time.Time
}

func NewOTPService(db *gorm.DB, queue MailQueue) *OTPService {
	return &OTPService{db: db, queue: queue, now: time.Now}
}

// RequestCode creates a challenge for email and mails the code. It returns
// the challenge id the client must send back with the code.
func (s *OTPService) RequestCode(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", response.NewBadRequest("email is required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Deedox",
		AccountName: email,
		Period:      otpPeriod,
		SecretSize:  20,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP secret: %w", err)
	}

	now := s.now()
	code, err := totp.GenerateCodeCustom(key.Secret(), now, otpOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}

	challenge := models.OTPChallenge{
		ID:        uuid.New().String(),
		Email:     email,
		Secret:    key.Secret(),
		ExpiresAt: now.Add(otpTTL),
	}
	if err := s.db.WithContext(ctx).Create(&challenge).Error; err != nil {
		return "", err
	}

	mail := &Mail{
		To:       email,
		Subject:  "Your Deedox sign-in code",
		TextBody: fmt.Sprintf("Your sign-in code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes())),
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, mail); err != nil {
			return "", fmt.Errorf("failed to queue sign-in code: %w", err)
		}
	}
	return challenge.ID, nil
}

// Verify consumes the challenge when code matches and returns its email.
func (s *OTPService) Verify(ctx context.Context, challengeID, code string) (string, error) {
	var ch models.OTPChallenge
	err := s.db.WithContext(ctx).Where("id = ?", challengeID).Take(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrOTPInvalid
	}
	if err != nil {
		return "", err
	}

	now := s.now()
	if ch.ConsumedAt != nil || now.After(ch.ExpiresAt) {
		return "", ErrOTPInvalid
	}
	if ch.Attempts >= otpMaxAttempts {
		return "", ErrOTPLocked
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), ch.Secret, now, otpOpts)
	if err != nil || !ok {
		s.db.WithContext(ctx).Model(&ch).Update("attempts", gorm.Expr("attempts + 1"))
		return "", ErrOTPInvalid
	}

	res := s.db.WithContext(ctx).Model(&models.OTPChallenge{}).
		Where("id = ? AND consumed_at IS NULL", ch.ID).
		Update("consumed_at", now)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		// consumed concurrently
		return "", ErrOTPInvalid
	}
	return ch.Email, nil
}

// PurgeExpired deletes challenges past their expiry.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.OTPChallenge{})
	return res.RowsAffected, res.Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
