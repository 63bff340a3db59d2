package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/internal/models"
	"github.com/deedox/platform/internal/utils"
	"github.com/deedox/platform/pkg/logger"
	"github.com/deedox/platform/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = response.NewUnauthorized("invalid email or password")
	ErrUserDisabled       = response.NewForbidden("account is disabled")
	ErrEmailTaken         = response.NewConflict("email is already registered")
)

type AuthService struct {
	db          *gorm.DB
	feed        *ChangeFeed
	ldapService *LDAPService
	otp         *OTPService
	jwtConfig   *config.JWTConfig
}

func NewAuthService(db *gorm.DB, cfg *config.Config, feed *ChangeFeed, otp *OTPService) *AuthService {
	return &AuthService{
		db:          db,
		feed:        feed,
		ldapService: NewLDAPService(&cfg.LDAP),
		otp:         otp,
		jwtConfig:   &cfg.JWT,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name" binding:"max=200"`
	Phone    string `json:"phone" binding:"max=50"`
}

type LoginResult struct {
	AccessToken     string       `json:"token"`
	AccessExpireAt  time.Time    `json:"expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user"`
}

// Signup registers a local account. New accounts are always students.
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest, clientIP, userAgent string) (*LoginResult, error) {
	email := normalizeEmail(req.Email)

	existing, err := s.findByEmail(ctx, email)
	switch {
	case err == nil && !existing.DeletedAt.Valid:
		return nil, ErrEmailTaken
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.Password = hashed
		existing.FullName = req.FullName
		existing.Phone = req.Phone
		existing.AuthType = "local"
		if err := s.reopen(ctx, existing); err != nil {
			return nil, err
		}
		return s.issueSession(ctx, existing, clientIP, userAgent)
	}

	user := models.User{
		Email:    email,
		Password: hashed,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     models.RoleStudent,
		AuthType: "local",
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	s.feed.PublishRow(user.TableName(), ChangeInsert, rowKey(user.ID), &user)
	logger.Info().Uint("user_id", user.ID).Msg("student signed up")

	return s.issueSession(ctx, &user, clientIP, userAgent)
}

// findByEmail includes removed accounts, which keep their email in the
// unique index.
func (s *AuthService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Unscoped().Where("email = ?", email).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// reopen brings a removed account back as an active student.
func (s *AuthService) reopen(ctx context.Context, user *models.User) error {
	user.DeletedAt = gorm.DeletedAt{}
	user.Role = models.RoleStudent
	user.IsActive = true
	if err := s.db.WithContext(ctx).Unscoped().Save(user).Error; err != nil {
		return err
	}
	s.feed.PublishRow(user.TableName(), ChangeInsert, rowKey(user.ID), user)
	logger.Info().Uint("user_id", user.ID).Msg("removed account reopened")
	return nil
}

// Login authenticates with a password against the local store or LDAP.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	var user *models.User
	var err error

	switch req.AuthType {
	case "", "local":
		user, err = s.localAuth(ctx, req.Email, req.Password)
	case "ldap":
		user, err = s.ldapAuth(ctx, req.Email, req.Password)
	default:
		return nil, response.NewBadRequest("invalid auth type")
	}
	if err != nil {
		return nil, err
	}

	return s.issueSession(ctx, user, clientIP, userAgent)
}

// RequestOTP mails a one-time code to email.
func (s *AuthService) RequestOTP(ctx context.Context, email string) (string, error) {
	return s.otp.RequestCode(ctx, email)
}

// LoginWithOTP verifies the code and signs the owner of the email in,
// creating a student account on first use.
func (s *AuthService) LoginWithOTP(ctx context.Context, challengeID, code, clientIP, userAgent string) (*LoginResult, error) {
	email, err := s.otp.Verify(ctx, challengeID, code)
	if err != nil {
		return nil, err
	}

	user, err := s.findByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &models.User{Email: email, Role: models.RoleStudent, AuthType: "local", IsActive: true}
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, err
		}
		s.feed.PublishRow(user.TableName(), ChangeInsert, rowKey(user.ID), user)
	case err != nil:
		return nil, err
	case user.DeletedAt.Valid:
		user.Password = ""
		user.AuthType = "local"
		if err := s.reopen(ctx, user); err != nil {
			return nil, err
		}
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	return s.issueSession(ctx, user, clientIP, userAgent)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, clientIP, userAgent string) (*LoginResult, error) {
	accessHours := s.accessTokenExpireHours()
	token, err := utils.GenerateToken(user.ID, user.Email, user.Role, accessHours)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshRecord := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   refreshHash,
		ExpiresAt:   now.Add(s.refreshTokenTTL()),
		CreatedByIP: clientIP,
		UserAgent:   truncate(userAgent, 255),
	}
	if err := s.db.WithContext(ctx).Create(&refreshRecord).Error; err != nil {
		return nil, err
	}

	user.LastLogin = &now
	s.db.WithContext(ctx).Model(user).Update("last_login", now)

	return &LoginResult{
		AccessToken:     token,
		AccessExpireAt:  now.Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    refreshToken,
		RefreshExpireAt: refreshRecord.ExpiresAt,
		User:            user,
	}, nil
}

// Refresh rotates a refresh token: the old one is revoked and linked to
// its replacement.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP, userAgent string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, response.NewBadRequest("refresh token required")
	}

	var stored models.RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewUnauthorized("invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if stored.RevokedAt != nil {
		return nil, response.NewUnauthorized("refresh token revoked")
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, response.NewUnauthorized("refresh token expired")
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, stored.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("user not found")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	accessHours := s.accessTokenExpireHours()
	newAccessToken, err := utils.GenerateToken(user.ID, user.Email, user.Role, accessHours)
	if err != nil {
		return nil, err
	}
	newRefreshToken, newRefreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	newRefresh := models.RefreshToken{
		UserID:      user.ID,
		TokenHash:   newRefreshHash,
		ExpiresAt:   now.Add(s.refreshTokenTTL()),
		CreatedByIP: clientIP,
		UserAgent:   truncate(userAgent, 255),
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newRefresh).Error; err != nil {
			return err
		}
		return tx.Model(&stored).Updates(map[string]interface{}{
			"revoked_at":           now,
			"replaced_by_token_id": newRefresh.ID,
		}).Error
	}); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:     newAccessToken,
		AccessExpireAt:  now.Add(time.Duration(accessHours) * time.Hour),
		RefreshToken:    newRefreshToken,
		RefreshExpireAt: newRefresh.ExpiresAt,
		User:            &user,
	}, nil
}

func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", time.Now()).Error
}

// PurgeExpiredRefreshTokens removes tokens that can no longer be used.
func (s *AuthService) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", time.Now()).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *AuthService) accessTokenExpireHours() int {
	if s.jwtConfig.ExpireHour <= 0 {
		return 24
	}
	return s.jwtConfig.ExpireHour
}

func (s *AuthService) refreshTokenTTL() time.Duration {
	days := s.jwtConfig.RefreshExpireDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	return token, hashRefreshToken(token), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) localAuth(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ? AND auth_type = ?", normalizeEmail(email), "local").First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *AuthService) ldapAuth(ctx context.Context, username, password string) (*models.User, error) {
	ldapUser, err := s.ldapService.Authenticate(username, password)
	if err != nil {
		logger.Warn().Err(err).Str("username", username).Msg("LDAP authentication failed")
		return nil, ErrInvalidCredentials
	}

	email := normalizeEmail(ldapUser.Email)
	if email == "" {
		return nil, response.NewBadRequest("directory account has no email address")
	}

	user, err := s.findByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = &models.User{
			Email:    email,
			FullName: ldapUser.FullName,
			Role:     models.RoleStudent,
			AuthType: "ldap",
			IsActive: true,
		}
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, err
		}
		s.feed.PublishRow(user.TableName(), ChangeInsert, rowKey(user.ID), user)
	case err != nil:
		return nil, err
	case user.DeletedAt.Valid:
		user.Password = ""
		user.FullName = ldapUser.FullName
		user.AuthType = "ldap"
		if err := s.reopen(ctx, user); err != nil {
			return nil, err
		}
	}
	if user.AuthType != "ldap" {
		return nil, response.NewConflict("a local account already uses this email")
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}

	if ldapUser.FullName != "" && ldapUser.FullName != user.FullName {
		s.db.WithContext(ctx).Model(user).Update("full_name", ldapUser.FullName)
	}
	return user, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAdminIfNotExists seeds the first administrator.
func (s *AuthService) CreateAdminIfNotExists(ctx context.Context, email, password string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		Email:    normalizeEmail(email),
		Password: hashedPassword,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
		AuthType: "local",
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return err
	}
	logger.Info().Str("email", admin.Email).Msg("default admin account created")
	return nil
}

func (s *AuthService) IsLDAPEnabled() bool {
	return s.ldapService.IsEnabled()
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword sets a new password. Accounts created by one-time code
// have no password yet and may set one without the old password.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return response.NewNotFound("user not found")
	}
	if user.AuthType != "local" {
		return response.NewBadRequest("directory users cannot change password here")
	}
	if user.Password != "" && !utils.CheckPassword(req.OldPassword, user.Password) {
		return response.NewBadRequest("incorrect old password")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&user).Update("password", hashed).Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
