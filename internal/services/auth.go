package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/utils"
	"gorm.io/gorm"
)

const defaultAdminUsername = "admin"

type AuthService struct {
	db        *gorm.DB
	ldap      *LDAPService
	jwtConfig *config.JWTConfig
	clock     func() time.Time
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, ldapCfg *config.LDAPConfig) *AuthService {
	return &AuthService{
		db:        db,
		ldap:      NewLDAPService(ldapCfg),
		jwtConfig: jwtCfg,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

// Session is a freshly issued access/refresh token pair.
type Session struct {
	AccessToken     string       `json:"access_token"`
	AccessExpireAt  time.Time    `json:"access_expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user,omitempty"`
}

func invalidCredentials() error {
	return newError(ErrInvalidSession, "invalid username or password")
}

// Register creates a local account.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, invalidFields("username is required")
	}
	if len(req.Password) < 6 {
		return nil, invalidFields("password must be at least 6 characters")
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Username: username,
		Password: hashed,
		Email:    strings.TrimSpace(req.Email),
		Nickname: req.Nickname,
		Role:     models.SystemRoleUser,
		AuthType: models.AuthTypeLocal,
		IsActive: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return invalidFields("username already taken")
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates against the local store or LDAP and opens a session.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, clientIP string) (*Session, error) {
	var user *models.User
	var err error

	switch req.AuthType {
	case "", models.AuthTypeLocal:
		user, err = s.localAuth(ctx, req.Username, req.Password)
	case models.AuthTypeLDAP:
		user, err = s.ldapAuth(ctx, req.Username, req.Password)
	default:
		return nil, invalidFields(fmt.Sprintf("unknown auth type %q", req.AuthType))
	}
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", now).Error; err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	session, err := s.issue(ctx, s.db.WithContext(ctx), user, clientIP, nil)
	if err != nil {
		return nil, err
	}
	session.User = user
	return session, nil
}

// issue signs an access token and stores a new refresh token. When previous
// is set it is revoked and linked to the new token.
func (s *AuthService) issue(ctx context.Context, tx *gorm.DB, user *models.User, clientIP string, previous *models.RefreshToken) (*Session, error) {
	now := s.clock()
	access, err := utils.GenerateToken(user.ID, user.Username, user.Role, s.jwtConfig.ExpireHour)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, hash, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(time.Duration(s.jwtConfig.RefreshExpireHour) * time.Hour),
		ClientIP:  clientIP,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	if previous != nil {
		if err := tx.Model(previous).Updates(map[string]any{
			"revoked_at":     now,
			"replaced_by_id": record.ID,
		}).Error; err != nil {
			return nil, fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	return &Session{
		AccessToken:     access,
		AccessExpireAt:  now.Add(time.Duration(s.jwtConfig.ExpireHour) * time.Hour),
		RefreshToken:    refresh,
		RefreshExpireAt: record.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP string) (*Session, error) {
	if refreshToken == "" {
		return nil, invalidFields("refresh token required")
	}

	var session *Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		err := tx.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrInvalidSession, "invalid refresh token")
		}
		if err != nil {
			return err
		}
		if !stored.Active(s.clock()) {
			return newError(ErrInvalidSession, "refresh token expired or revoked")
		}

		user, err := actingUser(tx, stored.UserID)
		if err != nil {
			return err
		}
		session, err = s.issue(ctx, tx, user, clientIP, &stored)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", s.clock()).Error
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

func (s *AuthService) localAuth(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? AND auth_type = ?", username, models.AuthTypeLocal).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, invalidCredentials()
	}
	if !user.IsActive {
		return nil, newError(ErrInvalidSession, "user is disabled")
	}
	return &user, nil
}

// ldapAuth binds against the directory and mirrors the entry into users.
func (s *AuthService) ldapAuth(ctx context.Context, username, password string) (*models.User, error) {
	if !s.ldap.Enabled() {
		return nil, invalidFields("LDAP login is not enabled")
	}
	entry, err := s.ldap.Authenticate(username, password)
	if err != nil {
		componentLog("auth").Warn().Err(err).Str("username", username).Msg("LDAP login failed")
		return nil, invalidCredentials()
	}

	db := s.db.WithContext(ctx)
	var user models.User
	err = db.Where("username = ? AND auth_type = ?", entry.Username, models.AuthTypeLDAP).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username: entry.Username,
			Email:    entry.Email,
			Nickname: entry.Nickname,
			Role:     models.SystemRoleUser,
			AuthType: models.AuthTypeLDAP,
			IsActive: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create LDAP user: %w", err)
		}
		return &user, nil
	case err != nil:
		return nil, err
	}

	if !user.IsActive {
		return nil, newError(ErrInvalidSession, "user is disabled")
	}
	if err := db.Model(&user).Updates(map[string]any{"email": entry.Email, "nickname": entry.Nickname}).Error; err != nil {
		return nil, fmt.Errorf("sync LDAP user: %w", err)
	}
	return &user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return actingUser(s.db.WithContext(ctx), id)
}

func (s *AuthService) LDAPEnabled() bool {
	return s.ldap.Enabled()
}

// CreateAdminIfNotExists seeds a local admin account on an empty install.
func (s *AuthService) CreateAdminIfNotExists(ctx context.Context, password string) error {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	return db.Create(&models.User{
		Username: defaultAdminUsername,
		Password: hashed,
		Nickname: "Administrator",
		Role:     models.SystemRoleAdmin,
		AuthType: models.AuthTypeLocal,
		IsActive: true,
	}).Error
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	db := s.db.WithContext(ctx)
	user, err := actingUser(db, userID)
	if err != nil {
		return err
	}
	if user.AuthType != models.AuthTypeLocal {
		return invalidFields("LDAP users cannot change their password here")
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return invalidFields("incorrect old password")
	}
	if len(req.NewPassword) < 6 {
		return invalidFields("password must be at least 6 characters")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return db.Model(user).Update("password", hashed).Error
}
