package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/gorm"
)

// UserService is the administrator's view of accounts.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type UserListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Username string `form:"username"`
	Role     string `form:"role"`
	AuthType string `form:"auth_type"`
}

type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
	Nickname *string `json:"nickname"`
}

func (s *UserService) List(ctx context.Context, req *UserListRequest) (*Page[models.User], error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if req.Username != "" {
		query = query.Where("username LIKE ?", "%"+req.Username+"%")
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.AuthType != "" {
		query = query.Where("auth_type = ?", req.AuthType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	var users []models.User
	if err := query.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &Page[models.User]{Total: total, Page: page, PageSize: pageSize, Items: users}, nil
}

func (s *UserService) load(db *gorm.DB, actorID, userID uint, verb string) (*models.User, error) {
	if actorID == userID {
		return nil, invalidFields(fmt.Sprintf("cannot %s your own account", verb))
	}
	var user models.User
	err := db.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &user, nil
}

// Update changes role, active flag or nickname. Deactivating a user revokes
// their refresh tokens, so the session ends when the access token expires.
func (s *UserService) Update(ctx context.Context, actorID, userID uint, req *UpdateUserRequest) (*models.User, error) {
	updates := make(map[string]any)
	if req.Role != nil {
		if *req.Role != models.SystemRoleAdmin && *req.Role != models.SystemRoleUser {
			return nil, invalidFields("invalid role, must be 'admin' or 'user'")
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
	}
	if len(updates) == 0 {
		return nil, invalidFields("no fields to update")
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if user, err = s.load(tx, actorID, userID, "modify"); err != nil {
			return err
		}
		if err := tx.Model(user).Updates(updates).Error; err != nil {
			return fmt.Errorf("update user %d: %w", userID, err)
		}
		if req.IsActive != nil && !*req.IsActive {
			if err := revokeSessions(tx, userID); err != nil {
				return err
			}
		}
		return tx.First(user, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete soft-deletes the account. Group roles stay so history keeps its
// owners, but the user can no longer act.
func (s *UserService) Delete(ctx context.Context, actorID, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.load(tx, actorID, userID, "delete")
		if err != nil {
			return err
		}
		if err := tx.Delete(user).Error; err != nil {
			return fmt.Errorf("delete user %d: %w", userID, err)
		}
		return revokeSessions(tx, userID)
	})
}

func revokeSessions(tx *gorm.DB, userID uint) error {
	err := tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("revoke sessions of user %d: %w", userID, err)
	}
	return nil
}
