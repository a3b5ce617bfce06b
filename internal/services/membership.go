package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/internal/permissions"
	"github.com/fuseproject/fuse/backend/internal/utils"
	"gorm.io/gorm"
)

// Options carries the collaborators shared by the membership services.
// Zero fields fall back to in-process defaults.
type Options struct {
	Notifier  Notifier
	Publisher Publisher
	Locker    Locker
	Tokens    utils.TokenGenerator
	Holidays  *HolidayService
	Clock     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Notifier == nil {
		o.Notifier = NopNotifier{}
	}
	if o.Publisher == nil {
		o.Publisher = NoopPublisher{}
	}
	if o.Locker == nil {
		o.Locker = NewKeyedLocker()
	}
	if o.Tokens == nil {
		o.Tokens = utils.UUIDGenerator{}
	}
	if o.Holidays == nil {
		o.Holidays = NewHolidayService()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

func (o Options) now() time.Time {
	return o.Clock().UTC()
}

// Membership bundles the services that make up the membership engine.
type Membership struct {
	Groups       *GroupService
	Applications *ApplicationService
	Invitations  *InvitationService
	Interviews   *InterviewService
}

func NewMembership(db *gorm.DB, opts Options) *Membership {
	opts = opts.withDefaults()
	interviews := &InterviewService{db: db, opts: opts}
	invitations := &InvitationService{db: db, opts: opts, interviews: interviews}
	applications := &ApplicationService{db: db, opts: opts, invitations: invitations}
	groups := &GroupService{db: db, opts: opts, applications: applications}
	return &Membership{
		Groups:       groups,
		Applications: applications,
		Invitations:  invitations,
		Interviews:   interviews,
	}
}

// Page is one page of a listing.
type Page[T any] struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Items    []T   `json:"items"`
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// afterCommit collects side effects that run only once the transaction has
// committed.
type afterCommit []func()

func (a *afterCommit) add(f func()) { *a = append(*a, f) }

func (a afterCommit) run() {
	for _, f := range a {
		f()
	}
}

// inTx runs fn in one transaction and then the collected side effects.
func inTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, after *afterCommit) error) error {
	var after afterCommit
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, &after)
	}); err != nil {
		return err
	}
	after.run()
	return nil
}

// actingUser resolves the session user. Unknown and disabled accounts are
// invalid sessions.
func actingUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := tx.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrInvalidSession, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.IsActive {
		return nil, newError(ErrInvalidSession, "user is disabled")
	}
	return &user, nil
}

// loadGroup returns the live group for ref. Soft-deleted groups are not found.
func loadGroup(tx *gorm.DB, ref models.GroupRef) (models.Group, error) {
	group, err := models.NewGroup(ref.Kind)
	if err != nil {
		return nil, invalidFields(err.Error())
	}
	err = tx.First(group, ref.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(string(ref.Kind))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	return group, nil
}

func permissionFor(ctx context.Context, tx *gorm.DB, userID uint, group models.Group) (*permissions.Permission, error) {
	return permissions.NewFactory(tx).For(ctx, userID, group)
}

func lockKey(parts ...any) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += fmt.Sprint(p)
	}
	return key
}
