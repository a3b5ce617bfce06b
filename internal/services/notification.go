package services

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/fuseproject/fuse/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notifier receives membership events after their transaction commits.
// Implementations must not fail the caller.
type Notifier interface {
	UserApplied(ctx context.Context, app *models.GroupApplication)
	UserJoined(ctx context.Context, user *models.User, group models.GroupRef)
	ApplicationDeclined(ctx context.Context, app *models.GroupApplication)
	InterviewInvitationSent(ctx context.Context, inv *models.GroupInvitation)
	JoinInvitationSent(ctx context.Context, inv *models.GroupInvitation)
}

type NopNotifier struct{}

func (NopNotifier) UserApplied(context.Context, *models.GroupApplication) {}
func (NopNotifier) UserJoined(context.Context, *models.User, models.GroupRef) {}
func (NopNotifier) ApplicationDeclined(context.Context, *models.GroupApplication) {}
func (NopNotifier) InterviewInvitationSent(context.Context, *models.GroupInvitation) {}
func (NopNotifier) JoinInvitationSent(context.Context, *models.GroupInvitation) {}

// NotificationService turns events into queued delivery tasks.
type NotificationService struct {
	queue TaskQueue
}

func NewNotificationService(queue TaskQueue) *NotificationService {
	return &NotificationService{queue: queue}
}

func (s *NotificationService) enqueue(task *NotificationTask) {
	if err := s.queue.Enqueue(task); err != nil {
		notificationFailures.WithLabelValues(string(task.Event)).Inc()
		componentLog("notification").Warn().Err(err).
			Str("event", string(task.Event)).
			Str("group_kind", string(task.GroupKind)).
			Uint("group_id", task.GroupID).
			Msg("failed to enqueue notification")
	}
}

func (s *NotificationService) UserApplied(_ context.Context, app *models.GroupApplication) {
	s.enqueue(&NotificationTask{
		Event:         models.NotificationUserApplied,
		GroupKind:     app.GroupKind,
		GroupID:       app.GroupID,
		UserID:        app.SenderID,
		ApplicationID: &app.ID,
	})
}

func (s *NotificationService) UserJoined(_ context.Context, user *models.User, group models.GroupRef) {
	s.enqueue(&NotificationTask{
		Event:     models.NotificationUserJoined,
		GroupKind: group.Kind,
		GroupID:   group.ID,
		UserID:    user.ID,
	})
}

func (s *NotificationService) ApplicationDeclined(_ context.Context, app *models.GroupApplication) {
	s.enqueue(&NotificationTask{
		Event:         models.NotificationApplicationDeclined,
		GroupKind:     app.GroupKind,
		GroupID:       app.GroupID,
		UserID:        app.SenderID,
		ApplicationID: &app.ID,
	})
}

func (s *NotificationService) InterviewInvitationSent(_ context.Context, inv *models.GroupInvitation) {
	s.enqueue(&NotificationTask{
		Event:        models.NotificationInterviewInvitation,
		GroupKind:    inv.GroupKind,
		GroupID:      inv.GroupID,
		UserID:       inv.ReceiverID,
		InvitationID: &inv.ID,
	})
}

func (s *NotificationService) JoinInvitationSent(_ context.Context, inv *models.GroupInvitation) {
	s.enqueue(&NotificationTask{
		Event:        models.NotificationJoinInvitation,
		GroupKind:    inv.GroupKind,
		GroupID:      inv.GroupID,
		UserID:       inv.ReceiverID,
		InvitationID: &inv.ID,
	})
}

// NotificationProcessor stores in-app notifications for a task and mails
// the receivers when mail is enabled.
type NotificationProcessor struct {
	db            *gorm.DB
	mailer        Mailer
	relationships *RelationshipService
	hub           *InboxHub
}

// NewNotificationProcessor accepts a nil mailer to keep delivery in-app only.
func NewNotificationProcessor(db *gorm.DB, mailer Mailer) *NotificationProcessor {
	return &NotificationProcessor{db: db, mailer: mailer, relationships: NewRelationshipService(db)}
}

// WithHub streams stored notifications to connected receivers.
func (p *NotificationProcessor) WithHub(hub *InboxHub) *NotificationProcessor {
	p.hub = hub
	return p
}

func (p *NotificationProcessor) Process(ctx context.Context, task *NotificationTask) error {
	ref := models.GroupRef{Kind: task.GroupKind, ID: task.GroupID}
	group, err := models.NewGroup(ref.Kind)
	if err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Unscoped().First(group, ref.ID).Error; err != nil {
		return fmt.Errorf("load %s: %w", ref, err)
	}
	groupName := group.Base().Name

	subject, err := p.loadUser(ctx, task.UserID)
	if err != nil {
		return err
	}

	var receivers []uint
	var message string
	switch task.Event {
	case models.NotificationUserApplied:
		receivers, err = p.relationships.UsersWithRole(ctx, ref, models.RoleAdmin, models.RoleOwner)
		message = fmt.Sprintf("%s applied to join %s", subject.DisplayName(), groupName)
	case models.NotificationUserJoined:
		receivers, err = p.relationships.UsersWithRole(ctx, ref, models.RoleAdmin, models.RoleOwner)
		receivers = without(receivers, subject.ID)
		message = fmt.Sprintf("%s joined %s", subject.DisplayName(), groupName)
	case models.NotificationApplicationDeclined:
		receivers = []uint{subject.ID}
		message = fmt.Sprintf("Your application to %s was declined", groupName)
	case models.NotificationInterviewInvitation:
		receivers = []uint{subject.ID}
		message = fmt.Sprintf("You are invited to an interview for %s", groupName)
	case models.NotificationJoinInvitation:
		receivers = []uint{subject.ID}
		message = fmt.Sprintf("You are invited to join %s", groupName)
	default:
		return fmt.Errorf("unknown notification event %q", task.Event)
	}
	if err != nil {
		return err
	}

	return p.deliver(ctx, receivers, &models.Notification{
		Type:          task.Event,
		GroupKind:     ref.Kind,
		GroupID:       ref.ID,
		InvitationID:  task.InvitationID,
		ApplicationID: task.ApplicationID,
		Message:       message,
		Payload: datatypes.JSONMap{
			"group_name": groupName,
			"user_id":    subject.ID,
			"username":   subject.Username,
		},
	})
}

func (p *NotificationProcessor) loadUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := p.db.WithContext(ctx).Unscoped().First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// deliver writes one copy of tmpl per receiver, then mails them.
func (p *NotificationProcessor) deliver(ctx context.Context, receivers []uint, tmpl *models.Notification) error {
	if len(receivers) == 0 {
		return nil
	}

	rows := make([]models.Notification, 0, len(receivers))
	for _, id := range receivers {
		n := *tmpl
		n.ReceiverID = id
		rows = append(rows, n)
	}
	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("store notifications: %w", err)
	}
	if p.hub != nil {
		for _, n := range rows {
			p.hub.Publish(n)
		}
	}

	if p.mailer == nil {
		return nil
	}

	var emails []string
	if err := p.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND email <> ''", receivers).
		Pluck("email", &emails).Error; err != nil {
		return fmt.Errorf("load receiver emails: %w", err)
	}

	body := "<html><body><p>" + html.EscapeString(tmpl.Message) + "</p></body></html>"
	if err := p.mailer.Send(ctx, emails, "[Fuse] "+tmpl.Message, body); err != nil {
		// In-app rows are already stored, so a mail failure is not retried.
		notificationFailures.WithLabelValues(string(tmpl.Type)).Inc()
		componentLog("notification").Warn().Err(err).Str("event", string(tmpl.Type)).Msg("failed to send email")
	}
	return nil
}

func without(ids []uint, drop uint) []uint {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// InboxService is the read side of in-app notifications.
type InboxService struct {
	db *gorm.DB
}

func NewInboxService(db *gorm.DB) *InboxService {
	return &InboxService{db: db}
}

func (s *InboxService) List(ctx context.Context, userID uint, unreadOnly bool, page, pageSize int) (*Page[models.Notification], error) {
	page, pageSize = normalizePage(page, pageSize)

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("receiver_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	var items []models.Notification
	if err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return &Page[models.Notification]{Total: total, Page: page, PageSize: pageSize, Items: items}, nil
}

func (s *InboxService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND receiver_id = ?", notificationID, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("notification")
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	return s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

func (s *InboxService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
