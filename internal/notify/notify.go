package notify

import (
	"context"
	"errors"
	"time"

	"github.com/TbhX/centx-backend/pkg/engine"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	errorOperationNotify = "notify"
	errorSubjectEvent    = "event"
	errorCodeCreate      = "create"
	errorCodeList        = "list"
	errorCodeMarkRead    = "mark_read"
	errorCodeNotFound    = "not_found"
)

// ErrNotificationNotFound is returned when marking a notification that does
// not belong to the user.
var ErrNotificationNotFound = errors.New("notification not found")

// Notification represents the notifications table.
type Notification struct {
	NotificationID   string    `gorm:"type:uuid;primaryKey"`
	RecipientID      string    `gorm:"not null;index:idx_notifications_recipient_created,priority:1"`
	Kind             string    `gorm:"not null"`
	ActorID          string    `gorm:"not null"`
	ActorDisplayName string    `gorm:"not null"`
	PostID           string    `gorm:""`
	ReactionKind     string    `gorm:""`
	Read             bool      `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index:idx_notifications_recipient_created,priority:2"`
}

func (Notification) TableName() string { return "notifications" }

func (notification *Notification) BeforeCreate(tx *gorm.DB) error {
	if notification.NotificationID == "" {
		notification.NotificationID = uuid.NewString()
	}
	return nil
}

// Emitter persists engine events. It implements engine.Notifier; delivery to
// clients happens by polling the list endpoint.
type Emitter struct {
	db *gorm.DB
}

// NewEmitter returns an Emitter backed by gorm.DB.
func NewEmitter(db *gorm.DB) *Emitter {
	return &Emitter{db: db}
}

// Migrate creates or updates the notifications table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Notification{})
}

// Notify stores one emitted event.
func (emitter *Emitter) Notify(ctx context.Context, event engine.NotificationEvent) error {
	model := Notification{
		RecipientID:      event.RecipientID.String(),
		Kind:             string(event.Kind),
		ActorID:          event.ActorID.String(),
		ActorDisplayName: event.ActorDisplayName,
		PostID:           event.PostID.String(),
		ReactionKind:     event.ReactionKind.String(),
		Read:             event.Read,
		CreatedAt:        time.Unix(event.CreatedUnixUTC, 0).UTC(),
	}
	if err := emitter.db.WithContext(ctx).Create(&model).Error; err != nil {
		return engine.WrapError(errorOperationNotify, errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

// List returns the newest notifications for a recipient.
func (emitter *Emitter) List(ctx context.Context, recipientID engine.UserID, limit int) ([]Notification, error) {
	var rows []Notification
	err := emitter.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, engine.WrapError(errorOperationNotify, errorSubjectEvent, errorCodeList, err)
	}
	return rows, nil
}

// MarkRead flags one notification as read, scoped to the recipient.
func (emitter *Emitter) MarkRead(ctx context.Context, recipientID engine.UserID, notificationID string) error {
	result := emitter.db.WithContext(ctx).Model(&Notification{}).
		Where("notification_id = ? AND recipient_id = ?", notificationID, recipientID.String()).
		Update("read", true)
	if result.Error != nil {
		return engine.WrapError(errorOperationNotify, errorSubjectEvent, errorCodeMarkRead, result.Error)
	}
	if result.RowsAffected == 0 {
		return engine.WrapError(errorOperationNotify, errorSubjectEvent, errorCodeNotFound, ErrNotificationNotFound)
	}
	return nil
}
