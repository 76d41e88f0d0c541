package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/TbhX/centx-backend/pkg/engine"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestEmitter(t *testing.T) *Emitter {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "notify.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewEmitter(db)
}

func mustUserID(t *testing.T, raw string) engine.UserID {
	t.Helper()
	value, err := engine.NewUserID(raw)
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return value
}

func TestNotifyPersistsAndListReturnsNewestFirst(t *testing.T) {
	t.Parallel()
	emitter := newTestEmitter(t)
	ctx := context.Background()
	bobID := mustUserID(t, "bob")

	events := []engine.NotificationEvent{
		{RecipientID: bobID, Kind: engine.NotificationFollow, ActorID: mustUserID(t, "alice"), ActorDisplayName: "Alice", CreatedUnixUTC: 100},
		{RecipientID: bobID, Kind: engine.NotificationLike, ActorID: mustUserID(t, "carol"), ActorDisplayName: "Carol", CreatedUnixUTC: 200},
	}
	for _, event := range events {
		if err := emitter.Notify(ctx, event); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	rows, err := emitter.List(ctx, bobID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rows))
	}
	if rows[0].Kind != string(engine.NotificationLike) {
		t.Fatalf("expected newest first, got %s", rows[0].Kind)
	}
	if rows[0].Read {
		t.Fatalf("fresh notification marked read")
	}
}

func TestListScopesToRecipient(t *testing.T) {
	t.Parallel()
	emitter := newTestEmitter(t)
	ctx := context.Background()

	err := emitter.Notify(ctx, engine.NotificationEvent{
		RecipientID:      mustUserID(t, "bob"),
		Kind:             engine.NotificationLike,
		ActorID:          mustUserID(t, "alice"),
		ActorDisplayName: "Alice",
		CreatedUnixUTC:   100,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	rows, err := emitter.List(ctx, mustUserID(t, "alice"), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("notification leaked to the wrong recipient: %+v", rows)
	}
}

func TestMarkReadScopesToRecipient(t *testing.T) {
	t.Parallel()
	emitter := newTestEmitter(t)
	ctx := context.Background()
	bobID := mustUserID(t, "bob")

	err := emitter.Notify(ctx, engine.NotificationEvent{
		RecipientID:      bobID,
		Kind:             engine.NotificationLike,
		ActorID:          mustUserID(t, "alice"),
		ActorDisplayName: "Alice",
		CreatedUnixUTC:   100,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	rows, err := emitter.List(ctx, bobID, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list: %v %d", err, len(rows))
	}
	notificationID := rows[0].NotificationID

	err = emitter.MarkRead(ctx, mustUserID(t, "alice"), notificationID)
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for foreign recipient, got %v", err)
	}
	if err := emitter.MarkRead(ctx, bobID, notificationID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	rows, err = emitter.List(ctx, bobID, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list after read: %v %d", err, len(rows))
	}
	if !rows[0].Read {
		t.Fatalf("notification still unread")
	}
	if err := emitter.MarkRead(ctx, bobID, "no-such-id"); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for unknown id, got %v", err)
	}
}
