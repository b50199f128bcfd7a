package notifications

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cliniccare/pharmacy-backend/internal/inventory"
	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	first := seedNotification(t, repo, ctx, "PARA-001", 3)
	second := seedNotification(t, repo, ctx, "IBU-200", 7)

	rows, err := svc.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two notifications, got %d", len(rows))
	}

	if err := svc.MarkRead(ctx, first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// Re-marking a read notification is a no-op, not an error.
	if err := svc.MarkRead(ctx, first.ID); err != nil {
		t.Fatalf("re-mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.MarkRead(ctx, uuid.Nil); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}

	rows, err = svc.List(ctx, ListParams{UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != second.ID {
		t.Fatalf("expected only the unread notification, got %d rows", len(rows))
	}

	count, err := svc.MarkAllRead(ctx)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one newly read notification, got %d", count)
	}
}

func TestConsumerProcess(t *testing.T) {
	t.Parallel()

	repo := &captureRepo{}
	consumer := &Consumer{repo: repo, logg: testLogger()}
	ctx := context.Background()

	alert := inventory.LowStockAlert{
		ItemID:    uuid.New(),
		ItemCode:  "PARA-001",
		ItemName:  "Paracetamol",
		StockQty:  3,
		Threshold: 10,
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		t.Fatalf("marshal alert: %v", err)
	}

	ack := consumer.process(ctx, &pubsub.Message{
		ID:         "m1",
		Data:       payload,
		Attributes: map[string]string{"event_type": EventTypeLowStock},
	})
	if !ack {
		t.Fatalf("expected ack for valid alert")
	}
	if repo.last == nil || repo.last.ItemID != alert.ItemID || repo.last.StockQty != 3 {
		t.Fatalf("notification not persisted: %+v", repo.last)
	}

	// Foreign events and garbage payloads are acked without persisting.
	repo.last = nil
	if ack := consumer.process(ctx, &pubsub.Message{ID: "m2", Attributes: map[string]string{"event_type": "orders.created"}}); !ack {
		t.Fatalf("expected ack for foreign event")
	}
	if ack := consumer.process(ctx, &pubsub.Message{ID: "m3", Data: []byte("{"), Attributes: map[string]string{"event_type": EventTypeLowStock}}); !ack {
		t.Fatalf("expected ack for malformed payload")
	}
	if repo.last != nil {
		t.Fatalf("unexpected persistence for skipped messages")
	}

	// Persistence failures are nacked for redelivery.
	failing := &captureRepo{fail: true}
	consumer = &Consumer{repo: failing, logg: testLogger()}
	if ack := consumer.process(ctx, &pubsub.Message{ID: "m4", Data: payload, Attributes: map[string]string{"event_type": EventTypeLowStock}}); ack {
		t.Fatalf("expected nack when store fails")
	}
}

func TestLogGatewayNeverFails(t *testing.T) {
	t.Parallel()

	gateway, err := NewLogGateway(testLogger())
	if err != nil {
		t.Fatalf("new log gateway: %v", err)
	}
	if err := gateway.PublishLowStock(context.Background(), inventory.LowStockAlert{ItemID: uuid.New()}); err != nil {
		t.Fatalf("log gateway publish: %v", err)
	}
}

type captureRepo struct {
	last *models.Notification
	fail bool
}

func (r *captureRepo) Create(_ context.Context, notification *models.Notification) error {
	if r.fail {
		return gorm.ErrInvalidDB
	}
	r.last = notification
	return nil
}

func seedNotification(t *testing.T, repo Repository, ctx context.Context, code string, qty int) *models.Notification {
	t.Helper()
	notification := &models.Notification{
		ID:        uuid.New(),
		ItemID:    uuid.New(),
		ItemCode:  code,
		ItemName:  "Item " + code,
		StockQty:  qty,
		Threshold: 10,
	}
	if err := repo.Create(ctx, notification); err != nil {
		t.Fatalf("seed notification: %v", err)
	}
	// Keep created_at strictly increasing for deterministic ordering.
	time.Sleep(5 * time.Millisecond)
	return notification
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate notifications: %v", err)
	}
	return conn
}
