package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cliniccare/pharmacy-backend/internal/inventory"
	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/google/uuid"
)

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Consumer turns published low-stock alerts into stored notification rows.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer builds a low-stock notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("low stock subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked. Malformed messages
// are acked so they never redeliver; persistence failures are nacked for retry.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != EventTypeLowStock {
		c.logg.Info(logCtx, "skipping non low-stock event")
		return true
	}

	var alert inventory.LowStockAlert
	if err := json.Unmarshal(msg.Data, &alert); err != nil {
		c.logg.Error(logCtx, "failed to decode low stock alert", err)
		return true
	}
	if alert.ItemID == uuid.Nil {
		c.logg.Warn(logCtx, "low stock alert without item id")
		return true
	}

	notification := &models.Notification{
		ID:        uuid.New(),
		ItemID:    alert.ItemID,
		ItemCode:  alert.ItemCode,
		ItemName:  alert.ItemName,
		StockQty:  alert.StockQty,
		Threshold: alert.Threshold,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "failed to store low stock notification", err)
		return false
	}

	c.logg.Info(c.logg.WithItemID(logCtx, alert.ItemID.String()), "low stock notification stored")
	return true
}
