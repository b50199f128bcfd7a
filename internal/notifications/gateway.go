package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/cliniccare/pharmacy-backend/internal/inventory"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
)

// EventTypeLowStock tags low-stock alert messages on the wire.
const EventTypeLowStock = "inventory.low_stock"

// PubSubGateway publishes low-stock alerts to the configured topic.
type PubSubGateway struct {
	publisher *pubsub.Publisher
	logg      *logger.Logger
}

// NewPubSubGateway builds a gateway around the low-stock topic publisher.
func NewPubSubGateway(publisher *pubsub.Publisher, logg *logger.Logger) (*PubSubGateway, error) {
	if publisher == nil {
		return nil, fmt.Errorf("low stock publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PubSubGateway{publisher: publisher, logg: logg}, nil
}

// PublishLowStock sends one alert and waits for the server ack.
func (g *PubSubGateway) PublishLowStock(ctx context.Context, alert inventory.LowStockAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding low stock alert: %w", err)
	}

	result := g.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type": EventTypeLowStock,
			"item_code":  alert.ItemCode,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing low stock alert: %w", err)
	}
	return nil
}

// LogGateway is the fallback alert sink for deployments without Pub/Sub. The
// alert still lands in the structured log stream.
type LogGateway struct {
	logg *logger.Logger
}

// NewLogGateway builds a log-only alert gateway.
func NewLogGateway(logg *logger.Logger) (*LogGateway, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &LogGateway{logg: logg}, nil
}

// PublishLowStock logs the alert.
func (g *LogGateway) PublishLowStock(ctx context.Context, alert inventory.LowStockAlert) error {
	ctx = g.logg.WithFields(ctx, map[string]any{
		"item_id":   alert.ItemID.String(),
		"item_code": alert.ItemCode,
		"stock_qty": alert.StockQty,
		"threshold": alert.Threshold,
	})
	g.logg.Warn(ctx, "item stock below threshold")
	return nil
}
