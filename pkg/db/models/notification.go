package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification stores a persisted low-stock alert produced by the worker.
type Notification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ItemID    uuid.UUID  `gorm:"column:item_id;type:uuid;not null" json:"item_id"`
	ItemCode  string     `gorm:"column:item_code;not null" json:"item_code"`
	ItemName  string     `gorm:"column:item_name;not null" json:"item_name"`
	StockQty  int        `gorm:"column:stock_qty;not null" json:"stock_qty"`
	Threshold int        `gorm:"column:threshold;not null" json:"threshold"`
	ReadAt    *time.Time `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
