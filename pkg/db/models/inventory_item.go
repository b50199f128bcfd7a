package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// InventoryItem is a stocked pharmacy product. Rows are never physically
// removed; IsDeleted hides them from every read path.
type InventoryItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Code          string          `gorm:"column:code;not null;uniqueIndex:idx_inventory_items_code" json:"code"`
	SupplierEmail string          `gorm:"column:supplier_email;not null" json:"supplier_email"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	InStockQty    int             `gorm:"column:in_stock_qty;not null;default:0" json:"in_stock_qty"`
	ExpireDate    *time.Time      `gorm:"column:expire_date" json:"expire_date,omitempty"`
	Category      string          `gorm:"column:category" json:"category"`
	Description   string          `gorm:"column:description" json:"description"`
	Tags          pq.StringArray  `gorm:"column:tags;type:text[]" json:"tags,omitempty"`
	ImageURL      *string         `gorm:"column:image_url" json:"image_url,omitempty"`
	IsDeleted     bool            `gorm:"column:is_deleted;not null;default:false" json:"-"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
