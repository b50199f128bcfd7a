package cart

import (
	"context"
	"time"

	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock-guarded writes: the stock predicate lives inside the statement, so two
// racing mutations can never both pass the ceiling check. A zero row count
// means the guard rejected the write.
const (
	insertLineItemSQL = `
INSERT INTO cart_line_items (id, cart_id, item_id, quantity, created_at, updated_at)
SELECT ?, ?, ?, ?, ?, ?
WHERE ? <= (SELECT in_stock_qty FROM inventory_items WHERE id = ? AND is_deleted = ?)
`

	mergeLineItemSQL = `
UPDATE cart_line_items
SET quantity = quantity + ?, updated_at = ?
WHERE cart_id = ? AND item_id = ?
  AND quantity + ? <= (SELECT in_stock_qty FROM inventory_items WHERE id = ? AND is_deleted = ?)
`

	setLineItemQtySQL = `
UPDATE cart_line_items
SET quantity = ?, updated_at = ?
WHERE cart_id = ? AND item_id = ?
  AND ? <= (SELECT in_stock_qty FROM inventory_items WHERE id = ? AND is_deleted = ?)
`
)

// Repository wires together cart persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByOwner loads a cart without line items.
func (r *Repository) FindByOwner(ctx context.Context, ownerEmail string) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).First(&cart, "owner_email = ?", ownerEmail).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindWithItems loads a cart with its line items.
func (r *Repository) FindWithItems(ctx context.Context, ownerEmail string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&cart, "owner_email = ?", ownerEmail).
		Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreateByOwner returns the owner's cart, creating an empty one on first use.
func (r *Repository) GetOrCreateByOwner(ctx context.Context, ownerEmail string) (*models.Cart, error) {
	cart, err := r.FindByOwner(ctx, ownerEmail)
	if err == nil {
		return cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	fresh := &models.Cart{ID: uuid.New(), OwnerEmail: ownerEmail, Total: decimal.Zero}
	if createErr := r.db.WithContext(ctx).Create(fresh).Error; createErr != nil {
		// A concurrent request may have created the cart first.
		if cart, retryErr := r.FindByOwner(ctx, ownerEmail); retryErr == nil {
			return cart, nil
		}
		return nil, createErr
	}
	return fresh, nil
}

// FindLineItem loads one line item of the cart.
func (r *Repository) FindLineItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartLineItem, error) {
	var line models.CartLineItem
	err := r.db.WithContext(ctx).
		First(&line, "cart_id = ? AND item_id = ?", cartID, itemID).
		Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// InsertLineItem adds a new line holding qty units, but only when the live
// stock covers it. Returns false when the stock guard rejected the insert.
func (r *Repository) InsertLineItem(ctx context.Context, cartID, itemID uuid.UUID, qty int) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Exec(
		insertLineItemSQL,
		uuid.New(), cartID, itemID, qty, now, now,
		qty, itemID, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MergeLineItem raises an existing line's quantity by qty under the stock guard.
func (r *Repository) MergeLineItem(ctx context.Context, cartID, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		mergeLineItemSQL,
		qty, time.Now().UTC(), cartID, itemID,
		qty, itemID, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetLineItemQuantity replaces a line's quantity under the stock guard.
func (r *Repository) SetLineItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		setLineItemQtySQL,
		qty, time.Now().UTC(), cartID, itemID,
		qty, itemID, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteLineItem removes one line. Returns false when the item was not in the cart.
func (r *Repository) DeleteLineItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND item_id = ?", cartID, itemID).
		Delete(&models.CartLineItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClearLineItems removes every line of the cart.
func (r *Repository) ClearLineItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartLineItem{}).
		Error
}

// VisibleItemExists reports whether the inventory item is purchasable.
func (r *Repository) VisibleItemExists(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("inventory_items").
		Where("id = ? AND is_deleted = ?", itemID, false).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LineDetailRow joins a cart line with its item's live catalog data.
type LineDetailRow struct {
	ItemID      uuid.UUID
	Code        string
	Name        string
	Price       decimal.Decimal
	Quantity    int
	ItemDeleted bool
}

// ListLineDetails returns the cart's lines enriched with live item data,
// oldest line first.
func (r *Repository) ListLineDetails(ctx context.Context, cartID uuid.UUID) ([]LineDetailRow, error) {
	var rows []LineDetailRow
	err := r.db.WithContext(ctx).
		Table("cart_line_items cli").
		Select("cli.item_id, i.code, i.name, i.price, cli.quantity, i.is_deleted AS item_deleted").
		Joins("JOIN inventory_items i ON i.id = cli.item_id").
		Where("cli.cart_id = ?", cartID).
		Order("cli.created_at ASC").
		Scan(&rows).
		Error
	return rows, err
}

type lineTotalRow struct {
	Quantity int
	Price    decimal.Decimal
}

// RecomputeTotal reprices the cart from the items' live prices and stores the
// sum. Soft-deleted items keep contributing at their last price until their
// line is removed.
func (r *Repository) RecomputeTotal(ctx context.Context, cartID uuid.UUID) (decimal.Decimal, error) {
	var rows []lineTotalRow
	err := r.db.WithContext(ctx).
		Table("cart_line_items cli").
		Select("cli.quantity, i.price").
		Joins("JOIN inventory_items i ON i.id = cli.item_id").
		Where("cli.cart_id = ?", cartID).
		Scan(&rows).
		Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Price.Mul(decimal.NewFromInt(int64(row.Quantity))))
	}
	total = total.Round(2)

	err = r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{"total": total, "updated_at": time.Now().UTC()}).
		Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
