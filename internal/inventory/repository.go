package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository wires together inventory persistence helpers. Every read goes
// through visible() so soft-deleted rows stay hidden on a single choke point.
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

func (r *Repository) visible(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Where("is_deleted = ?", false)
}

// Create inserts a new item row.
func (r *Repository) Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// Update persists all columns of an existing item row.
func (r *Repository) Update(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// FindByID loads a visible item.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.visible(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByCode loads an item by code regardless of deletion state. Codes stay
// reserved forever, so duplicate checks must see soft-deleted rows too.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// SoftDelete marks the item deleted. Returns gorm.ErrRecordNotFound when the
// item does not exist or is already deleted.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns all visible items, newest first.
func (r *Repository) List(ctx context.Context) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.visible(ctx).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// Search matches the query case-insensitively against the item's text columns.
func (r *Repository) Search(ctx context.Context, query string) ([]models.InventoryItem, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var rows []models.InventoryItem
	err := r.visible(ctx).
		Where(
			"(LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ? OR LOWER(supplier_email) LIKE ? OR LOWER(CAST(tags AS TEXT)) LIKE ?)",
			pattern, pattern, pattern, pattern, pattern, pattern,
		).
		Order("created_at DESC").
		Find(&rows).
		Error
	return rows, err
}

// ListExpired returns visible items whose expire date has passed, oldest expiry first.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.visible(ctx).
		Where("expire_date IS NOT NULL AND expire_date < ?", now).
		Order("expire_date ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListNonExpired returns visible items that are still usable, furthest expiry
// first. Items without an expire date never expire.
func (r *Repository) ListNonExpired(ctx context.Context, now time.Time) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.visible(ctx).
		Where("expire_date IS NULL OR expire_date >= ?", now).
		Order("expire_date DESC").
		Find(&rows).
		Error
	return rows, err
}

// ListBySupplier returns visible items sourced from the given supplier,
// ordered by name.
func (r *Repository) ListBySupplier(ctx context.Context, supplierEmail string) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.visible(ctx).
		Where("supplier_email = ?", supplierEmail).
		Order("name ASC").
		Find(&rows).
		Error
	return rows, err
}

// ListLowStock returns visible items with stock strictly below the threshold,
// emptiest first.
func (r *Repository) ListLowStock(ctx context.Context, threshold int) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := r.visible(ctx).
		Where("in_stock_qty < ?", threshold).
		Order("in_stock_qty ASC").
		Find(&rows).
		Error
	return rows, err
}

// SetImageURL stores the uploaded asset URL on a visible item.
func (r *Repository) SetImageURL(ctx context.Context, id uuid.UUID, url string) error {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("image_url", url)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
