package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cliniccare/pharmacy-backend/pkg/db"
	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/cliniccare/pharmacy-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	nameMaxLen        = 100
	descriptionMaxLen = 500
)

var codeRe = regexp.MustCompile(`^[A-Z0-9_-]{3,20}$`)
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Service exposes inventory catalog operations.
type Service interface {
	CreateItem(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error)
	ListItems(ctx context.Context) ([]models.InventoryItem, error)
	GetItem(ctx context.Context, id string) (*models.InventoryItem, error)
	UpdateItem(ctx context.Context, id string, input UpdateItemInput) (*models.InventoryItem, error)
	DeleteItem(ctx context.Context, id string) error
	SearchItems(ctx context.Context, query string) ([]models.InventoryItem, error)
	ListExpiredItems(ctx context.Context) ([]models.InventoryItem, error)
	ListNonExpiredItems(ctx context.Context) ([]models.InventoryItem, error)
	ListBySupplier(ctx context.Context, supplierEmail string) ([]models.InventoryItem, error)
	ListLowStockItems(ctx context.Context, threshold int) ([]models.InventoryItem, error)
	UploadItemImage(ctx context.Context, id, filename, contentType string, data io.Reader) (*models.InventoryItem, error)
}

// CreateItemInput holds the payload to stock a new item.
type CreateItemInput struct {
	Name          string
	Code          string
	SupplierEmail string
	Price         decimal.Decimal
	InStockQty    float64
	ExpireDate    *time.Time
	Category      string
	Description   string
	Tags          []string
}

// UpdateItemInput holds optional mutation values. The item code is immutable
// and therefore absent here.
type UpdateItemInput struct {
	Name          *string
	SupplierEmail *string
	Price         *decimal.Decimal
	InStockQty    *float64
	ExpireDate    *time.Time
	Category      *string
	Description   *string
	Tags          *[]string
}

// LowStockAlert describes one item that fell below the stock threshold.
type LowStockAlert struct {
	ItemID    uuid.UUID `json:"item_id"`
	ItemCode  string    `json:"item_code"`
	ItemName  string    `json:"item_name"`
	StockQty  int       `json:"stock_qty"`
	Threshold int       `json:"threshold"`
}

// AlertPublisher delivers low-stock alerts to the notification pipeline.
type AlertPublisher interface {
	PublishLowStock(ctx context.Context, alert LowStockAlert) error
}

// AssetStore persists item images and returns their public URL.
type AssetStore interface {
	Upload(ctx context.Context, object, contentType string, data io.Reader) (string, error)
}

type itemRepository interface {
	Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	Update(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindByCode(ctx context.Context, code string) (*models.InventoryItem, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]models.InventoryItem, error)
	Search(ctx context.Context, query string) ([]models.InventoryItem, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.InventoryItem, error)
	ListNonExpired(ctx context.Context, now time.Time) ([]models.InventoryItem, error)
	ListBySupplier(ctx context.Context, supplierEmail string) ([]models.InventoryItem, error)
	ListLowStock(ctx context.Context, threshold int) ([]models.InventoryItem, error)
	SetImageURL(ctx context.Context, id uuid.UUID, url string) error
}

// service implements the inventory service.
type service struct {
	repo      itemRepository
	alerts    AlertPublisher
	assets    AssetStore
	metrics   *metrics.InventoryMetrics
	logg      *logger.Logger
	threshold int
	now       func() time.Time
}

// NewService constructs an inventory service instance. The alert publisher and
// asset store are optional; without them the related features are disabled.
func NewService(repo itemRepository, alerts AlertPublisher, assets AssetStore, invMetrics *metrics.InventoryMetrics, logg *logger.Logger, lowStockThreshold int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = 10
	}
	return &service{
		repo:      repo,
		alerts:    alerts,
		assets:    assets,
		metrics:   invMetrics,
		logg:      logg,
		threshold: lowStockThreshold,
		now:       time.Now,
	}, nil
}

// CreateItem validates and stocks a new item.
func (s *service) CreateItem(ctx context.Context, input CreateItemInput) (*models.InventoryItem, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}
	code, err := normalizeCode(input.Code)
	if err != nil {
		return nil, err
	}
	email, err := normalizeSupplierEmail(input.SupplierEmail)
	if err != nil {
		return nil, err
	}
	price, err := normalizePrice(input.Price)
	if err != nil {
		return nil, err
	}
	qty, err := normalizeStockQty(input.InStockQty)
	if err != nil {
		return nil, err
	}
	description, err := normalizeDescription(input.Description)
	if err != nil {
		return nil, err
	}
	if err := s.validateExpireDate(input.ExpireDate); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateItemCode, fmt.Sprintf("item code %s already in use", code))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: check item code")
	}

	item := &models.InventoryItem{
		ID:            uuid.New(),
		Name:          name,
		Code:          code,
		SupplierEmail: email,
		Price:         price,
		InStockQty:    qty,
		ExpireDate:    input.ExpireDate,
		Category:      strings.TrimSpace(input.Category),
		Description:   description,
		Tags:          normalizeTags(input.Tags),
	}

	created, err := s.repo.Create(ctx, item)
	if err != nil {
		if db.IsUniqueViolation(err, "idx_inventory_items_code") {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateItemCode, fmt.Sprintf("item code %s already in use", code))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: insert inventory item")
	}
	return created, nil
}

// ListItems returns the visible catalog and kicks off low-stock alerts for any
// item under the threshold.
func (s *service) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: list inventory items")
	}
	s.notifyLowStock(ctx, items)
	return items, nil
}

// GetItem loads one visible item by its string ID.
func (s *service) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	itemID, err := parseItemID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: load inventory item")
	}
	return item, nil
}

// UpdateItem applies the provided fields to a visible item. The code never changes.
func (s *service) UpdateItem(ctx context.Context, id string, input UpdateItemInput) (*models.InventoryItem, error) {
	itemID, err := parseItemID(id)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: load inventory item")
	}

	if input.Name != nil {
		name, err := normalizeName(*input.Name)
		if err != nil {
			return nil, err
		}
		item.Name = name
	}
	if input.SupplierEmail != nil {
		email, err := normalizeSupplierEmail(*input.SupplierEmail)
		if err != nil {
			return nil, err
		}
		item.SupplierEmail = email
	}
	if input.Price != nil {
		price, err := normalizePrice(*input.Price)
		if err != nil {
			return nil, err
		}
		item.Price = price
	}
	if input.InStockQty != nil {
		qty, err := normalizeStockQty(*input.InStockQty)
		if err != nil {
			return nil, err
		}
		item.InStockQty = qty
	}
	if input.ExpireDate != nil {
		if err := s.validateExpireDate(input.ExpireDate); err != nil {
			return nil, err
		}
		item.ExpireDate = input.ExpireDate
	}
	if input.Category != nil {
		item.Category = strings.TrimSpace(*input.Category)
	}
	if input.Description != nil {
		description, err := normalizeDescription(*input.Description)
		if err != nil {
			return nil, err
		}
		item.Description = description
	}
	if input.Tags != nil {
		item.Tags = normalizeTags(*input.Tags)
	}

	updated, err := s.repo.Update(ctx, item)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: update inventory item")
	}
	s.notifyLowStock(ctx, []models.InventoryItem{*updated})
	return updated, nil
}

// DeleteItem soft-deletes a visible item. Existing cart lines referencing it
// stay in place; the item simply stops being purchasable.
func (s *service) DeleteItem(ctx context.Context, id string) error {
	itemID, err := parseItemID(id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: soft delete inventory item")
	}
	s.logg.Info(s.logg.WithItemID(ctx, itemID.String()), "inventory item deleted")
	return nil
}

// SearchItems matches the query against the item's text fields.
func (s *service) SearchItems(ctx context.Context, query string) ([]models.InventoryItem, error) {
	if strings.TrimSpace(query) == "" {
		return s.ListItems(ctx)
	}
	items, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: search inventory items")
	}
	s.notifyLowStock(ctx, items)
	return items, nil
}

// ListExpiredItems returns visible items past their expire date.
func (s *service) ListExpiredItems(ctx context.Context) ([]models.InventoryItem, error) {
	items, err := s.repo.ListExpired(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: list expired items")
	}
	return items, nil
}

// ListNonExpiredItems returns visible items that are still usable.
func (s *service) ListNonExpiredItems(ctx context.Context) ([]models.InventoryItem, error) {
	items, err := s.repo.ListNonExpired(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: list non-expired items")
	}
	return items, nil
}

// ListBySupplier returns visible items sourced from one supplier.
func (s *service) ListBySupplier(ctx context.Context, supplierEmail string) ([]models.InventoryItem, error) {
	email, err := normalizeSupplierEmail(supplierEmail)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListBySupplier(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: list items by supplier")
	}
	return items, nil
}

// ListLowStockItems returns visible items under the given threshold. A
// non-positive threshold falls back to the configured one.
func (s *service) ListLowStockItems(ctx context.Context, threshold int) ([]models.InventoryItem, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	items, err := s.repo.ListLowStock(ctx, threshold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: list low stock items")
	}
	return items, nil
}

// UploadItemImage stores the image for a visible item and records its URL.
func (s *service) UploadItemImage(ctx context.Context, id, filename, contentType string, data io.Reader) (*models.InventoryItem, error) {
	if s.assets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "asset storage is not configured")
	}
	itemID, err := parseItemID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: load inventory item")
	}

	object := fmt.Sprintf("%s/%s", item.Code, sanitizeFilename(filename))
	url, err := s.assets.Upload(ctx, object, contentType, data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "asset store: upload item image")
	}

	if err := s.repo.SetImageURL(ctx, itemID, url); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: set item image url")
	}
	item.ImageURL = &url
	return item, nil
}

// notifyLowStock publishes alerts off the request path. Publish failures are
// logged and never surface to the caller.
func (s *service) notifyLowStock(ctx context.Context, items []models.InventoryItem) {
	if s.alerts == nil {
		return
	}

	var low []LowStockAlert
	for _, item := range items {
		if item.InStockQty < s.threshold {
			low = append(low, LowStockAlert{
				ItemID:    item.ID,
				ItemCode:  item.Code,
				ItemName:  item.Name,
				StockQty:  item.InStockQty,
				Threshold: s.threshold,
			})
		}
	}
	if len(low) == 0 {
		return
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		for _, alert := range low {
			if err := s.alerts.PublishLowStock(bg, alert); err != nil {
				s.logg.Error(s.logg.WithItemID(bg, alert.ItemID.String()), "publishing low stock alert failed", err)
				continue
			}
			s.metrics.IncLowStockPublished(alert.ItemCode)
		}
	}()
}

func (s *service) validateExpireDate(expireDate *time.Time) error {
	if expireDate == nil {
		return nil
	}
	if !expireDate.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expire_date must be in the future")
	}
	return nil
}

func parseItemID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInvalidID, fmt.Sprintf("invalid item id %q", id))
	}
	return parsed, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(name) > nameMaxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name must be at most %d characters", nameMaxLen))
	}
	return name, nil
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codeRe.MatchString(code) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "code must be 3-20 characters of A-Z, 0-9, dash or underscore")
	}
	return code, nil
}

func normalizeSupplierEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeMissingSupplierEmail, "supplier email is required")
	}
	if !emailRe.MatchString(email) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "supplier email is not a valid address")
	}
	return email, nil
}

func normalizePrice(price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	return price.Round(2), nil
}

func normalizeStockQty(qty float64) (int, error) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "in_stock_qty cannot be negative")
	}
	return int(math.Floor(qty)), nil
}

func normalizeDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len(description) > descriptionMaxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("description must be at most %d characters", descriptionMaxLen))
	}
	return description, nil
}

func normalizeTags(tags []string) []string {
	var clean []string
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		clean = append(clean, tag)
	}
	return clean
}

func sanitizeFilename(filename string) string {
	base := path.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" || base == "" {
		return "image"
	}
	return strings.ReplaceAll(base, " ", "_")
}
