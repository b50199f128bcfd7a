package inventory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestCreateItemNormalizesInput(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, nil, nil)

	created, err := svc.CreateItem(context.Background(), CreateItemInput{
		Name:          "  Paracetamol 500mg  ",
		Code:          "para-001",
		SupplierEmail: " Orders@Acme-Pharma.example ",
		Price:         decimal.NewFromFloat(2.499),
		InStockQty:    5.9,
		Category:      " analgesics ",
		Description:   "Basic analgesic",
		Tags:          []string{" OTC ", "otc", "Analgesic", ""},
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	if created.Name != "Paracetamol 500mg" {
		t.Fatalf("unexpected name %q", created.Name)
	}
	if created.Code != "PARA-001" {
		t.Fatalf("expected uppercased code, got %q", created.Code)
	}
	if created.SupplierEmail != "orders@acme-pharma.example" {
		t.Fatalf("expected lowercased email, got %q", created.SupplierEmail)
	}
	if !created.Price.Equal(decimal.NewFromFloat(2.50)) {
		t.Fatalf("expected price rounded to 2.50, got %s", created.Price)
	}
	if created.InStockQty != 5 {
		t.Fatalf("expected floored stock 5, got %d", created.InStockQty)
	}
	if len(created.Tags) != 2 || created.Tags[0] != "otc" || created.Tags[1] != "analgesic" {
		t.Fatalf("unexpected tags %v", created.Tags)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("expected assigned item id")
	}
}

func TestCreateItemValidation(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, nil, nil)
	ctx := context.Background()

	valid := CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    5,
	}

	past := time.Now().Add(-time.Hour)
	cases := []struct {
		name    string
		mutate  func(*CreateItemInput)
		code    pkgerrors.Code
	}{
		{"empty name", func(in *CreateItemInput) { in.Name = "   " }, pkgerrors.CodeValidation},
		{"name too long", func(in *CreateItemInput) { in.Name = strings.Repeat("x", 101) }, pkgerrors.CodeValidation},
		{"short code", func(in *CreateItemInput) { in.Code = "AB" }, pkgerrors.CodeValidation},
		{"bad code chars", func(in *CreateItemInput) { in.Code = "PARA 001" }, pkgerrors.CodeValidation},
		{"missing email", func(in *CreateItemInput) { in.SupplierEmail = "  " }, pkgerrors.CodeMissingSupplierEmail},
		{"bad email", func(in *CreateItemInput) { in.SupplierEmail = "not-an-email" }, pkgerrors.CodeValidation},
		{"negative price", func(in *CreateItemInput) { in.Price = decimal.NewFromFloat(-0.01) }, pkgerrors.CodeValidation},
		{"negative stock", func(in *CreateItemInput) { in.InStockQty = -1 }, pkgerrors.CodeValidation},
		{"long description", func(in *CreateItemInput) { in.Description = strings.Repeat("x", 501) }, pkgerrors.CodeValidation},
		{"past expire date", func(in *CreateItemInput) { in.ExpireDate = &past }, pkgerrors.CodeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			if _, err := svc.CreateItem(ctx, input); !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCreateItemRejectsDuplicateCode(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, nil, nil)
	ctx := context.Background()

	input := CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    5,
	}
	if _, err := svc.CreateItem(ctx, input); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same code in different case still collides.
	input.Code = "para-001"
	if _, err := svc.CreateItem(ctx, input); !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateItemCode) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestCreateItemMapsUniqueViolationFromInsert(t *testing.T) {
	t.Parallel()

	// A concurrent insert can slip past the code lookup; the index
	// violation from the write itself must map to the same error.
	repo := newStubRepo()
	repo.createErr = errors.New(`UNIQUE constraint failed: inventory_items.code`)
	svc := newTestService(t, repo, nil, nil)

	_, err := svc.CreateItem(context.Background(), CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    5,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateItemCode) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestUpdateItemAppliesPartialFields(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newPrice := decimal.NewFromFloat(3.00)
	newStock := 12.7
	updated, err := svc.UpdateItem(ctx, created.ID.String(), UpdateItemInput{
		Price:      &newPrice,
		InStockQty: &newStock,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Price.Equal(newPrice) {
		t.Fatalf("expected updated price, got %s", updated.Price)
	}
	if updated.InStockQty != 12 {
		t.Fatalf("expected floored stock 12, got %d", updated.InStockQty)
	}
	if updated.Name != "Paracetamol" || updated.Code != "PARA-001" {
		t.Fatalf("untouched fields changed")
	}

	if _, err := svc.UpdateItem(ctx, "not-a-uuid", UpdateItemInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidID) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
	if _, err := svc.UpdateItem(ctx, uuid.NewString(), UpdateItemInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestDeleteItemHidesFromReads(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteItem(ctx, created.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetItem(ctx, created.ID.String()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := svc.DeleteItem(ctx, created.ID.String()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on double delete, got %v", err)
	}
}

func TestListItemsPublishesLowStockAlerts(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	alerts := &stubAlertPublisher{published: make(chan LowStockAlert, 4)}
	svc := newTestService(t, repo, alerts, nil)
	ctx := context.Background()

	low, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    3,
	})
	if err != nil {
		t.Fatalf("create low item: %v", err)
	}
	if _, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Ibuprofen",
		Code:          "IBU-200",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(4.00),
		InStockQty:    50,
	}); err != nil {
		t.Fatalf("create stocked item: %v", err)
	}

	items, err := svc.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two items, got %d", len(items))
	}

	select {
	case alert := <-alerts.published:
		if alert.ItemID != low.ID || alert.StockQty != 3 || alert.Threshold != 10 {
			t.Fatalf("unexpected alert %+v", alert)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a low stock alert")
	}

	select {
	case alert := <-alerts.published:
		t.Fatalf("unexpected extra alert %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUpdateItemPublishesLowStockAlert(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	alerts := &stubAlertPublisher{published: make(chan LowStockAlert, 4)}
	svc := newTestService(t, repo, alerts, nil)
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Amoxicillin",
		Code:          "AMOX-500",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(7.20),
		InStockQty:    50,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	select {
	case alert := <-alerts.published:
		t.Fatalf("unexpected alert on creation %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}

	qty := 3.0
	if _, err := svc.UpdateItem(ctx, created.ID.String(), UpdateItemInput{InStockQty: &qty}); err != nil {
		t.Fatalf("update item: %v", err)
	}

	select {
	case alert := <-alerts.published:
		if alert.ItemID != created.ID || alert.StockQty != 3 || alert.Threshold != 10 {
			t.Fatalf("unexpected alert %+v", alert)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a low stock alert after the update")
	}

	healthy := 20.0
	if _, err := svc.UpdateItem(ctx, created.ID.String(), UpdateItemInput{InStockQty: &healthy}); err != nil {
		t.Fatalf("restock item: %v", err)
	}
	select {
	case alert := <-alerts.published:
		t.Fatalf("unexpected alert after restock %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSearchItemsPublishesLowStockAlerts(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	alerts := &stubAlertPublisher{published: make(chan LowStockAlert, 4)}
	svc := newTestService(t, repo, alerts, nil)
	ctx := context.Background()

	low, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    3,
	})
	if err != nil {
		t.Fatalf("create low item: %v", err)
	}
	if _, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Ibuprofen",
		Code:          "IBU-200",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(4.00),
		InStockQty:    2,
	}); err != nil {
		t.Fatalf("create second low item: %v", err)
	}

	items, err := svc.SearchItems(ctx, "para")
	if err != nil {
		t.Fatalf("search items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one match, got %d", len(items))
	}

	select {
	case alert := <-alerts.published:
		if alert.ItemID != low.ID || alert.StockQty != 3 || alert.Threshold != 10 {
			t.Fatalf("unexpected alert %+v", alert)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a low stock alert for the matched item")
	}

	select {
	case alert := <-alerts.published:
		t.Fatalf("unexpected alert for an unmatched item %+v", alert)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListLowStockItemsThresholdOverride(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	svc := newTestService(t, repo, nil, nil)
	ctx := context.Background()

	for _, seed := range []struct {
		code string
		qty  float64
	}{
		{"PARA-001", 3},
		{"IBU-200", 15},
		{"AMOX-500", 40},
	} {
		if _, err := svc.CreateItem(ctx, CreateItemInput{
			Name:          seed.code,
			Code:          seed.code,
			SupplierEmail: "orders@acme.example",
			Price:         decimal.NewFromFloat(1.00),
			InStockQty:    seed.qty,
		}); err != nil {
			t.Fatalf("create %s: %v", seed.code, err)
		}
	}

	configured, err := svc.ListLowStockItems(ctx, 0)
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if len(configured) != 1 || configured[0].Code != "PARA-001" {
		t.Fatalf("expected only PARA-001 below the configured threshold, got %+v", configured)
	}

	wide, err := svc.ListLowStockItems(ctx, 20)
	if err != nil {
		t.Fatalf("list low stock with override: %v", err)
	}
	if len(wide) != 2 {
		t.Fatalf("expected two items below 20, got %d", len(wide))
	}
}

func TestUploadItemImage(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	assets := &stubAssetStore{url: "https://storage.googleapis.com/assets/items/PARA-001/front.png"}
	svc := newTestService(t, repo, nil, assets)
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, CreateItemInput{
		Name:          "Paracetamol",
		Code:          "PARA-001",
		SupplierEmail: "orders@acme.example",
		Price:         decimal.NewFromFloat(2.50),
		InStockQty:    5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	item, err := svc.UploadItemImage(ctx, created.ID.String(), "front box.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload image: %v", err)
	}
	if item.ImageURL == nil || *item.ImageURL != assets.url {
		t.Fatalf("expected stored image url")
	}
	if assets.lastObject != "PARA-001/front_box.png" {
		t.Fatalf("unexpected object key %q", assets.lastObject)
	}

	bare := newTestService(t, repo, nil, nil)
	if _, err := bare.UploadItemImage(ctx, created.ID.String(), "a.png", "image/png", strings.NewReader("x")); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error without asset store, got %v", err)
	}
}

func newTestService(t *testing.T, repo itemRepository, alerts AlertPublisher, assets AssetStore) Service {
	t.Helper()
	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
	svc, err := NewService(repo, alerts, assets, nil, logg, 10)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type stubAlertPublisher struct {
	published chan LowStockAlert
}

func (s *stubAlertPublisher) PublishLowStock(_ context.Context, alert LowStockAlert) error {
	s.published <- alert
	return nil
}

type stubAssetStore struct {
	url        string
	lastObject string
}

func (s *stubAssetStore) Upload(_ context.Context, object, _ string, _ io.Reader) (string, error) {
	s.lastObject = object
	return s.url, nil
}

// stubRepo is an in-memory itemRepository used by unit tests.
type stubRepo struct {
	items     map[uuid.UUID]*models.InventoryItem
	createErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{items: make(map[uuid.UUID]*models.InventoryItem)}
}

func (s *stubRepo) Create(_ context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	copied := *item
	s.items[item.ID] = &copied
	return item, nil
}

func (s *stubRepo) Update(_ context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	copied := *item
	s.items[item.ID] = &copied
	return item, nil
}

func (s *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	item, ok := s.items[id]
	if !ok || item.IsDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *item
	return &copied, nil
}

func (s *stubRepo) FindByCode(_ context.Context, code string) (*models.InventoryItem, error) {
	for _, item := range s.items {
		if item.Code == code {
			copied := *item
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	item, ok := s.items[id]
	if !ok || item.IsDeleted {
		return gorm.ErrRecordNotFound
	}
	item.IsDeleted = true
	return nil
}

func (s *stubRepo) List(_ context.Context) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	for _, item := range s.items {
		if !item.IsDeleted {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *stubRepo) Search(_ context.Context, query string) ([]models.InventoryItem, error) {
	query = strings.ToLower(query)
	var rows []models.InventoryItem
	for _, item := range s.items {
		if item.IsDeleted {
			continue
		}
		if strings.Contains(strings.ToLower(item.Name), query) || strings.Contains(strings.ToLower(item.Code), query) {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *stubRepo) ListExpired(_ context.Context, now time.Time) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	for _, item := range s.items {
		if !item.IsDeleted && item.ExpireDate != nil && item.ExpireDate.Before(now) {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *stubRepo) ListNonExpired(_ context.Context, now time.Time) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	for _, item := range s.items {
		if !item.IsDeleted && (item.ExpireDate == nil || !item.ExpireDate.Before(now)) {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *stubRepo) ListBySupplier(_ context.Context, supplierEmail string) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	for _, item := range s.items {
		if !item.IsDeleted && item.SupplierEmail == supplierEmail {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *stubRepo) ListLowStock(_ context.Context, threshold int) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	for _, item := range s.items {
		if !item.IsDeleted && item.InStockQty < threshold {
			rows = append(rows, *item)
		}
	}
	return rows, nil
}

func (s *stubRepo) SetImageURL(_ context.Context, id uuid.UUID, url string) error {
	item, ok := s.items[id]
	if !ok || item.IsDeleted {
		return gorm.ErrRecordNotFound
	}
	item.ImageURL = &url
	return nil
}
