package cart

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/cliniccare/pharmacy-backend/pkg/db"
	"github.com/cliniccare/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const owner = "pharmacist@clinic.example"

func TestAddItemCapsQuantityAtLiveStock(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	item := seedInventoryItem(t, conn, "PARA-001", 2.50, 5)

	cart, err := svc.AddItem(ctx, owner, item.ID.String(), 3)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if !cart.Total.Equal(decimal.NewFromFloat(7.50)) {
		t.Fatalf("expected total 7.50, got %s", cart.Total)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("unexpected cart lines %+v", cart.Items)
	}

	// Merging 3 more would hold 6 of 5 stocked units.
	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 3); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	cart, err = svc.GetCart(ctx, owner)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !cart.Total.Equal(decimal.NewFromFloat(7.50)) || cart.Items[0].Quantity != 3 {
		t.Fatalf("rejected add must leave the cart unchanged, got total %s qty %d", cart.Total, cart.Items[0].Quantity)
	}
}

func TestTotalsFollowLivePrices(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	item := seedInventoryItem(t, conn, "PARA-001", 2.50, 5)
	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 3); err != nil {
		t.Fatalf("add item: %v", err)
	}

	// Reprice the catalog item; the next touch reprices the cart.
	if err := conn.Model(&models.InventoryItem{}).
		Where("id = ?", item.ID).
		Update("price", decimal.NewFromFloat(3.00)).Error; err != nil {
		t.Fatalf("update price: %v", err)
	}

	cart, err := svc.UpdateQuantity(ctx, owner, item.ID.String(), 3)
	if err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if !cart.Total.Equal(decimal.NewFromFloat(9.00)) {
		t.Fatalf("expected repriced total 9.00, got %s", cart.Total)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("quantity must stay 3, got %d", cart.Items[0].Quantity)
	}
}

func TestCartOperationErrors(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	item := seedInventoryItem(t, conn, "PARA-001", 2.50, 5)

	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 0); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := svc.AddItem(ctx, owner, "not-a-uuid", 1); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := svc.AddItem(ctx, "", item.ID.String(), 1); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty owner, got %v", err)
	}
	if _, err := svc.AddItem(ctx, owner, uuid.NewString(), 1); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown item, got %v", err)
	}

	// No cart exists yet for this owner.
	if _, err := svc.UpdateQuantity(ctx, "other@clinic.example", item.ID.String(), 1); !pkgerrors.IsCode(err, pkgerrors.CodeCartNotFound) {
		t.Fatalf("expected cart not found, got %v", err)
	}

	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, owner, uuid.NewString(), 1); !pkgerrors.IsCode(err, pkgerrors.CodeItemNotInCart) {
		t.Fatalf("expected item not in cart, got %v", err)
	}
	if _, err := svc.RemoveItem(ctx, owner, uuid.NewString()); !pkgerrors.IsCode(err, pkgerrors.CodeItemNotInCart) {
		t.Fatalf("expected item not in cart on remove, got %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, owner, item.ID.String(), 0); !pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected invalid quantity on zero update, got %v", err)
	}
}

func TestSoftDeletedItemBlocksQuantityRaise(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	item := seedInventoryItem(t, conn, "PARA-001", 2.50, 5)
	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 2); err != nil {
		t.Fatalf("add item: %v", err)
	}

	if err := conn.Model(&models.InventoryItem{}).
		Where("id = ?", item.ID).
		Update("is_deleted", true).Error; err != nil {
		t.Fatalf("soft delete item: %v", err)
	}

	// The line survives the delete but can no longer grow.
	if _, err := svc.UpdateQuantity(ctx, owner, item.ID.String(), 3); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock for deleted item, got %v", err)
	}
	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 1); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found when adding deleted item, got %v", err)
	}

	cart, err := svc.GetCart(ctx, owner)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 1 || !cart.Items[0].Unavailable {
		t.Fatalf("expected surviving line flagged unavailable, got %+v", cart.Items)
	}

	// Removing the dead line still works.
	cart, err = svc.RemoveItem(ctx, owner, item.ID.String())
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(cart.Items) != 0 || !cart.Total.IsZero() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestClearCart(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	item := seedInventoryItem(t, conn, "PARA-001", 2.50, 5)
	if _, err := svc.AddItem(ctx, owner, item.ID.String(), 3); err != nil {
		t.Fatalf("add item: %v", err)
	}

	cart, err := svc.ClearCart(ctx, owner)
	if err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	if len(cart.Items) != 0 || !cart.Total.IsZero() {
		t.Fatalf("expected cleared cart, got %+v", cart)
	}

	// Owners who never had a cart cannot clear one.
	if _, err = svc.ClearCart(ctx, "fresh@clinic.example"); !pkgerrors.IsCode(err, pkgerrors.CodeCartNotFound) {
		t.Fatalf("expected CartNotFound for an owner without a cart, got %v", err)
	}
}

func TestOwnerEmailIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	item := seedInventoryItem(t, conn, "PARA-001", 2.50, 5)
	if _, err := svc.AddItem(ctx, " Pharmacist@Clinic.example ", item.ID.String(), 2); err != nil {
		t.Fatalf("add item: %v", err)
	}

	cart, err := svc.GetCart(ctx, owner)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Fatalf("expected same cart regardless of email casing, got %+v", cart.Items)
	}
}

func TestConcurrentAddsNeverOversellStock(t *testing.T) {
	t.Parallel()

	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	const stock = 5
	const attempts = 20
	item := seedInventoryItem(t, conn, "PARA-001", 2.50, stock)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, owner, item.ID.String(), 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != stock || rejected != attempts-stock {
		t.Fatalf("expected exactly %d successes, got %d (rejected %d)", stock, succeeded, rejected)
	}

	cart, err := svc.GetCart(ctx, owner)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != stock {
		t.Fatalf("expected held quantity %d, got %+v", stock, cart.Items)
	}
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard})
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewMutexLocker(), nil, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedInventoryItem(t *testing.T, conn *gorm.DB, code string, price float64, stock int) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		ID:            uuid.New(),
		Name:          "Item " + code,
		Code:          code,
		SupplierEmail: "orders@acme-pharma.example",
		Price:         decimal.NewFromFloat(price),
		InStockQty:    stock,
	}
	if err := conn.Create(item).Error; err != nil {
		t.Fatalf("seed item %s: %v", code, err)
	}
	return item
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.InventoryItem{}, &models.Cart{}, &models.CartLineItem{}); err != nil {
		t.Fatalf("migrate cart schema: %v", err)
	}
	return conn
}
