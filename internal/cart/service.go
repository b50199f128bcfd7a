package cart

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cliniccare/pharmacy-backend/pkg/db"
	pkgerrors "github.com/cliniccare/pharmacy-backend/pkg/errors"
	"github.com/cliniccare/pharmacy-backend/pkg/logger"
	"github.com/cliniccare/pharmacy-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Service exposes per-owner cart operations. Every mutation runs under the
// owner's lock and inside a transaction, with the cart total repriced from
// live item prices before returning.
type Service interface {
	GetCart(ctx context.Context, ownerEmail string) (*CartDTO, error)
	AddItem(ctx context.Context, ownerEmail, itemID string, quantity int) (*CartDTO, error)
	UpdateQuantity(ctx context.Context, ownerEmail, itemID string, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, ownerEmail, itemID string) (*CartDTO, error)
	ClearCart(ctx context.Context, ownerEmail string) (*CartDTO, error)
}

// service implements the cart service.
type service struct {
	repo     *Repository
	dbClient *db.Client
	locker   Locker
	metrics  *metrics.InventoryMetrics
	logg     *logger.Logger
}

// NewService constructs a cart service instance.
func NewService(repo *Repository, dbClient *db.Client, locker Locker, invMetrics *metrics.InventoryMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if locker == nil {
		locker = NewMutexLocker()
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		dbClient: dbClient,
		locker:   locker,
		metrics:  invMetrics,
		logg:     logg,
	}, nil
}

// GetCart returns the owner's cart, creating an empty one on first access.
func (s *service) GetCart(ctx context.Context, ownerEmail string) (*CartDTO, error) {
	owner, err := normalizeOwner(ownerEmail)
	if err != nil {
		return nil, err
	}

	var cartID uuid.UUID
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		cart, err := txRepo.GetOrCreateByOwner(ctx, owner)
		if err != nil {
			return err
		}
		cartID = cart.ID
		_, err = txRepo.RecomputeTotal(ctx, cart.ID)
		return err
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: load cart")
	}

	return s.buildDTO(ctx, cartID)
}

// AddItem puts quantity units of the item into the cart, merging with an
// existing line. The live stock level caps the resulting quantity.
func (s *service) AddItem(ctx context.Context, ownerEmail, itemID string, quantity int) (*CartDTO, error) {
	defer s.observe("add_item", time.Now())

	owner, err := normalizeOwner(ownerEmail)
	if err != nil {
		return nil, err
	}
	id, err := parseItemID(itemID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be at least 1")
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring cart lock")
	}
	defer unlock()

	var cartID uuid.UUID
	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		cart, err := txRepo.GetOrCreateByOwner(ctx, owner)
		if err != nil {
			return err
		}
		cartID = cart.ID

		exists, err := txRepo.VisibleItemExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}

		var ok bool
		if _, err := txRepo.FindLineItem(ctx, cart.ID, id); err == nil {
			ok, err = txRepo.MergeLineItem(ctx, cart.ID, id, quantity)
			if err != nil {
				return err
			}
		} else if errors.Is(err, gorm.ErrRecordNotFound) {
			ok, err = txRepo.InsertLineItem(ctx, cart.ID, id, quantity)
			if err != nil {
				return err
			}
		} else {
			return err
		}
		if !ok {
			s.metrics.IncStockConflict("add_item")
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds available stock")
		}

		_, err = txRepo.RecomputeTotal(ctx, cart.ID)
		return err
	})
	if txErr != nil {
		return nil, asCartError(txErr, "db: add cart item")
	}

	return s.buildDTO(ctx, cartID)
}

// UpdateQuantity replaces the held quantity of an item already in the cart.
func (s *service) UpdateQuantity(ctx context.Context, ownerEmail, itemID string, quantity int) (*CartDTO, error) {
	defer s.observe("update_quantity", time.Now())

	owner, err := normalizeOwner(ownerEmail)
	if err != nil {
		return nil, err
	}
	id, err := parseItemID(itemID)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be at least 1")
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring cart lock")
	}
	defer unlock()

	var cartID uuid.UUID
	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		cart, err := txRepo.FindByOwner(ctx, owner)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
			}
			return err
		}
		cartID = cart.ID

		if _, err := txRepo.FindLineItem(ctx, cart.ID, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeItemNotInCart, "item is not in the cart")
			}
			return err
		}

		ok, err := txRepo.SetLineItemQuantity(ctx, cart.ID, id, quantity)
		if err != nil {
			return err
		}
		if !ok {
			// Also hit when the item was soft-deleted since it was added.
			s.metrics.IncStockConflict("update_quantity")
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds available stock")
		}

		_, err = txRepo.RecomputeTotal(ctx, cart.ID)
		return err
	})
	if txErr != nil {
		return nil, asCartError(txErr, "db: update cart quantity")
	}

	return s.buildDTO(ctx, cartID)
}

// RemoveItem drops an item's line from the cart.
func (s *service) RemoveItem(ctx context.Context, ownerEmail, itemID string) (*CartDTO, error) {
	defer s.observe("remove_item", time.Now())

	owner, err := normalizeOwner(ownerEmail)
	if err != nil {
		return nil, err
	}
	id, err := parseItemID(itemID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring cart lock")
	}
	defer unlock()

	var cartID uuid.UUID
	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		cart, err := txRepo.FindByOwner(ctx, owner)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeCartNotFound, "cart not found")
			}
			return err
		}
		cartID = cart.ID

		removed, err := txRepo.DeleteLineItem(ctx, cart.ID, id)
		if err != nil {
			return err
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeItemNotInCart, "item is not in the cart")
		}

		_, err = txRepo.RecomputeTotal(ctx, cart.ID)
		return err
	})
	if txErr != nil {
		return nil, asCartError(txErr, "db: remove cart item")
	}

	return s.buildDTO(ctx, cartID)
}

// ClearCart empties an existing cart. Owners who never had a cart get
// CartNotFound.
func (s *service) ClearCart(ctx context.Context, ownerEmail string) (*CartDTO, error) {
	defer s.observe("clear_cart", time.Now())

	owner, err := normalizeOwner(ownerEmail)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring cart lock")
	}
	defer unlock()

	var cartID uuid.UUID
	txErr := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		cart, err := txRepo.FindByOwner(ctx, owner)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeCartNotFound, "no cart for this owner")
			}
			return err
		}
		cartID = cart.ID

		if err := txRepo.ClearLineItems(ctx, cart.ID); err != nil {
			return err
		}
		_, err = txRepo.RecomputeTotal(ctx, cart.ID)
		return err
	})
	if txErr != nil {
		return nil, asCartError(txErr, "db: clear cart")
	}

	return s.buildDTO(ctx, cartID)
}

func (s *service) buildDTO(ctx context.Context, cartID uuid.UUID) (*CartDTO, error) {
	var cart CartDTO
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		var row struct {
			OwnerEmail string
			Total      decimal.Decimal
			UpdatedAt  time.Time
		}
		if err := tx.WithContext(ctx).
			Table("carts").
			Select("owner_email, total, updated_at").
			Where("id = ?", cartID).
			Scan(&row).Error; err != nil {
			return err
		}

		lines, err := txRepo.ListLineDetails(ctx, cartID)
		if err != nil {
			return err
		}

		cart = newCartDTO(cartID, row.OwnerEmail, row.Total, row.UpdatedAt, lines)
		return nil
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "db: load cart detail")
	}
	return &cart, nil
}

func (s *service) observe(operation string, start time.Time) {
	s.metrics.ObserveCartMutation(operation, time.Since(start))
}

func asCartError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, message)
}

func normalizeOwner(ownerEmail string) (string, error) {
	owner := strings.ToLower(strings.TrimSpace(ownerEmail))
	if owner == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "owner email is required")
	}
	if !emailRe.MatchString(owner) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "owner email is not a valid address")
	}
	return owner, nil
}

func parseItemID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInvalidID, fmt.Sprintf("invalid item id %q", id))
	}
	return parsed, nil
}
