package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartDTO is the API shape of a cart with repriced lines.
type CartDTO struct {
	ID         uuid.UUID     `json:"id"`
	OwnerEmail string        `json:"owner_email"`
	Total      decimal.Decimal `json:"total"`
	Items      []CartLineDTO `json:"items"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// CartLineDTO is one held item with its live catalog data.
type CartLineDTO struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
	// Unavailable marks lines whose item was removed from the catalog after
	// it was added to the cart.
	Unavailable bool `json:"unavailable,omitempty"`
}

func newCartDTO(id uuid.UUID, ownerEmail string, total decimal.Decimal, updatedAt time.Time, lines []LineDetailRow) CartDTO {
	items := make([]CartLineDTO, 0, len(lines))
	for _, line := range lines {
		items = append(items, CartLineDTO{
			ItemID:      line.ItemID,
			Code:        line.Code,
			Name:        line.Name,
			Price:       line.Price,
			Quantity:    line.Quantity,
			Subtotal:    line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2),
			Unavailable: line.ItemDeleted,
		})
	}
	return CartDTO{
		ID:         id,
		OwnerEmail: ownerEmail,
		Total:      total,
		Items:      items,
		UpdatedAt:  updatedAt,
	}
}
