package dto

import (
	"time"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/inventory"
)

// StockKeyRequest addresses a stock unit in a body.
type StockKeyRequest struct {
	ProductID string  `json:"productId" form:"productId" binding:"required"`
	VariantID *string `json:"variantId" form:"variantId"`
}

// ToKey parses the ids into a ledger key.
func (r StockKeyRequest) ToKey() (inventory.Key, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return inventory.Key{}, apperror.NewValidation("invalid productId format")
	}
	if r.VariantID == nil || *r.VariantID == "" {
		return inventory.ProductKey(productID), nil
	}
	variantID, err := id.Parse(*r.VariantID)
	if err != nil {
		return inventory.Key{}, apperror.NewValidation("invalid variantId format")
	}
	return inventory.VariantKey(productID, variantID), nil
}

// StockResponse is the available quantity of one unit.
type StockResponse struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Available int     `json:"available"`
}

func NewStockResponse(key inventory.Key, available int) StockResponse {
	resp := StockResponse{ProductID: key.ProductID.String(), Available: available}
	if key.VariantID != nil {
		v := key.VariantID.String()
		resp.VariantID = &v
	}
	return resp
}

// AdjustStockRequest applies a signed manual correction.
type AdjustStockRequest struct {
	StockKeyRequest
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// RestockRequest records a supplier delivery.
type RestockRequest struct {
	StockKeyRequest
	Quantity    int         `json:"quantity" binding:"required,min=1"`
	UnitCost    types.Money `json:"unitCost"`
	Supplier    string      `json:"supplier" binding:"required"`
	RestockedAt *time.Time  `json:"restockedAt"`
}

func (r RestockRequest) ToDomain(createdBy id.ID) inventory.RestockInput {
	in := inventory.RestockInput{
		Quantity:  r.Quantity,
		UnitCost:  r.UnitCost,
		Supplier:  r.Supplier,
		CreatedBy: &createdBy,
	}
	if r.RestockedAt != nil {
		in.RestockedAt = *r.RestockedAt
	}
	return in
}

// ReorderLevelRequest sets the low-stock threshold of a unit.
type ReorderLevelRequest struct {
	StockKeyRequest
	ReorderLevel int `json:"reorderLevel" binding:"min=0"`
}

// MovementsRequest filters GET /inventory/movements.
type MovementsRequest struct {
	PaginationRequest
	ProductID string     `form:"productId" binding:"required"`
	VariantID string     `form:"variantId"`
	Type      string     `form:"type"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToDomain builds the ledger key and filter.
func (r MovementsRequest) ToDomain() (inventory.Key, inventory.MovementFilter, error) {
	var variant *string
	if r.VariantID != "" {
		variant = &r.VariantID
	}
	key, err := StockKeyRequest{ProductID: r.ProductID, VariantID: variant}.ToKey()
	if err != nil {
		return inventory.Key{}, inventory.MovementFilter{}, err
	}
	filter := inventory.MovementFilter{
		From:   r.From,
		To:     r.To,
		Limit:  r.Limit,
		Offset: r.Offset,
	}
	if r.Type != "" {
		t := inventory.MovementType(r.Type)
		if !t.Valid() {
			return inventory.Key{}, inventory.MovementFilter{}, apperror.NewValidation("unknown movement type").
				WithDetail("type", r.Type)
		}
		filter.Type = &t
	}
	return key, filter, nil
}
