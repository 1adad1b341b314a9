// Package catalog is the read-side view of products the order core depends on.
// Catalog CRUD lives elsewhere; this package only describes what checkout needs.
package catalog

import (
	"context"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
)

// Status of a product or variant listing.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusDraft    Status = "Draft"
)

// Product as listed by a vendor.
type Product struct {
	ID            id.ID        `db:"id" json:"id"`
	VendorID      id.ID        `db:"user_id" json:"userId"`
	Title         string       `db:"title" json:"title"`
	Status        Status       `db:"status" json:"status"`
	RegularPrice  types.Money  `db:"regular_price" json:"regularPrice"`
	DiscountPrice *types.Money `db:"discount_price" json:"discountPrice,omitempty"`
	InitialStock  int          `db:"initial_stock" json:"initialStock"`
	Variants      []Variant    `db:"-" json:"variants,omitempty"`
}

// Variant of a product (size, colour, ...).
type Variant struct {
	ID            id.ID        `db:"id" json:"id"`
	ProductID     id.ID        `db:"product_id" json:"productId"`
	Name          string       `db:"name" json:"name"`
	Status        Status       `db:"status" json:"status"`
	Price         types.Money  `db:"price" json:"price"`
	DiscountPrice *types.Money `db:"discount_price" json:"discountPrice,omitempty"`
	Stock         int          `db:"stock" json:"stock"`
}

func (p *Product) IsActive() bool { return p.Status == StatusActive }

func (v *Variant) IsActive() bool { return v.Status == StatusActive }

// Variant looks up a variant by id.
func (p *Product) Variant(variantID id.ID) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// UnitPrice is the current selling price: discount if present, else regular.
func (p *Product) UnitPrice() types.Money {
	return types.EffectivePrice(p.RegularPrice, p.DiscountPrice)
}

func (v *Variant) UnitPrice() types.Money {
	return types.EffectivePrice(v.Price, v.DiscountPrice)
}

// Reader loads products with their variants.
// FindProductByID returns an apperror NotFound when the product does not exist.
type Reader interface {
	FindProductByID(ctx context.Context, productID id.ID) (*Product, error)
}
