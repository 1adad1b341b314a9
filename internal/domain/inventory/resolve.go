package inventory

import (
	"context"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/catalog"
)

// ResolveKey picks the unit to move for an ordered line. When the ordered
// variant (or its product) no longer exists, the product-level unit is used.
func ResolveKey(ctx context.Context, reader catalog.Reader, productID id.ID, variantID *id.ID) (Key, error) {
	if variantID == nil {
		return ProductKey(productID), nil
	}
	p, err := reader.FindProductByID(ctx, productID)
	if apperror.IsNotFound(err) {
		return ProductKey(productID), nil
	}
	if err != nil {
		return Key{}, err
	}
	if _, ok := p.Variant(*variantID); !ok {
		return ProductKey(productID), nil
	}
	return VariantKey(productID, *variantID), nil
}
