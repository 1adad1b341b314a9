package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
)

func TestProductUnitPrice(t *testing.T) {
	discount := types.MustMoney("80")
	p := Product{RegularPrice: types.MustMoney("100")}
	assert.True(t, types.MustMoney("100").Equal(p.UnitPrice()))

	p.DiscountPrice = &discount
	assert.True(t, discount.Equal(p.UnitPrice()))
}

func TestProductVariantLookup(t *testing.T) {
	vid := id.New()
	p := Product{Variants: []Variant{{ID: vid, Status: StatusActive, Price: types.MustMoney("12.50")}}}

	v, ok := p.Variant(vid)
	assert.True(t, ok)
	assert.True(t, v.IsActive())
	assert.True(t, types.MustMoney("12.50").Equal(v.UnitPrice()))

	_, ok = p.Variant(id.New())
	assert.False(t, ok)
}
