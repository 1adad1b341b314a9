package inventory_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/id"
	"marketplace/internal/domain/inventory"
)

func TestSelectUnit_ProductLevel(t *testing.T) {
	pid := id.New()
	sql, args, err := selectUnit(inventory.Key{ProductID: pid}, true).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "product_id = $1")
	assert.Contains(t, sql, "variant_id IS NULL")
	assert.True(t, strings.HasSuffix(sql, "FOR UPDATE"))
	assert.Len(t, args, 1)
}

func TestSelectUnit_Variant(t *testing.T) {
	pid, vid := id.New(), id.New()
	sql, args, err := selectUnit(inventory.Key{ProductID: pid, VariantID: &vid}, false).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "product_id = $1")
	assert.Contains(t, sql, "variant_id = $2")
	assert.NotContains(t, sql, "FOR UPDATE")
	assert.Len(t, args, 2)
}

func TestMovementsQuery_Filters(t *testing.T) {
	typ := inventory.MovementOut
	from := time.Now().Add(-time.Hour)
	sql, args, err := movementsQuery(inventory.Key{ProductID: id.New()}, inventory.MovementFilter{
		Type:  &typ,
		From:  &from,
		Limit: 10,
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "type = $2")
	assert.Contains(t, sql, "created_at >= $3")
	assert.Contains(t, sql, "ORDER BY created_at DESC, id DESC")
	assert.Contains(t, sql, "LIMIT 10")
	assert.Len(t, args, 3)
}

func TestLowStockQuery(t *testing.T) {
	sql, args, err := lowStockQuery(id.New()).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "JOIN products p ON p.id = su.product_id")
	assert.Contains(t, sql, "p.user_id = $1")
	assert.Contains(t, sql, "su.quantity_available <= su.reorder_level")
	assert.Len(t, args, 1)
}
