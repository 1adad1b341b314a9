package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	ms, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	assert.Equal(t, "001", ms[0].Version)
	assert.Len(t, ms[0].Checksum, 64)
	for _, table := range []string{"stock_units", "orders", "order_items", "returns", "return_items", "refund_requests", "payment_contexts", "sys_outbox", "sys_audit"} {
		assert.Contains(t, ms[0].SQL, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
