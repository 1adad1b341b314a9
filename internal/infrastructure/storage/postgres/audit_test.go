package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/domain/audit"
)

func TestAuditRecorder_CompressesLargeChanges(t *testing.T) {
	r, err := NewAuditRecorder(nil)
	require.NoError(t, err)

	actor := security.Actor{ID: id.New(), Role: security.RoleVendor}
	small := audit.NewEntry("order", id.New(), audit.ActionStatusChange, actor).WithChange("status", "PENDING", "CONFIRMED")

	row, err := r.encode(small)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.NotEmpty(t, row.Changes)
	assert.False(t, id.IsNil(row.ID))
	assert.Equal(t, "vendor", row.ActorRole)

	big := audit.NewEntry("order", id.New(), audit.ActionCancel, actor).WithChange("reason", "", strings.Repeat("x", 20*1024))
	row, err = r.encode(big)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Changes)
	assert.Less(t, len(row.ChangesCompressed), 20*1024)

	back, err := r.decode(row)
	require.NoError(t, err)
	assert.Equal(t, big.EntityID, back.EntityID)
	reason := back.Changes["reason"].(map[string]any)
	assert.Len(t, reason["to"], 20*1024)
}
