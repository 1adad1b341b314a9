package numerator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceGenerator_YearlyReset(t *testing.T) {
	g := NewSequenceGenerator()
	cfg := DefaultConfig("RET")
	ctx := context.Background()

	y26 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	y27 := time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC)

	n, err := g.Next(ctx, cfg, y26)
	require.NoError(t, err)
	assert.Equal(t, "RET-2026-00001", n)

	n, _ = g.Next(ctx, cfg, y26)
	assert.Equal(t, "RET-2026-00002", n)

	n, _ = g.Next(ctx, cfg, y27)
	assert.Equal(t, "RET-2027-00001", n)
}

func TestConfig_FormatWidth(t *testing.T) {
	cfg := Config{Prefix: "RET", PadWidth: 3}
	assert.Equal(t, "RET-2026-042", cfg.Format(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 42))
}
