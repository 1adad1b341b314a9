// Package numerator provides the contract for human-readable sequential numbers.
// Implementations live in infrastructure layer.
package numerator

import (
	"context"
	"time"
)

// Generator generates sequential numbers.
// Pattern: PREFIX-YEAR-XXXXX (e.g., RET-2026-00001)
type Generator interface {
	Next(ctx context.Context, cfg Config, period time.Time) (string, error)
}
