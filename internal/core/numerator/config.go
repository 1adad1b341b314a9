package numerator

import (
	"fmt"
	"time"
)

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "RET")
	Prefix string

	// PadWidth is the minimum number width (default 5)
	PadWidth int
}

// DefaultConfig returns yearly numbering with five digits.
func DefaultConfig(prefix string) Config {
	return Config{Prefix: prefix, PadWidth: 5}
}

// Key is the sequence key; numbering resets every year.
func (c Config) Key(period time.Time) string {
	return fmt.Sprintf("%s_%s", c.Prefix, period.Format("2006"))
}

// Format renders PREFIX-YEAR-NNNNN.
func (c Config) Format(period time.Time, num int64) string {
	width := c.PadWidth
	if width == 0 {
		width = 5
	}
	return fmt.Sprintf("%s-%s-%0*d", c.Prefix, period.Format("2006"), width, num)
}
