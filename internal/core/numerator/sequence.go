package numerator

import (
	"context"
	"sync"
	"time"
)

// SequenceGenerator is an in-process Generator for tests and memory storage.
type SequenceGenerator struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{seqs: make(map[string]int64)}
}

// Next implements Generator.
func (g *SequenceGenerator) Next(_ context.Context, cfg Config, period time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := cfg.Key(period)
	g.seqs[key]++
	return cfg.Format(period, g.seqs[key]), nil
}

var _ Generator = (*SequenceGenerator)(nil)
