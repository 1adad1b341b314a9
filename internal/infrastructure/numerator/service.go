// Package numerator is the PostgreSQL implementation of core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "marketplace/internal/core/numerator"
)

// Querier is what the service needs from a pool or transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc resolves the querier per call, so numbers taken inside a
// business transaction roll back with it.
type QuerierFunc func(ctx context.Context) Querier

// Service hands out yearly sequences from sys_sequences.
type Service struct {
	querier QuerierFunc
}

var _ corenumerator.Generator = (*Service)(nil)

func New(querier QuerierFunc) *Service {
	return &Service{querier: querier}
}

// Next increments the sequence of cfg for the period's year and formats it.
// Pattern: PREFIX-YEAR-XXXXX (e.g., RET-2026-00001)
func (s *Service) Next(ctx context.Context, cfg corenumerator.Config, period time.Time) (string, error) {
	if s == nil || s.querier == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, cfg.Key(period)).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next %s: %w", cfg.Key(period), err)
	}
	return cfg.Format(period, num), nil
}

// SetNext moves a sequence so the following Next returns value+1 (data imports).
func (s *Service) SetNext(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	var result int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, cfg.Key(period), value).Scan(&result)
	if err != nil {
		return fmt.Errorf("set %s: %w", cfg.Key(period), err)
	}
	return nil
}

// ParseNumber extracts the numeric part of PREFIX-YEAR-NNNNN. Returns -1 on failure.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || num < 0 {
		return -1
	}
	return num
}
