package numerator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "marketplace/internal/core/numerator"
)

type fakeRow struct {
	val int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.val
	return nil
}

type fakeQuerier struct {
	keys []string
	next map[string]int64
	err  error
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	key := args[0].(string)
	q.keys = append(q.keys, key)
	if q.err != nil {
		return fakeRow{err: q.err}
	}
	q.next[key]++
	return fakeRow{val: q.next[key]}
}

func TestService_Next(t *testing.T) {
	q := &fakeQuerier{next: map[string]int64{}}
	s := New(func(context.Context) Querier { return q })
	cfg := corenumerator.DefaultConfig("RET")
	period := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	n, err := s.Next(context.Background(), cfg, period)
	require.NoError(t, err)
	assert.Equal(t, "RET-2026-00001", n)

	n, err = s.Next(context.Background(), cfg, period)
	require.NoError(t, err)
	assert.Equal(t, "RET-2026-00002", n)
	assert.Equal(t, []string{"RET_2026", "RET_2026"}, q.keys)
}

func TestService_NextError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("boom")}
	s := New(func(context.Context) Querier { return q })

	_, err := s.Next(context.Background(), corenumerator.DefaultConfig("RET"), time.Now())
	assert.ErrorContains(t, err, "boom")
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(42), ParseNumber("RET-2026-00042"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
	assert.Equal(t, int64(-1), ParseNumber("RET-2026-x"))
}
