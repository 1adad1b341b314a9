package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/tx"
	"marketplace/internal/domain/catalog"
)

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := catalog.Product{ID: id.New(), Title: "Lamp", Status: catalog.StatusActive}

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Catalog().PutProduct(ctx, p))
		_, err := s.Catalog().FindProductByID(ctx, p.ID)
		require.NoError(t, err, "visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Catalog().FindProductByID(ctx, p.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRunInTransaction_RollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := catalog.Product{ID: id.New(), Title: "Lamp"}

	assert.Panics(t, func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Catalog().PutProduct(ctx, p))
			panic("boom")
		})
	})

	_, err := s.Catalog().FindProductByID(ctx, p.ID)
	assert.True(t, apperror.IsNotFound(err))
	// the lock was released
	require.NoError(t, s.Catalog().PutProduct(ctx, p))
}

func TestRunInTransaction_NestedJoinsOuter(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := catalog.Product{ID: id.New(), Title: "Lamp"}

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		inner := s.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.Catalog().PutProduct(ctx, p)
		})
		require.NoError(t, inner)
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, err = s.Catalog().FindProductByID(ctx, p.ID)
	assert.True(t, apperror.IsNotFound(err), "inner write is undone with the outer transaction")
}

func TestRunInTransaction_HooksAfterCommitOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	var ran []string
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		tx.AfterCommit(ctx, func(ctx context.Context) {
			assert.False(t, s.inTx(ctx), "hooks get the outer context")
			ran = append(ran, "committed")
		})
		assert.Empty(t, ran)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"committed"}, ran)

	_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
		tx.AfterCommit(ctx, func(context.Context) { ran = append(ran, "rolled back") })
		return errors.New("fail")
	})
	assert.Equal(t, []string{"committed"}, ran)
}

func TestStoredValuesAreDetached(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := catalog.Product{ID: id.New(), Title: "Lamp"}
	require.NoError(t, s.Catalog().PutProduct(ctx, p))

	got, err := s.Catalog().FindProductByID(ctx, p.ID)
	require.NoError(t, err)
	got.Title = "Changed"

	again, err := s.Catalog().FindProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", again.Title)
}
