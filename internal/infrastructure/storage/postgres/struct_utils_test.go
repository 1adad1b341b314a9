package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
)

type stamps struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type row struct {
	stamps
	ID       id.ID       `db:"id"`
	Amount   types.Money `db:"amount"`
	Note     *string     `db:"note"`
	Items    []int       `db:"-"`
	internal string
}

func TestExtractDBColumns_FlattensEmbedded(t *testing.T) {
	cols := ExtractDBColumns[row]()
	assert.Equal(t, []string{"created_at", "updated_at", "id", "amount", "note"}, cols)
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	r := row{
		stamps: stamps{CreatedAt: now, UpdatedAt: now},
		ID:     id.New(),
		Amount: types.MustMoney("9.99"),
		Items:  []int{1},
	}

	m := StructToMap(&r)

	assert.Equal(t, r.ID, m["id"])
	assert.Equal(t, now, m["created_at"])
	assert.True(t, types.MustMoney("9.99").Equal(m["amount"].(types.Money)))
	assert.Nil(t, m["note"])
	assert.NotContains(t, m, "Items")
	assert.Len(t, m, 5)
}

func TestColumns(t *testing.T) {
	m := Columns(map[string]any{"a": 1, "b": 2, "c": 3}, []string{"a", "c", "z"})
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, m)
}
