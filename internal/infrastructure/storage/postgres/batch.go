package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CopyRows bulk-inserts rows with the COPY protocol. It needs a transaction
// so the rows commit together with the parent record.
func (m *TxManager) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	t := m.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// RowValues lays out items as COPY rows in column order using their db tags.
func RowValues[T any](items []T, columns []string) [][]any {
	rows := make([][]any, 0, len(items))
	for i := range items {
		m := StructToMap(&items[i])
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = m[c]
		}
		rows = append(rows, row)
	}
	return rows
}
