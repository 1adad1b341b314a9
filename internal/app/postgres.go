package app

import (
	"context"
	"fmt"

	"marketplace/internal/infrastructure/numerator"
	"marketplace/internal/infrastructure/storage/postgres"
	"marketplace/internal/infrastructure/storage/postgres/catalog_repo"
	"marketplace/internal/infrastructure/storage/postgres/inventory_repo"
	"marketplace/internal/infrastructure/storage/postgres/order_repo"
	"marketplace/internal/infrastructure/storage/postgres/return_repo"
)

// PostgresStores wires every repository over one transaction manager.
func PostgresStores(txm *postgres.TxManager) (Stores, error) {
	auditRecorder, err := postgres.NewAuditRecorder(txm)
	if err != nil {
		return Stores{}, fmt.Errorf("audit recorder: %w", err)
	}
	orderRepo := order_repo.NewOrderRepo(txm)

	return Stores{
		TxManager: txm,
		Catalog:   catalog_repo.NewProductRepo(txm),
		Carts:     catalog_repo.NewCartRepo(txm),
		Inventory: inventory_repo.NewStockRepo(txm),
		Orders:    orderRepo,
		Payments:  orderRepo,
		Refunds:   orderRepo,
		OrderRows: orderRepo,
		Returns:   return_repo.NewReturnRepo(txm),
		Outbox:    postgres.NewOutboxPublisher(txm),
		Audit:     auditRecorder,
		Numerator: numerator.New(func(ctx context.Context) numerator.Querier {
			return txm.GetQuerier(ctx)
		}),
	}, nil
}
