// internal/repository/product_repository.go
package repository

import (
	"context"
	"fmt"

	"github.com/depomat/stockbi/internal/domain"
	"github.com/jmoiron/sqlx"
)

const productUpsertChunkSize = 1000

// ProductRepository maintains the SKU -> name catalog the alert rows
// denormalize from. The full catalog (prices, categories, Woo sync state)
// belongs to the catalog subsystem; the BI layer only keeps names current.
type ProductRepository interface {
	UpsertNames(ctx context.Context, products []domain.Product) error
}

type productRepository struct {
	db *sqlx.DB
}

func NewProductRepository(db *sqlx.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) UpsertNames(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	query := `
		INSERT INTO products (reference_product_id, name, created_at, updated_at)
		VALUES (:reference_product_id, :name, NOW(), NOW())
		ON CONFLICT (reference_product_id) DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = NOW()
	`

	for start := 0; start < len(products); start += productUpsertChunkSize {
		end := start + productUpsertChunkSize
		if end > len(products) {
			end = len(products)
		}
		if _, err := r.db.NamedExecContext(ctx, query, products[start:end]); err != nil {
			return fmt.Errorf("error upserting products: %w", err)
		}
	}

	return nil
}
