package repository

import (
	"context"
	"sort"
	"time"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockLine is one (product, size, quantity) to take out of inventory.
type StockLine struct {
	ProductID uuid.UUID
	Size      string
	Quantity  int
}

// ProductRepository is the read side of the catalog used at checkout.
type ProductRepository interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &GormProductRepository{db: db}
}

// FindByIDs loads the products with their size buckets, keyed by id.
// Missing ids are simply absent from the map.
func (r *GormProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []models.Product
	if err := r.db.WithContext(ctx).
		Preload("Sizes").
		Where("id IN ?", ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

// decrementStock takes every line out of its size bucket with a conditional
// update and then refreshes count_in_stock for the touched products. Lines are
// applied in (product, size) order so concurrent checkouts lock rows in the
// same order. Must run inside a transaction.
func decrementStock(tx *gorm.DB, lines []StockLine) error {
	sorted := make([]StockLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID.String() < sorted[j].ProductID.String()
		}
		return sorted[i].Size < sorted[j].Size
	})

	touched := make([]uuid.UUID, 0, len(sorted))
	seen := make(map[uuid.UUID]bool, len(sorted))
	for _, line := range sorted {
		res := tx.Model(&models.ProductSize{}).
			Where("product_id = ? AND size = ? AND stock >= ?", line.ProductID, line.Size, line.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &StockError{ProductID: line.ProductID, Size: line.Size, Requested: line.Quantity}
		}
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			touched = append(touched, line.ProductID)
		}
	}

	now := time.Now()
	for _, pid := range touched {
		if err := tx.Exec(
			`UPDATE products SET count_in_stock = (SELECT COALESCE(SUM(stock), 0) FROM product_sizes WHERE product_id = ?), updated_at = ? WHERE id = ?`,
			pid, now, pid,
		).Error; err != nil {
			return err
		}
	}
	return nil
}
