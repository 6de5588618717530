package repository

import (
	"context"
	"errors"

	"checkout-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderMutation edits a locked order in place. Returning false skips the write.
type OrderMutation func(order *models.Order) (changed bool, err error)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	CreateWithStock(ctx context.Context, order *models.Order, lines []StockLine) error
	FindByIDAndUserID(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, status string, page, limit int) ([]models.Order, int64, error)
	Mutate(ctx context.Context, orderID uuid.UUID, fn OrderMutation) (*models.Order, error)
}

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// CreateWithStock inserts the order and its items and decrements inventory in
// one transaction. Any short bucket rolls everything back.
func (r *GormOrderRepository) CreateWithStock(ctx context.Context, order *models.Order, lines []StockLine) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return decrementStock(tx, lines)
	})
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateOrderNumber
	}
	return err
}

func (r *GormOrderRepository) FindByIDAndUserID(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ? AND user_id = ?", orderID, userID)
}

func (r *GormOrderRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	return r.findOne(ctx, "payment_transaction_id = ?", transactionID)
}

func (r *GormOrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return r.findOne(ctx, "payment_gateway_order_id = ?", gatewayOrderID)
}

func (r *GormOrderRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where(query, args...).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByUserID retrieves orders for a user, newest first. An empty status or
// "all" disables the status filter.
func (r *GormOrderRepository) FindByUserID(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	return r.paginate(query, status, page, limit)
}

func (r *GormOrderRepository) FindAll(ctx context.Context, status string, page, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	return r.paginate(query, status, page, limit)
}

func (r *GormOrderRepository) paginate(query *gorm.DB, status string, page, limit int) ([]models.Order, int64, error) {
	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	offset := (page - 1) * limit
	if err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Mutate locks the order row (SELECT ... FOR UPDATE), applies fn and saves the
// order columns when fn reports a change. Items are never rewritten.
func (r *GormOrderRepository) Mutate(ctx context.Context, orderID uuid.UUID, fn OrderMutation) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).
			First(&order).Error; err != nil {
			return err
		}
		changed, err := fn(&order)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.Omit(clause.Associations).Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", order.ID).Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// IsNotFound reports whether err means the order does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
