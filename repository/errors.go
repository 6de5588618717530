package repository

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// StockError names the bucket whose conditional decrement matched no row.
type StockError struct {
	ProductID uuid.UUID
	Size      string
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s size %s (requested %d)", e.ProductID, e.Size, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
