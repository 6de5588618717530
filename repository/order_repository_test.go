package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"checkout-service/models"
	"checkout-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func newOrder() (*models.Order, []repository.StockLine) {
	productID := uuid.New()
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ONS123456ABCDEF",
		UserID:      uuid.New(),
		Items: []models.OrderItem{{
			ID:           uuid.New(),
			ProductID:    productID,
			ProductName:  "Linen Shirt",
			Quantity:     2,
			Size:         "M",
			PriceAtOrder: 500,
		}},
		ShippingCharges: 0,
		TaxAmount:       20,
		PaymentDetails:  models.PaymentDetails{Method: models.PaymentMethodUPI, Status: models.PaymentStatusPending},
		Status:          models.OrderStatusPending,
	}
	return order, []repository.StockLine{{ProductID: productID, Size: "M", Quantity: 2}}
}

func TestCreateWithStock_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	order, lines := newOrder()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(order.ID))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "order_items"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(order.Items[0].ID))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "product_sizes" SET "stock"=stock - $1 WHERE product_id = $2 AND size = $3 AND stock >= $4`)).
		WithArgs(2, lines[0].ProductID, "M", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET count_in_stock`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateWithStock(context.Background(), order, lines)
	assert.NoError(t, err)
	assert.Equal(t, 1020, order.TotalAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithStock_InsufficientStockRollsBack(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	order, lines := newOrder()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(order.ID))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "order_items"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(order.Items[0].ID))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "product_sizes"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateWithStock(context.Background(), order, lines)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	var stockErr *repository.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, lines[0].ProductID, stockErr.ProductID)
	assert.Equal(t, "M", stockErr.Size)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithStock_DuplicateOrderNumber(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	order, lines := newOrder()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "orders"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.CreateWithStock(context.Background(), order, lines)
	assert.ErrorIs(t, err, repository.ErrDuplicateOrderNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDAndUserID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE id = $1 AND user_id = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	o, err := repo.FindByIDAndUserID(context.Background(), uuid.New(), uuid.New())
	assert.Error(t, err)
	assert.True(t, repository.IsNotFound(err))
	assert.Nil(t, o)
}

func TestFindByUserID_FiltersAndPreloadsItems(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	userID := uuid.New()
	orderID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "orders" WHERE user_id = $1 AND status = $2`)).
		WithArgs(userID, models.OrderStatusConfirmed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "user_id", "status", "total_amount", "created_at", "updated_at"}).
			AddRow(orderID, "ONS123456ABCDEF", userID, models.OrderStatusConfirmed, 1070, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_items" WHERE "order_items"."order_id" = $1`)).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "product_name", "quantity", "size", "price_at_order", "item_subtotal"}).
			AddRow(uuid.New(), orderID, uuid.New(), "Linen Shirt", 2, "M", 500, 1000))

	orders, total, err := repo.FindByUserID(context.Background(), userID, models.OrderStatusConfirmed, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, orders, 1)
	assert.Equal(t, "ONS123456ABCDEF", orders[0].OrderNumber)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "Linen Shirt", orders[0].Items[0].ProductName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutate_NoChangeSkipsWrite(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	orderID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "payment_status"}).
			AddRow(orderID, models.OrderStatusConfirmed, models.PaymentStatusCompleted))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_items" WHERE order_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	o, err := repo.Mutate(context.Background(), orderID, func(o *models.Order) (bool, error) {
		return o.PaymentDetails.Status != models.PaymentStatusCompleted, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, o.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutate_SavesChange(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	orderID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "items_subtotal", "shipping_charges", "tax_amount"}).
			AddRow(orderID, models.OrderStatusPending, 1000, 50, 20))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_items"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	o, err := repo.Mutate(context.Background(), orderID, func(o *models.Order) (bool, error) {
		o.ApplyStatus(models.OrderStatusConfirmed, "", time.Now())
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, o.Status)
	assert.NotNil(t, o.ConfirmedAt)
	assert.Equal(t, 1070, o.TotalAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutate_PropagatesCallbackError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)
	orderID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(orderID, models.OrderStatusShipped))
	mock.ExpectRollback()

	boom := errors.New("not allowed")
	o, err := repo.Mutate(context.Background(), orderID, func(o *models.Order) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, o)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDs_PreloadsSizes(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormProductRepository(gormDB)
	productID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE id IN ($1)`)).
		WithArgs(productID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price", "count_in_stock"}).
			AddRow(productID, "Linen Shirt", 500, 7))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "product_sizes" WHERE "product_sizes"."product_id" = $1`)).
		WithArgs(productID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "size", "stock"}).
			AddRow(uuid.New(), productID, "M", 5).
			AddRow(uuid.New(), productID, "L", 2))

	products, err := repo.FindByIDs(context.Background(), []uuid.UUID{productID})
	require.NoError(t, err)
	require.Contains(t, products, productID)
	stock, ok := products[productID].SizeStock("L")
	assert.True(t, ok)
	assert.Equal(t, 2, stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDs_EmptyInputSkipsQuery(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormProductRepository(gormDB)

	products, err := repo.FindByIDs(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, products)
	assert.NoError(t, mock.ExpectationsWereMet())
}
