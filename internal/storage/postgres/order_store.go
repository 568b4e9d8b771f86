package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

const pgUniqueViolation = "23505"

const orderColumns = `order_id, price, quantity, product_id, customer_id, seller_id, status, created_at, updated_at`

// OrderStore хранит заказы в таблице orders.
type OrderStore struct {
	store *Store
}

// NewOrderStore создаёт хранилище заказов поверх открытого пула.
func NewOrderStore(store *Store) *OrderStore {
	return &OrderStore{store: store}
}

// Insert сохраняет новый заказ. При нарушении уникальности order_id возвращает ErrDuplicateKey.
func (r *OrderStore) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	row := r.store.db.QueryRowContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+orderColumns,
		order.OrderID,
		order.Price,
		order.Quantity,
		order.ProductID,
		order.CustomerID,
		order.SellerID,
		string(order.Status),
		order.CreatedAt.UTC(),
		order.UpdatedAt.UTC(),
	)

	stored, err := scanOrder(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, fmt.Errorf("order %s: %w", order.OrderID, domain.ErrDuplicateKey)
		}
		return domain.Order{}, storeError("insert order", err)
	}
	return stored, nil
}

// FindAll возвращает заказы в порядке создания.
func (r *OrderStore) FindAll(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR seller_id = $1)
		ORDER BY created_at ASC, order_id ASC
	`, filter.SellerID)
	if err != nil {
		return nil, storeError("query orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, storeError("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate orders", err)
	}
	return orders, nil
}

// FindByOrderID возвращает заказ по бизнес-идентификатору.
func (r *OrderStore) FindByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	row := r.store.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, storeError("select order", err)
	}
	return order, nil
}

// UpdateByOrderID применяет патч одним UPDATE ... RETURNING.
// NULL-параметр оставляет колонку без изменений; updated_at не может уйти назад.
func (r *OrderStore) UpdateByOrderID(ctx context.Context, orderID string, patch domain.OrderPatch, updatedAt time.Time) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	row := r.store.db.QueryRowContext(ctx, `
		UPDATE orders SET
			price       = COALESCE($2::numeric, price),
			quantity    = COALESCE($3::bigint, quantity),
			product_id  = COALESCE($4::text, product_id),
			customer_id = COALESCE($5::text, customer_id),
			seller_id   = COALESCE($6::text, seller_id),
			status      = COALESCE($7::text, status),
			updated_at  = GREATEST($8::timestamptz, updated_at + INTERVAL '1 microsecond')
		WHERE order_id = $1
		RETURNING `+orderColumns,
		orderID,
		nullableDecimal(patch.Price),
		nullableInt64(patch.Quantity),
		nullableString(patch.ProductID),
		nullableString(patch.CustomerID),
		nullableString(patch.SellerID),
		nullableStatus(patch.Status),
		updatedAt.UTC(),
	)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, storeError("update order", err)
	}
	return order, nil
}

// DeleteByOrderID удаляет заказ или возвращает ErrOrderNotFound.
func (r *OrderStore) DeleteByOrderID(ctx context.Context, orderID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return storeError("delete order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeError("delete order rows affected", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderStore) ready() error {
	if r == nil || r.store == nil || r.store.db == nil {
		return storeError("order store", errNotInitialized)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		price  decimal.Decimal
		status string
	)
	if err := row.Scan(
		&order.OrderID,
		&price,
		&order.Quantity,
		&order.ProductID,
		&order.CustomerID,
		&order.SellerID,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Price = price
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStore, err))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullableDecimal(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStatus(v *domain.OrderStatus) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

var _ domain.OrderStore = (*OrderStore)(nil)
