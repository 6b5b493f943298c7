package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRecorder struct {
	db *sql.DB
}

// NewOrderRecorder создаёт PostgreSQL-реализацию OrderPersistence.
func NewOrderRecorder(store *Store) *orderRecorder {
	return &orderRecorder{db: store.DB()}
}

// CreateOrder записывает заказ и его позиции в одной транзакции.
// Повторная запись с тем же intent_ref возвращает ref уже существующего заказа:
// платёж подтверждён один раз, заказ тоже должен существовать один раз.
func (r *orderRecorder) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if order.Ref == "" {
		order.Ref = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(opCtx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(opCtx, `
		INSERT INTO orders (
			ref, user_id, currency, amount_minor, intent_ref, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		order.Ref, order.UserID, order.Currency, order.AmountMinor,
		order.IntentRef, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := r.refByIntent(opCtx, order.IntentRef)
			if lookupErr == nil && existing != "" {
				_ = tx.Rollback()
				err = nil
				return existing, nil
			}
		}
		return "", fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		if _, err = tx.ExecContext(opCtx, `
			INSERT INTO order_lines (
				order_ref, product_id, unit_price_minor, quantity, snapshot_name, snapshot_image_ref
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			order.Ref, line.ProductID, line.UnitPriceMinor, line.Quantity,
			line.SnapshotName, line.SnapshotImageRef,
		); err != nil {
			return "", fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create order: %w", err)
	}

	return order.Ref, nil
}

// GetByRef возвращает сохранённый заказ вместе с позициями.
func (r *orderRecorder) GetByRef(ctx context.Context, ref string) (domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := r.db.QueryRowContext(opCtx, `
		SELECT ref, user_id, currency, amount_minor, intent_ref, created_at
		FROM orders
		WHERE ref = $1
	`, ref).Scan(
		&order.Ref, &order.UserID, &order.Currency,
		&order.AmountMinor, &order.IntentRef, &order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(opCtx, order.Ref)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRecorder) loadLines(ctx context.Context, orderRef string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, unit_price_minor, quantity, snapshot_name, snapshot_image_ref
		FROM order_lines
		WHERE order_ref = $1
		ORDER BY id ASC
	`, orderRef)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.ProductID, &line.UnitPriceMinor, &line.Quantity,
			&line.SnapshotName, &line.SnapshotImageRef,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}

	return lines, nil
}

func (r *orderRecorder) refByIntent(ctx context.Context, intentRef string) (string, error) {
	var ref string
	err := r.db.QueryRowContext(ctx, `SELECT ref FROM orders WHERE intent_ref = $1`, intentRef).Scan(&ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup order by intent: %w", err)
	}
	return ref, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderPersistence = (*orderRecorder)(nil)
