package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"market/internal/market"
	"market/internal/model"
)

const uniqueViolationCode = "23505"

type MarketRepository struct {
	db *pgxpool.Pool
}

func NewMarketRepository(db *pgxpool.Pool) *MarketRepository {
	return &MarketRepository{db: db}
}

// RunSerializable executes fn inside a serializable transaction. The
// transaction is injected into the context so that repository methods called
// from fn run against it. Rollback is deferred; it is a no-op after commit.
func (r *MarketRepository) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type txKey struct{}

func (r *MarketRepository) getExecutor(ctx context.Context) PgxExecutor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.db
}

// PgxExecutor is an interface that matches both *pgxpool.Pool and pgx.Tx
type PgxExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetUserForUpdate locks the user row and returns it
func (r *MarketRepository) GetUserForUpdate(ctx context.Context, userID int) (model.User, error) {
	var u model.User
	err := r.getExecutor(ctx).QueryRow(ctx,
		"SELECT id, email, balance FROM users WHERE id = $1 FOR UPDATE", userID).
		Scan(&u.ID, &u.Email, &u.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, market.ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *MarketRepository) GetItem(ctx context.Context, itemID int) (model.Item, error) {
	var it model.Item
	err := r.getExecutor(ctx).QueryRow(ctx,
		"SELECT id, name, cost FROM items WHERE id = $1", itemID).
		Scan(&it.ID, &it.Name, &it.Cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Item{}, market.ErrItemNotFound
		}
		return model.Item{}, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

func (r *MarketRepository) HasPurchase(ctx context.Context, userID, itemID int) (bool, error) {
	var exists bool
	err := r.getExecutor(ctx).QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM user_items WHERE user_id = $1 AND item_id = $2)",
		userID, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return exists, nil
}

func (r *MarketRepository) DeductBalance(ctx context.Context, userID int, amount decimal.Decimal) error {
	_, err := r.getExecutor(ctx).Exec(ctx,
		"UPDATE users SET balance = balance - $1 WHERE id = $2", amount, userID)
	if err != nil {
		return fmt.Errorf("failed to update user balance: %w", err)
	}
	return nil
}

// CreatePurchase inserts a purchase record. The unique (user_id, item_id)
// constraint is the last line of defense against concurrent duplicates, so a
// unique violation surfaces as ErrAlreadyPurchased.
func (r *MarketRepository) CreatePurchase(ctx context.Context, userID, itemID int, at time.Time) error {
	_, err := r.getExecutor(ctx).Exec(ctx,
		"INSERT INTO user_items (user_id, item_id, purchased_at) VALUES ($1, $2, $3)",
		userID, itemID, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return market.ErrAlreadyPurchased
		}
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// PurchasesInRange returns the user's purchases with purchased_at in
// [from, to), enriched with the user email and item name.
func (r *MarketRepository) PurchasesInRange(ctx context.Context, userID int, from, to time.Time) ([]model.TodayPurchase, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
		SELECT ui.user_id, u.email, ui.item_id, i.name, ui.purchased_at
		FROM user_items ui
		JOIN users u ON u.id = ui.user_id
		JOIN items i ON i.id = ui.item_id
		WHERE ui.user_id = $1 AND ui.purchased_at >= $2 AND ui.purchased_at < $3
		ORDER BY ui.purchased_at`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	purchases := make([]model.TodayPurchase, 0)
	for rows.Next() {
		var p model.TodayPurchase
		if err := rows.Scan(&p.UserID, &p.UserEmail, &p.ItemID, &p.ItemName, &p.PurchasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read purchases: %w", err)
	}
	return purchases, nil
}

// DailyItemCounts groups the whole purchase history by (year, item, day) and
// counts purchases per group. The per-year aggregation happens in the service.
func (r *MarketRepository) DailyItemCounts(ctx context.Context) ([]model.DailyItemCount, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
		SELECT EXTRACT(YEAR FROM ui.purchased_at)::int AS year,
		       i.id, i.name,
		       ui.purchased_at::date AS day,
		       COUNT(*)::int
		FROM user_items ui
		JOIN items i ON i.id = ui.item_id
		GROUP BY year, i.id, i.name, day`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	counts := make([]model.DailyItemCount, 0)
	for rows.Next() {
		var c model.DailyItemCount
		if err := rows.Scan(&c.Year, &c.ItemID, &c.ItemName, &c.Day, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read daily counts: %w", err)
	}
	return counts, nil
}

// TopPopularItemsPerYear computes the whole report in SQL. The service
// computes the same report in memory from DailyItemCounts; the two must stay
// equivalent, which the repository integration tests assert.
func (r *MarketRepository) TopPopularItemsPerYear(ctx context.Context) ([]model.PopularItem, error) {
	rows, err := r.getExecutor(ctx).Query(ctx, `
		WITH daily AS (
			SELECT EXTRACT(YEAR FROM ui.purchased_at)::int AS year,
			       i.id AS item_id, i.name,
			       ui.purchased_at::date AS day,
			       COUNT(*)::int AS cnt
			FROM user_items ui
			JOIN items i ON i.id = ui.item_id
			GROUP BY year, i.id, i.name, day
		), peaks AS (
			SELECT year, item_id, name, MAX(cnt) AS peak
			FROM daily
			GROUP BY year, item_id, name
		), ranked AS (
			SELECT year, item_id, name, peak,
			       ROW_NUMBER() OVER (PARTITION BY year ORDER BY peak DESC, item_id ASC) AS rn
			FROM peaks
		)
		SELECT year, item_id, name, peak
		FROM ranked
		WHERE rn <= 3
		ORDER BY year ASC, peak DESC, item_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular items: %w", err)
	}
	defer rows.Close()

	items := make([]model.PopularItem, 0)
	for rows.Next() {
		var p model.PopularItem
		if err := rows.Scan(&p.Year, &p.ItemID, &p.ItemName, &p.PeakDailyPopularity); err != nil {
			return nil, fmt.Errorf("failed to scan popular item: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read popular items: %w", err)
	}
	return items, nil
}
