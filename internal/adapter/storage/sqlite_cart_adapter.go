package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rl1809/bookshop/internal/core/domain"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// OpenSQLite opens a single-connection SQLite database. One connection keeps
// ":memory:" databases shared and serialises writers.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

type SQLiteCartAdapter struct {
	db *sql.DB
}

func NewSQLiteCartAdapter(db *sql.DB) *SQLiteCartAdapter {
	return &SQLiteCartAdapter{db: db}
}

func (s *SQLiteCartAdapter) RunMigrations() error {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteCartAdapter) GetByCustomerID(ctx context.Context, customerID string) (*domain.Cart, error) {
	var (
		cart                 domain.Cart
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, created_at, updated_at
		FROM carts WHERE customer_id = ?`, customerID,
	).Scan(&cart.ID, &cart.CustomerID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	cart.CreatedAt = parseTime(createdAt)
	cart.UpdatedAt = parseTime(updatedAt)

	items, err := s.listItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

func (s *SQLiteCartAdapter) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO carts (id, customer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(customer_id) DO NOTHING`,
		uuid.NewString(), customerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}
	return s.GetByCustomerID(ctx, customerID)
}

func (s *SQLiteCartAdapter) UpsertItem(ctx context.Context, cartID string, item domain.CartItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, book_id, book_title, book_price, quantity, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cart_id, book_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		item.ID, cartID, item.BookID, item.BookTitle, item.BookPrice.String(), item.Quantity, formatTime(item.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return s.touch(ctx, cartID)
}

func (s *SQLiteCartAdapter) SetItemQuantity(ctx context.Context, cartID, bookID string, quantity int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND book_id = ?`,
		quantity, cartID, bookID,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrItemNotFound
	}
	return s.touch(ctx, cartID)
}

func (s *SQLiteCartAdapter) RemoveItem(ctx context.Context, cartID, bookID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = ? AND book_id = ?`, cartID, bookID,
	)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrItemNotFound
	}
	return s.touch(ctx, cartID)
}

func (s *SQLiteCartAdapter) ClearItems(ctx context.Context, cartID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return s.touch(ctx, cartID)
}

func (s *SQLiteCartAdapter) listItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cart_id, book_id, book_title, book_price, quantity, added_at
		FROM cart_items WHERE cart_id = ?
		ORDER BY rowid`, cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var (
			item    domain.CartItem
			addedAt string
		)
		if err := rows.Scan(&item.ID, &item.CartID, &item.BookID, &item.BookTitle, &item.BookPrice, &item.Quantity, &addedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.AddedAt = parseTime(addedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteCartAdapter) touch(ctx context.Context, cartID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE carts SET updated_at = ? WHERE id = ?`, formatTime(time.Now()), cartID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
