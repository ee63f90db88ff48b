package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rl1809/bookshop/internal/core/domain"
)

//go:embed migrations/mysql/*.sql
var mysqlMigrations embed.FS

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// RunMigrations applies the embedded schema.
func (m *MySQLAdapter) RunMigrations() error {
	src, err := iofs.New(mysqlMigrations, "migrations/mysql")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := migratemysql.WithInstance(m.db, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	var book domain.Book
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, author, price, stock, created_at, updated_at
		FROM books WHERE id = ?`, bookID,
	).Scan(&book.ID, &book.Title, &book.Author, &book.Price, &book.Stock, &book.CreatedAt, &book.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query book: %w", err)
	}

	return &book, nil
}

func (m *MySQLAdapter) SaveBook(ctx context.Context, book domain.Book) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, price, stock)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title), author = VALUES(author), price = VALUES(price),
			stock = VALUES(stock), updated_at = NOW(6)`,
		book.ID, book.Title, book.Author, book.Price, book.Stock,
	)
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ReduceStock(ctx context.Context, bookID string, quantity int) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE books
		SET stock = stock - ?, updated_at = NOW(6)
		WHERE id = ? AND stock >= ?`,
		quantity, bookID, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := currentStock(ctx, tx, bookID); err != nil {
			return 0, err
		}
		return 0, domain.ErrInsufficientStock
	}

	stock, err := currentStock(ctx, tx, bookID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stock, nil
}

func (m *MySQLAdapter) IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE books
		SET stock = stock + ?, updated_at = NOW(6)
		WHERE id = ?`,
		quantity, bookID,
	)
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, domain.ErrBookNotFound
	}

	stock, err := currentStock(ctx, tx, bookID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stock, nil
}

func currentStock(ctx context.Context, tx *sql.Tx, bookID string) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx, `SELECT stock FROM books WHERE id = ?`, bookID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrBookNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return stock, nil
}
