package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the items table if it doesn't exist. The schema must
// stay in step with migrations/00001_create_items.sql.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS items (
			id         VARCHAR(64) PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			price      BIGINT NOT NULL CHECK (price > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Create inserts a new item, rejecting duplicate IDs. The database
// assigns the creation timestamp and stamps it back onto the item.
func (p *PostgresStore) Create(ctx context.Context, item *Item) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO items (id, name, price, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, item.ID, item.Name, item.Price).Scan(&item.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrItemExists
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// Get retrieves an item by ID.
func (p *PostgresStore) Get(ctx context.Context, id string) (*Item, error) {
	var item Item
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, price, created_at FROM items WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.Price, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// List returns items ordered by ID.
func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Item, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, price, created_at FROM items ORDER BY id LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	return result, rows.Err()
}
