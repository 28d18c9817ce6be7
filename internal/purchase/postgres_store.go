package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/msall/kaalis/internal/pagination"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
//
// The UNIQUE constraint on confirmed_purchases.ref_command carries the
// exactly-once guarantee; everything else is plain row storage.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed purchase store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the purchase tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pending_purchases (
			ref_command  VARCHAR(80) PRIMARY KEY,
			user_id      VARCHAR(64) NOT NULL,
			item_id      VARCHAR(64) NOT NULL,
			item_name    VARCHAR(255) NOT NULL,
			amount       BIGINT NOT NULL CHECK (amount > 0),
			currency     VARCHAR(8) NOT NULL,
			status       VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS confirmed_purchases (
			ref_command       VARCHAR(80) NOT NULL UNIQUE,
			user_id           VARCHAR(64) NOT NULL,
			item_id           VARCHAR(64) NOT NULL,
			item_name         VARCHAR(255) NOT NULL,
			amount            BIGINT NOT NULL,
			currency          VARCHAR(8) NOT NULL,
			status            VARCHAR(20) NOT NULL DEFAULT 'completed',
			payment_method    VARCHAR(64),
			payment_reference VARCHAR(128),
			client_phone      VARCHAR(32),
			raw_notification  BYTEA,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_confirmed_purchases_user ON confirmed_purchases(user_id);
	`)
	return err
}

// CreatePending inserts a new pending purchase.
func (p *PostgresStore) CreatePending(ctx context.Context, pp *PendingPurchase) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pending_purchases (
			ref_command, user_id, item_id, item_name, amount, currency, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		pp.RefCommand, pp.UserID, pp.ItemID, pp.ItemName,
		pp.Amount, pp.Currency, string(pp.Status), pp.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrPendingExists
	}
	if err != nil {
		return fmt.Errorf("insert pending purchase: %w", err)
	}
	return nil
}

// GetPending retrieves a pending purchase by ref command.
func (p *PostgresStore) GetPending(ctx context.Context, refCommand string) (*PendingPurchase, error) {
	var pp PendingPurchase
	var status string
	err := p.db.QueryRowContext(ctx, `
		SELECT ref_command, user_id, item_id, item_name, amount, currency, status, created_at
		FROM pending_purchases WHERE ref_command = $1
	`, refCommand).Scan(
		&pp.RefCommand, &pp.UserID, &pp.ItemID, &pp.ItemName,
		&pp.Amount, &pp.Currency, &status, &pp.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending purchase: %w", err)
	}
	pp.Status = Status(status)
	return &pp, nil
}

// DeletePending removes a pending purchase by ref command.
func (p *PostgresStore) DeletePending(ctx context.Context, refCommand string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM pending_purchases WHERE ref_command = $1
	`, refCommand)
	if err != nil {
		return fmt.Errorf("delete pending purchase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPendingNotFound
	}
	return nil
}

// CreateConfirmed inserts a confirmed purchase. A unique violation on
// ref_command means another reconciliation already won and is reported as
// ErrAlreadyConfirmed.
func (p *PostgresStore) CreateConfirmed(ctx context.Context, cp *ConfirmedPurchase) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO confirmed_purchases (
			ref_command, user_id, item_id, item_name, amount, currency, status,
			payment_method, payment_reference, client_phone, raw_notification,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		cp.RefCommand, cp.UserID, cp.ItemID, cp.ItemName,
		cp.Amount, cp.Currency, string(cp.Status),
		cp.PaymentMethod, cp.PaymentReference, cp.ClientPhone, cp.RawNotification,
		cp.CreatedAt, cp.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyConfirmed
	}
	if err != nil {
		return fmt.Errorf("insert confirmed purchase: %w", err)
	}
	return nil
}

// GetConfirmed retrieves a confirmed purchase by ref command.
func (p *PostgresStore) GetConfirmed(ctx context.Context, refCommand string) (*ConfirmedPurchase, error) {
	var cp ConfirmedPurchase
	var status string
	var method, reference, phone sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT ref_command, user_id, item_id, item_name, amount, currency, status,
			payment_method, payment_reference, client_phone, raw_notification,
			created_at, updated_at
		FROM confirmed_purchases WHERE ref_command = $1
	`, refCommand).Scan(
		&cp.RefCommand, &cp.UserID, &cp.ItemID, &cp.ItemName,
		&cp.Amount, &cp.Currency, &status,
		&method, &reference, &phone, &cp.RawNotification,
		&cp.CreatedAt, &cp.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrConfirmedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get confirmed purchase: %w", err)
	}
	cp.Status = Status(status)
	cp.PaymentMethod = method.String
	cp.PaymentReference = reference.String
	cp.ClientPhone = phone.String
	return &cp, nil
}

// ListConfirmedByUser returns up to limit+1 confirmed purchases for a user,
// newest first, after the cursor position.
func (p *PostgresStore) ListConfirmedByUser(ctx context.Context, userID string, limit int, cursor *pagination.Cursor) ([]*ConfirmedPurchase, error) {
	query := `
		SELECT ref_command, user_id, item_id, item_name, amount, currency, status,
			payment_method, payment_reference, client_phone, raw_notification,
			created_at, updated_at
		FROM confirmed_purchases WHERE user_id = $1`
	args := []any{userID}
	if cursor != nil {
		query += ` AND (created_at, ref_command) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, ref_command DESC LIMIT %d`, limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list confirmed purchases: %w", err)
	}
	defer rows.Close()

	var out []*ConfirmedPurchase
	for rows.Next() {
		var cp ConfirmedPurchase
		var status string
		var method, reference, phone sql.NullString
		if err := rows.Scan(
			&cp.RefCommand, &cp.UserID, &cp.ItemID, &cp.ItemName,
			&cp.Amount, &cp.Currency, &status,
			&method, &reference, &phone, &cp.RawNotification,
			&cp.CreatedAt, &cp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan confirmed purchase: %w", err)
		}
		cp.Status = Status(status)
		cp.PaymentMethod = method.String
		cp.PaymentReference = reference.String
		cp.ClientPhone = phone.String
		out = append(out, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list confirmed purchases: %w", err)
	}
	return out, nil
}

// CountPending returns the number of pending purchases.
func (p *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_purchases`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending purchases: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
