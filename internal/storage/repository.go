package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finease/internal/core"
	"finease/internal/report"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const txColumns = `id, type, category, amount_cents, description, date, user_email, user_name, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		typ, date        string
		created, updated string
	)
	if err := s.Scan(&t.ID, &typ, &t.Category, &t.Amount.Cents, &t.Description, &date,
		&t.UserEmail, &t.UserName, &t.Version, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TxType(typ)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	t.Date = d
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	t.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt, t.Version = now, now, 1
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.Category, t.Amount.Cents, t.Description, t.Date.String(),
		t.UserEmail, t.UserName, t.Version, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.Transaction{}, fmt.Errorf("create transaction %s: %w", t.ID, core.ErrConflict)
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())

	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, t.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("load transaction: %w", err)
	}
	if current.SameContent(t) {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, category = ?, amount_cents = ?, description = ?, date = ?,
		    version = version + 1, updated_at = ?
		WHERE id = ?`,
		string(t.Type), t.Category, t.Amount.Cents, t.Description, t.Date.String(),
		r.now().UTC().Format(timeLayout), t.ID)
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete transaction rows: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, owner string, key report.SortKey, order report.Order) ([]core.Transaction, error) {
	var (
		where string
		args  []any
	)
	if owner != "" {
		where = `WHERE user_email = ? COLLATE NOCASE`
		args = append(args, owner)
	}
	q := `SELECT ` + txColumns + ` FROM transactions ` + where + ` ORDER BY ` + orderClause(key, order)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// orderClause only ever emits whitelisted column names; seq keeps ties in insertion order.
func orderClause(key report.SortKey, order report.Order) string {
	col := "date"
	switch key {
	case report.SortAmount:
		col = "amount_cents"
	case report.SortCategory:
		col = "category COLLATE NOCASE"
	}
	dir := "DESC"
	if order == report.Asc {
		dir = "ASC"
	}
	return col + " " + dir + ", seq ASC"
}

func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE exported_version < version
		ORDER BY seq ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending exports: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkExported records that version of id reached the ledger. Older versions never overwrite newer marks.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET exported_version = ?
		WHERE id = ? AND exported_version < ?`, version, id, version)
	if err != nil {
		return fmt.Errorf("mark transaction exported: %w", err)
	}
	slog.DebugContext(ctx, "Transaction marked as exported", "id", id, "version", version)
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, p core.UserProfile, passwordHash []byte) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, display_name, photo_url, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		core.NormalizeEmail(p.Email), p.DisplayName, p.PhotoURL, string(p.Role), passwordHash,
		p.CreatedAt.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "PRIMARY KEY") {
			return fmt.Errorf("user %s: %w", p.Email, core.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, email string) (core.UserProfile, []byte, error) {
	var (
		p       core.UserProfile
		role    string
		created string
		hash    []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT email, display_name, photo_url, role, password_hash, created_at
		FROM users WHERE email = ?`, core.NormalizeEmail(email)).
		Scan(&p.Email, &p.DisplayName, &p.PhotoURL, &role, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProfile{}, nil, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	if err != nil {
		return core.UserProfile{}, nil, fmt.Errorf("get user: %w", err)
	}
	p.Role = core.Role(role)
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	return p, hash, nil
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, email, displayName, photoURL string) (core.UserProfile, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET display_name = ?, photo_url = ? WHERE email = ?`,
		displayName, photoURL, core.NormalizeEmail(email))
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.UserProfile{}, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	p, _, err := r.GetUser(ctx, email)
	return p, err
}

func (r *SQLiteRepository) SetRole(ctx context.Context, email string, role core.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE email = ?`,
		string(role), core.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "User role changed", "email", email, "role", role)
	return nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT email, display_name, photo_url, role, created_at FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.UserProfile
	for rows.Next() {
		var (
			p             core.UserProfile
			role, created string
		)
		if err := rows.Scan(&p.Email, &p.DisplayName, &p.PhotoURL, &role, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		p.Role = core.Role(role)
		p.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RevokeToken stores jti until expiresAt and opportunistically drops expired entries.
func (r *SQLiteRepository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
		ON CONFLICT (jti) DO NOTHING`, jti, expiresAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`,
		r.now().UTC().Format(timeLayout)); err != nil {
		slog.WarnContext(ctx, "Failed to prune revoked tokens", "error", err)
	}
	return nil
}

func (r *SQLiteRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM revoked_tokens WHERE jti = ?`, jti).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) SaveContact(ctx context.Context, m core.ContactMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_messages (name, email, subject, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(m.Name), strings.TrimSpace(m.Email), strings.TrimSpace(m.Subject),
		strings.TrimSpace(m.Message), r.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save contact message: %w", err)
	}
	return nil
}
