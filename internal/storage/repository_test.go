package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finease/internal/core"
	"finease/internal/report"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finease.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTx(id, owner string, cents int64, date string) core.Transaction {
	d, _ := core.ParseDate(date)
	return core.Transaction{
		ID:          id,
		Type:        core.Expense,
		Category:    "Food",
		Amount:      core.Money{Cents: cents},
		Description: "lunch " + id,
		Date:        d,
		UserEmail:   owner,
		UserName:    "Ann",
	}
}

func TestTransactionCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.CreateTransaction(ctx, sampleTx("a", "ann@example.com", 1250, "2025-02-01"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created %+v", created)
	}
	if _, err := repo.CreateTransaction(ctx, sampleTx("a", "ann@example.com", 1, "2025-02-01")); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate id should conflict, got %v", err)
	}

	got, err := repo.GetTransaction(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount.Cents != 1250 || got.Date.String() != "2025-02-01" || got.Type != core.Expense {
		t.Fatalf("unexpected get %+v", got)
	}

	changed, err := repo.UpdateTransaction(ctx, got)
	if err != nil || changed {
		t.Fatalf("identical update should report no change, got %v %v", changed, err)
	}
	got.Amount = core.Money{Cents: 1500}
	changed, err = repo.UpdateTransaction(ctx, got)
	if err != nil || !changed {
		t.Fatalf("update should report change, got %v %v", changed, err)
	}
	after, _ := repo.GetTransaction(ctx, "a")
	if after.Amount.Cents != 1500 || after.Version != 2 {
		t.Fatalf("unexpected after update %+v", after)
	}

	if _, err := repo.UpdateTransaction(ctx, sampleTx("missing", "x@y.z", 1, "2025-01-01")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update missing should be not found, got %v", err)
	}

	deleted, err := repo.DeleteTransaction(ctx, "a")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	deleted, _ = repo.DeleteTransaction(ctx, "a")
	if deleted {
		t.Fatalf("second delete should report nothing deleted")
	}
	if _, err := repo.GetTransaction(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAmountConstraint(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.CreateTransaction(ctx, sampleTx("zero", "ann@example.com", 0, "2025-02-01")); err != nil {
		t.Fatalf("zero amount should be stored: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, sampleTx("neg", "ann@example.com", -1, "2025-02-01")); err == nil {
		t.Fatalf("negative amount should be rejected")
	}
}

func TestListTransactionsOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	for _, tx := range []core.Transaction{
		sampleTx("1", "ann@example.com", 500, "2025-01-03"),
		sampleTx("2", "ann@example.com", 900, "2025-01-01"),
		sampleTx("3", "bob@example.com", 100, "2025-01-02"),
		sampleTx("4", "ANN@example.com", 500, "2025-01-02"),
	} {
		if _, err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name  string
		owner string
		key   report.SortKey
		order report.Order
		want  []string
	}{
		{"newest", "ann@example.com", report.SortDate, report.Desc, []string{"1", "4", "2"}},
		{"oldest", "ann@example.com", report.SortDate, report.Asc, []string{"2", "4", "1"}},
		{"amount high keeps ties in insertion order", "ann@example.com", report.SortAmount, report.Desc, []string{"2", "1", "4"}},
		{"amount low", "ann@example.com", report.SortAmount, report.Asc, []string{"1", "4", "2"}},
		{"all owners", "", report.SortDate, report.Asc, []string{"2", "3", "4", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListTransactions(ctx, tt.owner, tt.key, tt.order)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transactions, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestExportQueue(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tx, _ := repo.CreateTransaction(ctx, sampleTx("a", "ann@example.com", 100, "2025-01-01"))

	pending, err := repo.PendingExports(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending export, got %d (%v)", len(pending), err)
	}
	if err := repo.MarkExported(ctx, "a", pending[0].Version); err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	if pending, _ = repo.PendingExports(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected no pending exports, got %d", len(pending))
	}

	tx.Description = "edited"
	if _, err := repo.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("update: %v", err)
	}
	if pending, _ = repo.PendingExports(ctx, 10); len(pending) != 1 || pending[0].Version != 2 {
		t.Fatalf("edit should re-queue export, got %+v", pending)
	}
	// stale mark must not hide the newer version
	_ = repo.MarkExported(ctx, "a", 1)
	if pending, _ = repo.PendingExports(ctx, 10); len(pending) != 1 {
		t.Fatalf("stale mark cleared pending export")
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	p := core.UserProfile{Email: "Ann@Example.com", DisplayName: "Ann", Role: core.RoleUser}
	if err := repo.CreateUser(ctx, p, []byte("hash")); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := repo.CreateUser(ctx, p, nil); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate user should conflict, got %v", err)
	}

	got, hash, err := repo.GetUser(ctx, "ann@example.com")
	if err != nil || got.Email != "ann@example.com" || string(hash) != "hash" {
		t.Fatalf("get user: %+v %q %v", got, hash, err)
	}

	updated, err := repo.UpdateProfile(ctx, "ann@example.com", "Ann B", "https://img.example.com/a.png")
	if err != nil || updated.DisplayName != "Ann B" {
		t.Fatalf("update profile: %+v %v", updated, err)
	}
	if err := repo.SetRole(ctx, "ann@example.com", core.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := repo.SetRole(ctx, "nobody@example.com", core.RoleAdmin); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("set role on missing user: %v", err)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil || len(users) != 1 || users[0].Role != core.RoleAdmin {
		t.Fatalf("list users: %+v %v", users, err)
	}
	if _, _, err := repo.GetUser(ctx, "nobody@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokedTokensAndContact(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("revoke twice: %v", err)
	}
	revoked, err := repo.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	if revoked, _ = repo.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("unknown jti should not be revoked")
	}

	msg := core.ContactMessage{Name: "Ann", Email: "ann@example.com", Subject: "Hi", Message: "Hello there, team"}
	if err := repo.SaveContact(ctx, msg); err != nil {
		t.Fatalf("save contact: %v", err)
	}
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, dirty, err := MigrationVersion(path)
	if err != nil || dirty || v != 1 {
		t.Fatalf("version = %d dirty=%v err=%v", v, dirty, err)
	}
}
