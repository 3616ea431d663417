package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"finease/internal/core"
	"finease/internal/ports"
	"finease/internal/storage/memory"
)

func run(t *testing.T, store *memory.Store, dbPath string, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (ports.Store, error) { return store, nil }
	cmd := NewAdminCommand(open, func() string { return dbPath })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if err := store.CreateUser(ctx, core.UserProfile{Email: "ann@example.com", DisplayName: "Ann", Role: core.RoleUser}, nil); err != nil {
		t.Fatalf("create user: %v", err)
	}
	for i, tx := range []core.Transaction{
		{ID: "1", Type: core.Income, Category: "Salary", Amount: core.Money{Cents: 100000}, Description: "Pay", Date: core.NewDate(2024, 1, 31)},
		{ID: "2", Type: core.Expense, Category: "Food", Amount: core.Money{Cents: 2550}, Description: "Lunch", Date: core.NewDate(2024, 2, 1)},
	} {
		tx.UserEmail = "ann@example.com"
		if _, err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create transaction %d: %v", i, err)
		}
	}
	return store
}

func TestUsersList(t *testing.T) {
	out, err := run(t, seed(t), "", "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	if !strings.Contains(out, "EMAIL") || !strings.Contains(out, "ann@example.com") {
		t.Errorf("output = %q", out)
	}
}

func TestUsersSetRole(t *testing.T) {
	store := seed(t)
	if _, err := run(t, store, "", "users", "set-role", "Ann@Example.com", "admin"); err != nil {
		t.Fatalf("set-role: %v", err)
	}
	p, _, err := store.GetUser(context.Background(), "ann@example.com")
	if err != nil || p.Role != core.RoleAdmin {
		t.Fatalf("role = %s, err %v", p.Role, err)
	}

	if _, err := run(t, store, "", "users", "set-role", "ann@example.com", "root"); err == nil {
		t.Error("unknown role accepted")
	}
	if _, err := run(t, store, "", "users", "set-role", "nobody@example.com", "user"); err == nil {
		t.Error("unknown user accepted")
	}
}

func TestSummary(t *testing.T) {
	out, err := run(t, seed(t), "", "summary", "ann@example.com")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{"1000.00", "25.50", "974.50"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestMigrate(t *testing.T) {
	if _, err := run(t, memory.New(), "", "migrate"); err == nil {
		t.Error("migrate without a path should fail")
	}
	path := filepath.Join(t.TempDir(), "finease.db")
	out, err := run(t, memory.New(), path, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "dirty=false") {
		t.Errorf("output = %q", out)
	}
}
