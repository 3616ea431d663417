package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finease/internal/core"
	"finease/internal/ports"
	"finease/internal/report"
)

var _ ports.Store = (*Store)(nil)

func newTx(id, owner string, cents int64, day int) core.Transaction {
	return core.Transaction{
		ID:          id,
		Type:        core.Expense,
		Category:    "Food",
		Amount:      core.Money{Cents: cents},
		Description: "t",
		Date:        core.NewDate(2025, 1, day),
		UserEmail:   owner,
	}
}

func TestMemoryTransactions(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateTransaction(ctx, core.Transaction{ID: "bad"}); !errors.Is(err, core.ErrInvalidType) {
		t.Fatalf("transaction without type: %v", err)
	}
	if _, err := s.CreateTransaction(ctx, newTx("neg", "ann@example.com", -1, 1)); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("negative amount: %v", err)
	}
	for _, tx := range []core.Transaction{
		newTx("1", "ann@example.com", 500, 3),
		newTx("2", "ann@example.com", 900, 1),
		newTx("3", "bob@example.com", 100, 2),
		newTx("4", "ann@example.com", 500, 2),
	} {
		if _, err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := s.CreateTransaction(ctx, newTx("1", "x@y.z", 1, 1)); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate id: %v", err)
	}

	got, _ := s.ListTransactions(ctx, "ANN@example.com", report.SortAmount, report.Desc)
	want := []string{"2", "1", "4"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	tx, _ := s.GetTransaction(ctx, "1")
	if changed, _ := s.UpdateTransaction(ctx, tx); changed {
		t.Fatalf("identical update reported a change")
	}
	tx.Category = "Bills"
	if changed, _ := s.UpdateTransaction(ctx, tx); !changed {
		t.Fatalf("update not reported")
	}
	if after, _ := s.GetTransaction(ctx, "1"); after.Category != "Bills" || after.Version != 2 {
		t.Fatalf("unexpected after update %+v", after)
	}

	if ok, _ := s.DeleteTransaction(ctx, "3"); !ok {
		t.Fatalf("delete failed")
	}
	if _, err := s.GetTransaction(ctx, "3"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	all, _ := s.ListTransactions(ctx, "", report.SortDate, report.Asc)
	if len(all) != 3 {
		t.Fatalf("expected 3 remaining, got %d", len(all))
	}
}

func TestMemoryExportQueue(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 1; i <= 3; i++ {
		_, _ = s.CreateTransaction(ctx, newTx(string(rune('a'+i)), "ann@example.com", 100, i))
	}
	pending, _ := s.PendingExports(ctx, 2)
	if len(pending) != 2 || pending[0].ID != "b" {
		t.Fatalf("unexpected pending %+v", pending)
	}
	for _, p := range pending {
		_ = s.MarkExported(ctx, p.ID, p.Version)
	}
	pending, _ = s.PendingExports(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "d" {
		t.Fatalf("unexpected pending after mark %+v", pending)
	}
}

func TestMemoryUsersAndTokens(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateUser(ctx, core.UserProfile{Email: "Ann@Example.com", Role: core.RoleUser}, []byte("h")); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, core.UserProfile{Email: "ann@example.com"}, nil); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate user: %v", err)
	}
	if err := s.SetRole(ctx, "ann@example.com", core.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	p, hash, err := s.GetUser(ctx, "ANN@example.com")
	if err != nil || p.Role != core.RoleAdmin || string(hash) != "h" {
		t.Fatalf("get user: %+v %v", p, err)
	}
	if _, err := s.UpdateProfile(ctx, "nobody@example.com", "x", ""); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update missing profile: %v", err)
	}

	_ = s.RevokeToken(ctx, "old", time.Now().Add(-time.Minute))
	_ = s.RevokeToken(ctx, "new", time.Now().Add(time.Hour))
	if ok, _ := s.IsRevoked(ctx, "new"); !ok {
		t.Fatalf("expected revoked")
	}
	_ = s.RevokeToken(ctx, "other", time.Now().Add(time.Hour))
	if ok, _ := s.IsRevoked(ctx, "old"); ok {
		t.Fatalf("expired revocation should be pruned")
	}
}

func TestMemoryConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := newTx(string(rune(0x4e00+i)), "ann@example.com", int64(i+1), 1+i%28)
			if _, err := s.CreateTransaction(ctx, tx); err != nil {
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()
	all, _ := s.ListTransactions(ctx, "ann@example.com", report.SortDate, report.Desc)
	if len(all) != 50 {
		t.Fatalf("expected 50 transactions, got %d", len(all))
	}
}

func TestMemoryAcceptsZeroAmount(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.CreateTransaction(ctx, newTx("zero", "ann@example.com", 0, 1)); err != nil {
		t.Fatalf("zero amount: %v", err)
	}
	tx, _ := s.GetTransaction(ctx, "zero")
	tx.Amount = core.Money{Cents: -5}
	if _, err := s.UpdateTransaction(ctx, tx); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("negative update: %v", err)
	}
}
