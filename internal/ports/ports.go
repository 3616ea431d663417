// Package ports declares the persistence boundaries shared by the sqlite
// and in-memory backends.
package ports

import (
	"context"
	"time"

	"finease/internal/core"
	"finease/internal/report"
)

type (
	TransactionRepository interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		// UpdateTransaction reports false when the stored record already held the same values.
		UpdateTransaction(ctx context.Context, t core.Transaction) (bool, error)
		DeleteTransaction(ctx context.Context, id string) (bool, error)
		// ListTransactions returns owner's transactions, or everyone's when owner is empty.
		// Equal sort keys keep insertion order.
		ListTransactions(ctx context.Context, owner string, key report.SortKey, order report.Order) ([]core.Transaction, error)
	}

	UserRepository interface {
		CreateUser(ctx context.Context, p core.UserProfile, passwordHash []byte) error
		GetUser(ctx context.Context, email string) (core.UserProfile, []byte, error)
		UpdateProfile(ctx context.Context, email, displayName, photoURL string) (core.UserProfile, error)
		SetRole(ctx context.Context, email string, role core.Role) error
		ListUsers(ctx context.Context) ([]core.UserProfile, error)
	}

	TokenStore interface {
		RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
		IsRevoked(ctx context.Context, jti string) (bool, error)
	}

	ContactStore interface {
		SaveContact(ctx context.Context, m core.ContactMessage) error
	}

	// ExportQueue tracks which transaction versions reached the ledger sheet.
	ExportQueue interface {
		PendingExports(ctx context.Context, limit int) ([]core.Transaction, error)
		MarkExported(ctx context.Context, id string, version int64) error
	}

	// Store is everything a data backend provides.
	Store interface {
		TransactionRepository
		UserRepository
		TokenStore
		ContactStore
		ExportQueue
		Ping(ctx context.Context) error
		Close() error
	}
)
