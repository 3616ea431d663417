// Package sheets holds the outbound ports for the spreadsheet ledger export.
package sheets

import (
	"context"

	"finease/internal/core"
)

// LedgerWriter mirrors transactions into an external ledger, one row per
// transaction keyed by ID. Both operations are idempotent.
type LedgerWriter interface {
	Upsert(ctx context.Context, t core.Transaction) (rowRef string, err error)
	Remove(ctx context.Context, id string) error
}
