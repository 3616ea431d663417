// Package worker mirrors stored transactions into the ledger sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finease/internal/amqp"
	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/ports"
	"finease/internal/resilience"
	"finease/internal/sheets"
)

// Store is the slice of the data backend the worker reads.
type Store interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ports.ExportQueue
}

// Recorder counts export outcomes.
type Recorder interface {
	IncrExport(result string)
}

type nopRecorder struct{}

func (nopRecorder) IncrExport(string) {}

// ExportWorker exports transactions as events arrive and sweeps whatever
// the events missed on a timer.
type ExportWorker struct {
	store     Store
	ledger    sheets.LedgerWriter
	metrics   Recorder
	logger    *log.Logger
	batchSize int
}

func NewExportWorker(store Store, ledger sheets.LedgerWriter, metrics Recorder, logger *log.Logger, batchSize int) *ExportWorker {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &ExportWorker{
		store:     store,
		ledger:    ledger,
		metrics:   metrics,
		logger:    logger.WithComponent(log.ComponentWorker),
		batchSize: batchSize,
	}
}

// HandleEvent applies one transaction event to the ledger.
//
// Upsert failures are reported as permanent: the transaction stays pending
// and the next sweep retries it. Deletions leave nothing pending, so their
// failures are returned as is and the event is redelivered.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing transaction event",
		log.FieldTxID, ev.ID, "action", ev.Action, log.FieldVersion, ev.Version)

	if ev.Action == amqp.ActionDeleted {
		return w.remove(ctx, ev.ID)
	}

	t, err := w.store.GetTransaction(ctx, ev.ID)
	if errors.Is(err, core.ErrNotFound) {
		// deleted before we got here; the delete event cleans up
		w.metrics.IncrExport("skipped")
		return nil
	}
	if err != nil {
		return &resilience.Permanent{Err: fmt.Errorf("get transaction: %w", err)}
	}
	if err := w.export(ctx, t); err != nil {
		return &resilience.Permanent{Err: err}
	}
	return nil
}

// ProcessPending exports one batch of transactions whose latest version has
// not reached the ledger. It returns how many were exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	done := 0
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := w.export(ctx, t); err != nil {
			continue
		}
		done++
	}
	return done, nil
}

// Run sweeps immediately and then every interval until ctx ends.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) error {
	w.sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep drains the pending queue batch by batch while progress is made.
func (w *ExportWorker) sweep(ctx context.Context) {
	for {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Pending export sweep failed", log.FieldError, err)
			}
			return
		}
		if n < w.batchSize {
			return
		}
	}
}

func (w *ExportWorker) export(ctx context.Context, t core.Transaction) error {
	ref, err := w.ledger.Upsert(ctx, t)
	if err != nil {
		w.metrics.IncrExport("error")
		w.logger.ErrorContext(ctx, "Failed to export transaction",
			log.FieldTxID, t.ID, log.FieldVersion, t.Version, log.FieldError, err)
		return fmt.Errorf("export %s: %w", t.ID, err)
	}
	if err := w.store.MarkExported(ctx, t.ID, t.Version); err != nil {
		w.metrics.IncrExport("error")
		return fmt.Errorf("mark exported %s: %w", t.ID, err)
	}
	w.metrics.IncrExport("ok")
	w.logger.InfoContext(ctx, "Exported transaction",
		log.FieldTxID, t.ID, log.FieldVersion, t.Version, log.FieldSheetsRef, ref)
	return nil
}

func (w *ExportWorker) remove(ctx context.Context, id string) error {
	if err := w.ledger.Remove(ctx, id); err != nil {
		w.metrics.IncrExport("error")
		w.logger.ErrorContext(ctx, "Failed to remove ledger row", log.FieldTxID, id, log.FieldError, err)
		return fmt.Errorf("remove %s: %w", id, err)
	}
	w.metrics.IncrExport("removed")
	return nil
}
