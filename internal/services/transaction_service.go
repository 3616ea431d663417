package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"finease/internal/amqp"
	"finease/internal/cache"
	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/ports"
	"finease/internal/report"

	"github.com/google/uuid"
)

const (
	// DefaultPageSize applies when a page is requested without a size.
	DefaultPageSize = 10
	summaryCacheCap = 1000
)

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	Email string
	Name  string
	Admin bool
}

// Recorder counts transaction writes.
type Recorder interface {
	IncrTransactionWrite(action string)
}

type nopRecorder struct{}

func (nopRecorder) IncrTransactionWrite(string) {}

type Config struct {
	SummaryTTL time.Duration
	Publisher  amqp.Publisher
	Metrics    Recorder
	// CacheObserver receives summary cache hits and misses.
	CacheObserver cache.Observer
	Logger        *log.Logger
}

// TransactionService orchestrates transaction operations across the
// repository, the per-owner summary cache and the event publisher.
type TransactionService struct {
	repo      ports.TransactionRepository
	summaries *cache.LRUCache[report.Summary]
	// writes counts writes per owner; a summary read across a write is not cached.
	writesMu  sync.Mutex
	writes    map[string]uint64
	publisher amqp.Publisher
	metrics   Recorder
	logger    *log.Logger
	slog      *log.StructuredLogger
}

func NewTransactionService(repo ports.TransactionRepository, cfg Config) *TransactionService {
	if cfg.Publisher == nil {
		cfg.Publisher = amqp.NopPublisher{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	if cfg.SummaryTTL <= 0 {
		cfg.SummaryTTL = time.Minute
	}
	var opts []cache.Option[report.Summary]
	if cfg.CacheObserver != nil {
		opts = append(opts, cache.WithObserver[report.Summary]("summary", cfg.CacheObserver))
	}
	logger := cfg.Logger.WithComponent(log.ComponentTransaction)
	return &TransactionService{
		repo:      repo,
		summaries: cache.NewLRUCache[report.Summary](summaryCacheCap, cfg.SummaryTTL, opts...),
		writes:    map[string]uint64{},
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
		slog:      log.NewStructuredLogger(logger),
	}
}

// SummaryCache exposes the summary cache so a cache.Manager can sweep it.
func (s *TransactionService) SummaryCache() cache.Cleaner {
	return s.summaries
}

// Create validates the form and stores a new transaction owned by the actor.
func (s *TransactionService) Create(ctx context.Context, a Actor, f core.TransactionForm) (core.Transaction, error) {
	t, err := f.Transaction()
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = uuid.NewString()
	t.UserEmail = core.NormalizeEmail(a.Email)
	t.UserName = strings.TrimSpace(a.Name)

	created, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.afterWrite(ctx, log.OpCreate, created, amqp.ActionCreated, created.Version)
	return created, nil
}

// Get returns a transaction the actor may read: their own, or any for admins.
func (s *TransactionService) Get(ctx context.Context, a Actor, id string) (core.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if !t.OwnedBy(a.Email) && !a.Admin {
		return core.Transaction{}, core.ErrForbidden
	}
	return t, nil
}

// Update replaces the editable fields of the actor's own transaction and
// reports whether anything changed.
func (s *TransactionService) Update(ctx context.Context, a Actor, id string, f core.TransactionForm) (bool, error) {
	existing, err := s.owned(ctx, a, id)
	if err != nil {
		return false, err
	}
	t, err := f.Transaction()
	if err != nil {
		return false, err
	}
	t.ID = existing.ID
	t.UserEmail = existing.UserEmail
	t.UserName = existing.UserName

	changed, err := s.repo.UpdateTransaction(ctx, t)
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	if changed {
		s.afterWrite(ctx, log.OpUpdate, t, amqp.ActionUpdated, existing.Version+1)
	}
	return changed, nil
}

// Delete removes the actor's own transaction and reports whether a row went away.
func (s *TransactionService) Delete(ctx context.Context, a Actor, id string) (bool, error) {
	existing, err := s.owned(ctx, a, id)
	if err != nil {
		return false, err
	}
	deleted, err := s.repo.DeleteTransaction(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if deleted {
		s.afterWrite(ctx, log.OpDelete, existing, amqp.ActionDeleted, existing.Version)
	}
	return deleted, nil
}

func (s *TransactionService) owned(ctx context.Context, a Actor, id string) (core.Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if !t.OwnedBy(a.Email) {
		return core.Transaction{}, core.ErrForbidden
	}
	return t, nil
}

func (s *TransactionService) afterWrite(ctx context.Context, op string, t core.Transaction, action amqp.Action, version int64) {
	owner := core.NormalizeEmail(t.UserEmail)
	s.writesMu.Lock()
	s.writes[owner]++
	s.writesMu.Unlock()
	s.summaries.Delete(owner)
	s.metrics.IncrTransactionWrite(op)
	s.slog.LogTransactionWritten(ctx, op, t.ID, string(t.Type), t.Category, t.Amount.Cents, t.UserEmail)

	ev := amqp.NewTransactionEvent(t.ID, action, t.UserEmail, version)
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTxID, t.ID, "action", action, log.FieldError, err)
	}
}

// ListQuery selects one page of transactions.
type ListQuery struct {
	// Owner defaults to the actor. Only admins may name someone else.
	Owner    string
	Sort     report.SortKey
	Order    report.Order
	Filter   report.Filter
	Page     int
	PageSize int
}

type Page struct {
	Transactions []core.Transaction
	Total        int
	Page         int
	TotalPages   int
}

// List returns the filtered, sorted page of one owner's transactions.
func (s *TransactionService) List(ctx context.Context, a Actor, q ListQuery) (Page, error) {
	owner, err := resolveOwner(a, q.Owner)
	if err != nil {
		return Page{}, err
	}
	return s.list(ctx, owner, q)
}

// ListAll is List across every owner. Admins only.
func (s *TransactionService) ListAll(ctx context.Context, a Actor, q ListQuery) (Page, error) {
	if !a.Admin {
		return Page{}, core.ErrForbidden
	}
	return s.list(ctx, "", q)
}

func (s *TransactionService) list(ctx context.Context, owner string, q ListQuery) (Page, error) {
	if q.Sort == "" {
		q.Sort = report.SortDate
	}
	if q.Order == "" {
		q.Order = report.Desc
	}
	txns, err := s.repo.ListTransactions(ctx, owner, q.Sort, q.Order)
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}
	txns = report.Apply(txns, q.Filter)

	// Without page or limit the whole list is returned as a single page.
	if q.Page <= 0 && q.PageSize <= 0 {
		return Page{Transactions: txns, Total: len(txns), Page: 1, TotalPages: 1}, nil
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	items, totalPages := report.Paginate(txns, page, size)
	return Page{Transactions: items, Total: len(txns), Page: page, TotalPages: totalPages}, nil
}

// Summary returns the owner's totals, served from cache until the next write.
func (s *TransactionService) Summary(ctx context.Context, a Actor, owner string) (report.Summary, error) {
	owner, err := resolveOwner(a, owner)
	if err != nil {
		return report.Summary{}, err
	}
	if sum, ok := s.summaries.Get(owner); ok {
		return sum, nil
	}
	gen := s.writeGeneration(owner)
	txns, err := s.repo.ListTransactions(ctx, owner, report.SortDate, report.Desc)
	if err != nil {
		return report.Summary{}, fmt.Errorf("list transactions: %w", err)
	}
	sum := report.Summarize(txns)

	s.writesMu.Lock()
	if s.writes[owner] == gen {
		s.summaries.Set(owner, sum)
	}
	s.writesMu.Unlock()
	return sum, nil
}

func (s *TransactionService) writeGeneration(owner string) uint64 {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()
	return s.writes[owner]
}

// Report builds the reports page over the actor's own transactions.
func (s *TransactionService) Report(ctx context.Context, a Actor, f report.Filter) (report.Report, error) {
	txns, err := s.repo.ListTransactions(ctx, core.NormalizeEmail(a.Email), report.SortDate, report.Asc)
	if err != nil {
		return report.Report{}, fmt.Errorf("list transactions: %w", err)
	}
	return report.Build(txns, f), nil
}

type Details struct {
	Transaction   core.Transaction
	CategoryTotal core.Money
}

// Details returns a transaction with the total its owner has in the same category.
func (s *TransactionService) Details(ctx context.Context, a Actor, id string) (Details, error) {
	t, err := s.Get(ctx, a, id)
	if err != nil {
		return Details{}, err
	}
	txns, err := s.repo.ListTransactions(ctx, core.NormalizeEmail(t.UserEmail), report.SortDate, report.Desc)
	if err != nil {
		return Details{}, fmt.Errorf("list transactions: %w", err)
	}
	return Details{Transaction: t, CategoryTotal: report.CategoryTotal(txns, t.CategoryOrOther())}, nil
}

func resolveOwner(a Actor, owner string) (string, error) {
	self := core.NormalizeEmail(a.Email)
	owner = core.NormalizeEmail(owner)
	if owner == "" || owner == self {
		return self, nil
	}
	if !a.Admin {
		return "", core.ErrForbidden
	}
	return owner, nil
}
