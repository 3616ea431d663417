// Package memory is a process-local data backend. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"finease/internal/core"
	"finease/internal/report"
)

type storedTx struct {
	tx       core.Transaction
	seq      int64
	exported int64
}

type storedUser struct {
	profile core.UserProfile
	hash    []byte
}

type Store struct {
	mu       sync.Mutex
	seq      int64
	txns     map[string]*storedTx
	users    map[string]*storedUser
	revoked  map[string]time.Time
	contacts []core.ContactMessage
	now      func() time.Time
}

func New() *Store {
	return &Store{
		txns:    map[string]*storedTx{},
		users:   map[string]*storedUser{},
		revoked: map[string]time.Time{},
		now:     time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// checkStored enforces the same column constraints as the sqlite schema.
func checkStored(t core.Transaction) error {
	if !t.Type.Valid() {
		return core.ErrInvalidType
	}
	if t.Amount.Cents < 0 {
		return core.ErrInvalidAmount
	}
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := checkStored(t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction %s: %w", t.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[t.ID]; ok {
		return core.Transaction{}, fmt.Errorf("create transaction %s: %w", t.ID, core.ErrConflict)
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt, t.Version = now, now, 1
	s.seq++
	s.txns[t.ID] = &storedTx{tx: t, seq: s.seq}
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.txns[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return st.tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (bool, error) {
	if err := checkStored(t); err != nil {
		return false, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.txns[t.ID]
	if !ok {
		return false, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if st.tx.SameContent(t) {
		return false, nil
	}
	st.tx.Type = t.Type
	st.tx.Category = t.Category
	st.tx.Amount = t.Amount
	st.tx.Description = t.Description
	st.tx.Date = t.Date
	st.tx.Version++
	st.tx.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[id]; !ok {
		return false, nil
	}
	delete(s.txns, id)
	return true, nil
}

func (s *Store) ListTransactions(_ context.Context, owner string, key report.SortKey, order report.Order) ([]core.Transaction, error) {
	s.mu.Lock()
	ordered := s.inInsertionOrder(func(st *storedTx) bool {
		return owner == "" || st.tx.OwnedBy(owner)
	})
	s.mu.Unlock()

	out := make([]core.Transaction, len(ordered))
	for i, st := range ordered {
		out[i] = st.tx
	}
	return report.Sort(out, key, order), nil
}

func (s *Store) PendingExports(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := s.inInsertionOrder(func(st *storedTx) bool { return st.exported < st.tx.Version })
	var out []core.Transaction
	for _, st := range ordered {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, st.tx)
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.txns[id]; ok && st.exported < version {
		st.exported = version
	}
	return nil
}

// inInsertionOrder must be called with s.mu held.
func (s *Store) inInsertionOrder(keep func(*storedTx) bool) []*storedTx {
	out := make([]*storedTx, 0, len(s.txns))
	for _, st := range s.txns {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (s *Store) CreateUser(_ context.Context, p core.UserProfile, passwordHash []byte) error {
	key := core.NormalizeEmail(p.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[key]; ok {
		return fmt.Errorf("user %s: %w", p.Email, core.ErrConflict)
	}
	p.Email = key
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.users[key] = &storedUser{profile: p, hash: append([]byte(nil), passwordHash...)}
	return nil
}

func (s *Store) GetUser(_ context.Context, email string) (core.UserProfile, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[core.NormalizeEmail(email)]
	if !ok {
		return core.UserProfile{}, nil, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	return u.profile, u.hash, nil
}

func (s *Store) UpdateProfile(_ context.Context, email, displayName, photoURL string) (core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[core.NormalizeEmail(email)]
	if !ok {
		return core.UserProfile{}, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	u.profile.DisplayName = displayName
	u.profile.PhotoURL = photoURL
	return u.profile, nil
}

func (s *Store) SetRole(_ context.Context, email string, role core.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[core.NormalizeEmail(email)]
	if !ok {
		return fmt.Errorf("user %s: %w", email, core.ErrNotFound)
	}
	u.profile.Role = role
	return nil
}

func (s *Store) ListUsers(context.Context) ([]core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserProfile, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.profile)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *Store) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, k)
		}
	}
	s.revoked[jti] = expiresAt
	return nil
}

func (s *Store) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *Store) SaveContact(_ context.Context, m core.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Message = strings.TrimSpace(m.Message)
	s.contacts = append(s.contacts, m)
	return nil
}

// Contacts returns a copy of the stored contact messages.
func (s *Store) Contacts() []core.ContactMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ContactMessage(nil), s.contacts...)
}
