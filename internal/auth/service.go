// Package auth is the identity service: registration, password login,
// token sessions and user profile documents.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/ports"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 12

type Store interface {
	ports.UserRepository
	ports.TokenStore
}

type Service struct {
	store      Store
	signer     tokenSigner
	bcryptCost int
	logger     *log.Logger
}

type Option func(*Service)

// WithBcryptCost lowers hashing cost, used by tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.signer.now = now }
}

func NewService(store Store, secret string, ttl time.Duration, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Service{
		store:      store,
		signer:     tokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now},
		bcryptCost: defaultBcryptCost,
		logger:     logger.WithComponent(log.ComponentAuth),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session is returned on successful register or login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Profile   core.UserProfile
}

func (s *Service) Register(ctx context.Context, r core.Registration) (Session, error) {
	if err := r.Validate(); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	p := core.UserProfile{
		Email:       core.NormalizeEmail(r.Email),
		DisplayName: strings.TrimSpace(r.Name),
		PhotoURL:    strings.TrimSpace(r.PhotoURL),
		Role:        core.RoleUser,
		CreatedAt:   s.signer.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, p, hash); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return Session{}, core.FieldErrors{"email": "An account with this email already exists"}
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "User registered", log.FieldUserEmail, p.Email, log.FieldOperation, log.OpRegister)
	return s.issue(p)
}

func (s *Service) Login(ctx context.Context, l core.Login) (Session, error) {
	if err := l.Validate(); err != nil {
		return Session{}, err
	}
	p, hash, err := s.store.GetUser(ctx, l.Email)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized)
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(l.Password)) != nil {
		s.logger.WarnContext(ctx, "Failed login attempt", log.FieldUserEmail, p.Email)
		return Session{}, fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized)
	}
	s.logger.InfoContext(ctx, "User logged in", log.FieldUserEmail, p.Email, log.FieldOperation, log.OpLogin)
	return s.issue(p)
}

func (s *Service) issue(p core.UserProfile) (Session, error) {
	token, exp, err := s.signer.sign(p)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, Profile: p}, nil
}

// Authenticate validates a bearer token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", core.ErrUnauthorized)
	}
	id, err := s.signer.parse(token)
	if err != nil {
		return Identity{}, err
	}
	revoked, err := s.store.IsRevoked(ctx, id.TokenID)
	if err != nil {
		return Identity{}, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return Identity{}, fmt.Errorf("%w: token revoked", core.ErrUnauthorized)
	}
	return id, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, id Identity) error {
	if err := s.store.RevokeToken(ctx, id.TokenID, id.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.InfoContext(ctx, "User logged out", log.FieldUserEmail, id.Email, log.FieldOperation, log.OpLogout)
	return nil
}

// EnsureProfile returns the stored profile, creating a "user" profile on first access.
func (s *Service) EnsureProfile(ctx context.Context, id Identity) (core.UserProfile, error) {
	p, _, err := s.store.GetUser(ctx, id.Email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	p = core.UserProfile{
		Email:       core.NormalizeEmail(id.Email),
		DisplayName: id.Name,
		Role:        core.RoleUser,
		CreatedAt:   s.signer.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, p, nil); err != nil && !errors.Is(err, core.ErrConflict) {
		return core.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	s.logger.InfoContext(ctx, "Profile created with default role", log.FieldUserEmail, p.Email)
	p, _, err = s.store.GetUser(ctx, id.Email)
	return p, err
}

func (s *Service) Profile(ctx context.Context, id Identity) (core.UserProfile, error) {
	return s.EnsureProfile(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id Identity, u core.ProfileUpdate) (core.UserProfile, error) {
	if err := u.Validate(); err != nil {
		return core.UserProfile{}, err
	}
	if _, err := s.EnsureProfile(ctx, id); err != nil {
		return core.UserProfile{}, err
	}
	p, err := s.store.UpdateProfile(ctx, id.Email, strings.TrimSpace(u.DisplayName), strings.TrimSpace(u.PhotoURL))
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// Role returns the caller's current stored role, which may differ from the token's.
func (s *Service) Role(ctx context.Context, id Identity) (core.Role, error) {
	p, err := s.EnsureProfile(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Role, nil
}

// ListUsers is restricted to admins.
func (s *Service) ListUsers(ctx context.Context, id Identity) ([]core.UserProfile, error) {
	role, err := s.Role(ctx, id)
	if err != nil {
		return nil, err
	}
	if !role.IsAdmin() {
		return nil, fmt.Errorf("list users: %w", core.ErrForbidden)
	}
	return s.store.ListUsers(ctx)
}

// SetRole changes a user's role. It is an operator action and performs no caller check.
func (s *Service) SetRole(ctx context.Context, email string, role core.Role) error {
	if _, err := core.ParseRole(string(role)); err != nil || role == "" {
		return core.ErrInvalidRole
	}
	return s.store.SetRole(ctx, email, role)
}
