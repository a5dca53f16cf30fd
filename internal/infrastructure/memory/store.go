// Package memory is a process-local Credential Store with the same
// contract as the postgres repositories. It backs the service and HTTP
// tests and local runs without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/internal/domain/repository"
)

// Store holds users and refresh tokens behind one mutex so that deleting a
// user cascades to its tokens atomically.
type Store struct {
	mu     sync.Mutex
	users  map[string]entity.User
	tokens map[string]entity.RefreshToken
	now    func() time.Time

	// Fail, when set, is returned by every call. Tests use it to simulate
	// an unreachable database.
	Fail error
}

func NewStore() *Store {
	return &Store{
		users:  map[string]entity.User{},
		tokens: map[string]entity.RefreshToken{},
		now:    time.Now,
	}
}

// SetClock overrides the time source used for timestamps and expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Tokens returns the refresh token repository view.
func (s *Store) Tokens() *Tokens { return &Tokens{s: s} }

func (s *Store) lock() error {
	s.mu.Lock()
	if s.Fail != nil {
		s.mu.Unlock()
		return s.Fail
	}
	return nil
}

func cloneUser(u entity.User) *entity.User {
	if u.Age != nil {
		a := *u.Age
		u.Age = &a
	}
	return &u
}

type Users struct{ s *Store }

func (r *Users) emailTaken(email, exceptID string) bool {
	for id, u := range r.s.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (r *Users) Create(_ context.Context, u *entity.User) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if r.emailTaken(u.Email, "") {
		return repository.ErrDuplicate
	}
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	now := r.s.now().UTC()
	u.ID = uuid.NewString()
	u.EmailVerified = false
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.users[u.ID] = *cloneUser(*u)
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*entity.User, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *Users) GetByEmail(_ context.Context, email string, includeInactive bool) (*entity.User, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email && (includeInactive || u.Active) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Users) UpdatePassword(_ context.Context, id, hash string) error {
	return r.mutate(id, func(u *entity.User) error {
		u.PasswordHash = hash
		return nil
	})
}

func (r *Users) Update(_ context.Context, in *entity.User) error {
	return r.mutate(in.ID, func(u *entity.User) error {
		if r.emailTaken(in.Email, in.ID) {
			return repository.ErrDuplicate
		}
		u.Name, u.Email, u.Role, u.Active = in.Name, in.Email, in.Role, in.Active
		u.Age = cloneUser(*in).Age
		in.UpdatedAt = r.s.now().UTC()
		return nil
	})
}

func (r *Users) SetVerified(_ context.Context, id string) error {
	return r.mutate(id, func(u *entity.User) error {
		u.EmailVerified = true
		return nil
	})
}

func (r *Users) mutate(id string, fn func(u *entity.User) error) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = r.s.now().UTC()
	r.s.users[id] = u
	return nil
}

// Delete removes the user and, like the foreign key cascade, its tokens.
func (r *Users) Delete(_ context.Context, id string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	for k, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.tokens, k)
		}
	}
	return nil
}

func (r *Users) List(_ context.Context, f repository.ListFilter) ([]entity.User, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	all := r.sorted(func(entity.User) bool { return true })
	if f.Offset >= len(all) {
		return []entity.User{}, nil
	}
	all = all[max(f.Offset, 0):]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *Users) Search(_ context.Context, term string, limit int) ([]entity.User, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	if limit <= 0 || limit > 50 {
		limit = 10
	}
	term = strings.ToLower(term)
	out := r.sorted(func(u entity.User) bool {
		return strings.Contains(strings.ToLower(u.Name), term) || strings.Contains(strings.ToLower(u.Email), term)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sorted returns matching users newest first. Caller holds the lock.
func (r *Users) sorted(keep func(entity.User) bool) []entity.User {
	out := make([]entity.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		if keep(u) {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

type Tokens struct{ s *Store }

func (r *Tokens) Create(_ context.Context, t *entity.RefreshToken) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[t.UserID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.tokens[t.Token]; ok {
		return repository.ErrDuplicate
	}
	t.CreatedAt = r.s.now().UTC()
	r.s.tokens[t.Token] = *t
	return nil
}

func (r *Tokens) Find(_ context.Context, token string) (*entity.RefreshToken, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[token]
	if !ok || t.Expired(r.s.now()) {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *Tokens) Delete(_ context.Context, token string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	delete(r.s.tokens, token)
	return nil
}

func (r *Tokens) DeleteByUser(_ context.Context, userID string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for k, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, k)
		}
	}
	return nil
}

func (r *Tokens) DeleteExpired(_ context.Context) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	now := r.s.now()
	for k, t := range r.s.tokens {
		if t.Expired(now) {
			delete(r.s.tokens, k)
		}
	}
	return nil
}

// Count reports how many refresh token rows exist, expired ones included.
func (r *Tokens) Count(userID string) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.tokens {
		if userID == "" || t.UserID == userID {
			n++
		}
	}
	return n
}

var (
	_ repository.UserRepository         = (*Users)(nil)
	_ repository.RefreshTokenRepository = (*Tokens)(nil)
)
