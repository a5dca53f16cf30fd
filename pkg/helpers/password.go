package helpers

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher hashes with bcrypt at a fixed cost. The semaphore caps how
// many hashes run at once so a burst of logins cannot occupy every CPU that
// request handling needs.
type PasswordHasher struct {
	cost  int
	slots *semaphore.Weighted

	// dummy is compared against when no user exists, keeping login timing uniform.
	dummy []byte
}

func NewPasswordHasher(cost, concurrency int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("timing-equaliser"), cost)
	return &PasswordHasher{cost: cost, slots: semaphore.NewWeighted(int64(concurrency)), dummy: dummy}
}

// Hash returns a salted bcrypt digest; the salt is embedded in the output.
func (h *PasswordHasher) Hash(ctx context.Context, plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash. Mismatch, a malformed hash and a
// cancelled context all yield false.
func (h *PasswordHasher) Verify(ctx context.Context, plain, hash string) bool {
	if hash == "" {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Burn spends one comparison worth of CPU against a throwaway hash.
func (h *PasswordHasher) Burn(ctx context.Context, plain string) {
	_ = h.Verify(ctx, plain, string(h.dummy))
}

// Cost exposes the configured work factor.
func (h *PasswordHasher) Cost() int { return h.cost }
