package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	repo "github.com/oksasatya/go-user-auth/internal/domain/repository"
	"github.com/oksasatya/go-user-auth/internal/infrastructure/memory"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/mailer"
)

type fakePublisher struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
	err  error
}

func (p *fakePublisher) PublishJSON(_ context.Context, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, body.(mailer.EmailJob))
	return nil
}

func (p *fakePublisher) templates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.jobs))
	for _, j := range p.jobs {
		out = append(out, j.Template)
	}
	return out
}

type fakeIndex struct {
	mu      sync.Mutex
	docs    map[string]*entity.PublicUser
	deleted []string
	err     error
}

func newFakeIndex() *fakeIndex { return &fakeIndex{docs: map[string]*entity.PublicUser{}} }

func (x *fakeIndex) Index(_ context.Context, u *entity.PublicUser) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	x.docs[u.ID] = u
	return nil
}

func (x *fakeIndex) Delete(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deleted = append(x.deleted, id)
	delete(x.docs, id)
	return x.err
}

func (x *fakeIndex) Search(_ context.Context, _ string, _ int) ([]*entity.PublicUser, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return nil, x.err
	}
	out := make([]*entity.PublicUser, 0, len(x.docs))
	for _, u := range x.docs {
		out = append(out, u)
	}
	return out, nil
}

// vanishingUsers hides users from lookups by id while leaving their rows,
// including refresh tokens, in place.
type vanishingUsers struct {
	repo.UserRepository
	gone map[string]bool
}

func (v *vanishingUsers) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if v.gone[id] {
		return nil, repo.ErrNotFound
	}
	return v.UserRepository.GetByID(ctx, id)
}

var errDown = errors.New("connection refused")

type authFixture struct {
	svc   *AuthService
	store *memory.Store
	jwt   *helpers.JWTManager
	mail  *fakePublisher
	index *fakeIndex
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memory.NewStore()
	jwt := helpers.NewJWTManager("test-secret", time.Minute)
	hasher := helpers.NewPasswordHasher(bcrypt.MinCost, 4)
	mail := &fakePublisher{}
	index := newFakeIndex()
	svc := NewAuthService(&config.Config{AppName: "test"}, store.Users(), store.Tokens(), hasher, jwt, nil,
		WithMailer(mail), WithSearchIndex(index))
	return &authFixture{svc: svc, store: store, jwt: jwt, mail: mail, index: index}
}

func (f *authFixture) register(t *testing.T, name, email, password string) *entity.PublicUser {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}
