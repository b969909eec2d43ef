package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	writes  int
	failAll error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return apperrors.NewStoreFailure(r.failAll)
	}
	r.tickets[ticket.ID] = ticket.Clone()
	r.writes++
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return nil, apperrors.NewStoreFailure(r.failAll)
	}
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, repository.TicketNotFound(id)
	}
	return ticket.Clone(), nil
}

func (r *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return nil, apperrors.NewStoreFailure(r.failAll)
	}
	out := []domain.Ticket{}
	for _, ticket := range r.tickets {
		if filter.Matches(ticket) {
			out = append(out, *ticket.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return filter.Page(out), nil
}

func (r *fakeTicketRepo) Update(_ context.Context, id string, mutate repository.MutateFunc) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tickets[id]
	if !ok {
		return nil, repository.TicketNotFound(id)
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := repository.CheckMutation(current, next); err != nil {
		return nil, err
	}
	r.tickets[id] = next.Clone()
	r.writes++
	return next, nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return repository.TicketNotFound(id)
	}
	delete(r.tickets, id)
	r.writes++
	return nil
}

func (r *fakeTicketRepo) Ping(context.Context) error {
	return r.failAll
}

func (r *fakeTicketRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		copied := *u
		r.users[u.ID] = &copied
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = repository.NormalizeEmail(user.Email)
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repository.DuplicateEmail(user.Email)
		}
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.UserNotFound(user.ID)
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.UserNotFound(id)
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.UserNotFound(email)
}

type fakeResetRepo struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]domain.PasswordResetToken
}

func newFakeResetRepo(now func() time.Time) *fakeResetRepo {
	return &fakeResetRepo{now: now, tokens: map[string]domain.PasswordResetToken{}}
}

func (r *fakeResetRepo) Create(_ context.Context, token *domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Token] = *token
	return nil
}

func (r *fakeResetRepo) Consume(_ context.Context, token string) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tokens[token]
	if !ok || !stored.ExpiresAt.After(r.now()) {
		return nil, apperrors.NewNotFound("password reset token", nil)
	}
	delete(r.tokens, token)
	return &stored, nil
}

type fakeIdentityProvider struct {
	identity domain.ExternalIdentity
	err      error
}

func (p fakeIdentityProvider) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + state
}

func (p fakeIdentityProvider) Exchange(_ context.Context, code string) (domain.ExternalIdentity, error) {
	if code != "good-code" {
		return domain.ExternalIdentity{}, errors.New("bad code")
	}
	return p.identity, p.err
}

// recorder collects every ticket event published on a dispatcher.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newRecorder(d events.Dispatcher) *recorder {
	r := &recorder{}
	events.SubscribeAll(d, func(_ context.Context, e events.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
		return nil
	})
	return r
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
