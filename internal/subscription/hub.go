// Package subscription pushes fresh ticket collections to live subscribers
// whenever the collection changes.
package subscription

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/policy"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// Lister is the part of the ticket repository the hub reads from.
type Lister interface {
	List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error)
}

// scope is the slice of the collection a subscriber is entitled to.
type scope struct {
	all       bool
	creatorID string
}

func scopeFor(user *domain.User) scope {
	creatorID, all := policy.ListScope(user)
	return scope{all: all, creatorID: creatorID}
}

func (s scope) filter() repository.TicketFilter {
	if s.all {
		return repository.TicketFilter{}
	}
	creatorID := s.creatorID
	return repository.TicketFilter{CreatedBy: &creatorID}
}

// Hub fans ticket collection snapshots out to subscribers. Events only mark
// scopes dirty; Run recomputes one snapshot per dirty scope and delivers it.
type Hub struct {
	tickets Lister
	logger  *zap.Logger

	mu    sync.Mutex
	subs  map[*Subscription]struct{}
	dirty map[string]struct{}
	all   bool
	wake  chan struct{}

	// stopped is set once Run has returned; no new subscriptions are taken.
	stopped bool

	// refresh serializes snapshot computation and delivery so a subscriber
	// never receives an older snapshot after a newer one.
	refresh sync.Mutex
}

// NewHub creates a hub reading from tickets.
func NewHub(tickets Lister, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tickets: tickets,
		logger:  logger,
		subs:    make(map[*Subscription]struct{}),
		dirty:   make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Attach registers the hub on every ticket event of d.
func (h *Hub) Attach(d events.Dispatcher) {
	events.SubscribeAll(d, h.Handle)
}

// Handle records that the collection changed for the event's creator. It
// never blocks on subscribers.
func (h *Hub) Handle(_ context.Context, event events.Event) error {
	h.mu.Lock()
	if event.CreatedBy == "" {
		h.all = true
	} else {
		h.dirty[event.CreatedBy] = struct{}{}
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe opens a subscription for user. The first value on Updates is
// the current snapshot of the tickets user may see.
func (h *Hub) Subscribe(ctx context.Context, user *domain.User) (*Subscription, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if h.isStopped() {
		return nil, errHubStopped()
	}
	sub := &Subscription{
		hub:   h,
		scope: scopeFor(user),
		ch:    make(chan []domain.Ticket, 1),
	}

	h.refresh.Lock()
	defer h.refresh.Unlock()

	snapshot, err := h.tickets.List(ctx, sub.scope.filter())
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, errHubStopped()
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	sub.deliver(snapshot)
	return sub, nil
}

// Run processes change notifications until ctx is done, then cancels every
// open subscription.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
			h.flush(ctx)
		}
	}
}

// Subscribers reports the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) flush(ctx context.Context) {
	h.refresh.Lock()
	defer h.refresh.Unlock()

	h.mu.Lock()
	dirty, all := h.dirty, h.all
	h.dirty, h.all = make(map[string]struct{}), false
	targets := make(map[scope][]*Subscription)
	for sub := range h.subs {
		_, touched := dirty[sub.scope.creatorID]
		if sub.scope.all || all || touched {
			targets[sub.scope] = append(targets[sub.scope], sub)
		}
	}
	h.mu.Unlock()

	for sc, subs := range targets {
		snapshot, err := h.tickets.List(ctx, sc.filter())
		if err != nil {
			h.logger.Warn("subscription snapshot failed",
				zap.Bool("all", sc.all),
				zap.String("creator_id", sc.creatorID),
				zap.Error(err))
			continue
		}
		for _, sub := range subs {
			sub.deliver(snapshot)
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *Hub) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func errHubStopped() error {
	return apperrors.NewUnavailable("subscriptions are closed")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	h.stopped = true
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// Subscription is a cancellable stream of ticket collection snapshots.
// Snapshots are shared between subscribers and must not be modified.
type Subscription struct {
	hub   *Hub
	scope scope
	ch    chan []domain.Ticket

	mu     sync.Mutex
	closed bool
}

// Updates yields snapshots. Only the latest undelivered snapshot is kept.
// The channel is closed by Cancel.
func (s *Subscription) Updates() <-chan []domain.Ticket {
	return s.ch
}

// Cancel stops delivery. Once it returns nothing more is received and the
// Updates channel is closed. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	select {
	case <-s.ch:
	default:
	}
	close(s.ch)
}

func (s *Subscription) deliver(snapshot []domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snapshot
}
