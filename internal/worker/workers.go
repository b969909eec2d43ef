// Package worker starts the long-running background loops of the API
// process and tracks them for graceful shutdown.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/internal/subscription"
)

// Group runs named loops until their context ends.
type Group struct {
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewGroup creates an empty group.
func NewGroup(logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{logger: logger}
}

// Go runs loop on its own goroutine.
func (g *Group) Go(ctx context.Context, name string, loop func(context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.logger.Info("worker started", zap.String("worker", name))
		loop(ctx)
		g.logger.Info("worker stopped", zap.String("worker", name))
	}()
}

// Wait blocks until every loop has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartSubscriptionWorker attaches hub to dispatcher and runs its refresh
// loop. Open subscriptions are closed when ctx ends.
func StartSubscriptionWorker(ctx context.Context, g *Group, hub *subscription.Hub, dispatcher events.Dispatcher) {
	if hub == nil {
		return
	}
	hub.Attach(dispatcher)
	g.Go(ctx, "subscriptions", hub.Run)
}

// StartEventRelay receives events published by other instances.
func StartEventRelay(ctx context.Context, g *Group, relay *events.RedisDispatcher) {
	if relay == nil {
		return
	}
	g.Go(ctx, "event-relay", relay.Run)
}
