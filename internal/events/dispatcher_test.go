package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishInvokesHandlersInOrder(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketDeleted, func(context.Context, Event) error {
		seen = append(seen, "deleted")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "t-1"}))
	assert.Equal(t, []string{"first:t-1", "second:t-1"}, seen)
}

func TestPublishRunsEveryHandlerAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	calls := 0
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error { calls++; return boom })
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error { calls++; return nil })

	err := d.Publish(context.Background(), Event{Type: EventTicketUpdated})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestSubscribeAll(t *testing.T) {
	d := NewInMemoryDispatcher()
	var types []EventType
	SubscribeAll(d, func(_ context.Context, e Event) error {
		types = append(types, e.Type)
		return nil
	})

	for _, eventType := range TicketEventTypes {
		require.NoError(t, d.Publish(context.Background(), Event{Type: eventType}))
	}
	assert.Equal(t, TicketEventTypes, types)
}

func TestRelayIgnoresOwnEventsAndFlagsForeignOnes(t *testing.T) {
	local := NewInMemoryDispatcher()
	d := NewRedisDispatcher(local, nil, "events", zap.NewNop())

	var got []Event
	local.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	d.relay(context.Background(), `{"type":"ticket_created","ticket_id":"t-1","origin":"`+d.origin+`"}`)
	d.relay(context.Background(), `{"type":"ticket_created","ticket_id":"t-2","created_by":"alice","origin":"elsewhere"}`)
	d.relay(context.Background(), `not json`)

	require.Len(t, got, 1)
	assert.Equal(t, "t-2", got[0].TicketID)
	assert.Equal(t, "alice", got[0].CreatedBy)
	assert.True(t, got[0].Relayed)
}
