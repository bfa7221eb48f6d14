package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/semindex/internal/model"
)

func TestBusPublishOrderAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	var got []string
	unsubA := bus.Subscribe(TopicItemUploaded, func(ctx context.Context, ev Event) {
		got = append(got, "a")
	})
	bus.Subscribe(TopicItemUploaded, func(ctx context.Context, ev Event) {
		require.Equal(t, int64(7), ev.Item.ID)
		got = append(got, "b")
	})
	bus.Subscribe(TopicSyncComplete, func(ctx context.Context, ev Event) {
		got = append(got, "sync")
	})

	bus.Publish(context.Background(), Event{Topic: TopicItemUploaded, Item: &model.Item{ID: 7}})
	require.Equal(t, []string{"a", "b"}, got)

	unsubA()
	unsubA()
	got = nil
	bus.Publish(context.Background(), Event{Topic: TopicItemUploaded, Item: &model.Item{ID: 7}})
	require.Equal(t, []string{"b"}, got)

	got = nil
	bus.Publish(context.Background(), Event{Topic: TopicCacheUpdated})
	require.Empty(t, got)
}

func TestBusHandlerMaySubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.Subscribe(TopicSettingsChanged, func(ctx context.Context, ev Event) {
		calls++
		bus.Subscribe(TopicSettingsChanged, func(ctx context.Context, ev Event) {})
	})
	bus.Publish(context.Background(), Event{Topic: TopicSettingsChanged})
	require.Equal(t, 1, calls)
}
