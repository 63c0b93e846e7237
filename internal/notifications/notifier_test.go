package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), uuid.New(), EventNewFollower, nil))
	assert.NoError(t, n.PublishBroadcast(context.Background(), EventPatchPublished, nil))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.PublishUser(context.Background(), uuid.New(), EventNewFollower, nil))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	id := uuid.MustParse("0d5c6b63-64a5-4c8e-9f55-8a2b3c4d5e6f")
	assert.Equal(t, "notifications:user:0d5c6b63-64a5-4c8e-9f55-8a2b3c4d5e6f", UserChannel(id))
}

func TestNotifier_PublishUserDelivers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNotifier(rdb)
	received := make(chan string, 1)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == UserChannel(userIDForTest) {
			received <- payload
		}
	}))

	require.NoError(t, n.PublishUser(ctx, userIDForTest, EventNewFollower, map[string]string{"username": "ada"}))

	select {
	case payload := <-received:
		var evt Event
		require.NoError(t, json.Unmarshal([]byte(payload), &evt))
		assert.Equal(t, EventNewFollower, evt.Type)
		assert.False(t, evt.CreatedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification to be delivered")
	}
}

var userIDForTest = uuid.MustParse("9b2f3e4a-1c5d-4e6f-8a7b-0c1d2e3f4a5b")

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	n := NewNotifier(rdb)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(string, string) {}))
	cancel()

	assert.Eventually(t, func() bool {
		return mr.PubSubNumPat() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
