package callstate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

func TestStore_CreateGetUpdate(t *testing.T) {
	s := New()
	entry := s.Create("call-1")
	assert.NotNil(t, entry.CurrentPlaybackIDs)

	got, ok := s.Get("call-1")
	require.True(t, ok)
	assert.Same(t, entry, got)

	err := s.Update("call-1", func(e *calltypes.CallStateEntry) {
		e.UserHasSpoken = true
	})
	require.NoError(t, err)

	got, _ = s.Get("call-1")
	assert.True(t, got.UserHasSpoken)
}

func TestStore_UpdateUnknownCallErrors(t *testing.T) {
	s := New()
	err := s.Update("missing", func(e *calltypes.CallStateEntry) {})
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	s := New()
	s.Create("call-1")
	s.Delete("call-1")
	_, ok := s.Get("call-1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewRedisStore(client), mr
}

func TestRedisStore_SetFieldMergesWithoutClobbering(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	require.NoError(t, store.SetField(ctx, "call-1", "user_has_spoken", "true"))
	require.NoError(t, store.SetField(ctx, "call-1", "voicemail_detected", "false"))

	fields, err := store.Fields(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "true", fields["user_has_spoken"])
	assert.Equal(t, "false", fields["voicemail_detected"])
}

func TestRedisStore_PlaybackIDSetRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	require.NoError(t, store.AddPlaybackID(ctx, "call-1", "p1"))
	require.NoError(t, store.AddPlaybackID(ctx, "call-1", "p2"))

	ids, err := store.PlaybackIDs(ctx, "call-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)

	require.NoError(t, store.RemovePlaybackID(ctx, "call-1", "p1"))
	ids, err = store.PlaybackIDs(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids)
}

func TestRedisStore_DeleteClearsBothKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	require.NoError(t, store.SetField(ctx, "call-1", "user_has_spoken", "true"))
	require.NoError(t, store.AddPlaybackID(ctx, "call-1", "p1"))
	require.NoError(t, store.Delete(ctx, "call-1"))

	fields, err := store.Fields(ctx, "call-1")
	require.NoError(t, err)
	assert.Empty(t, fields)

	ids, err := store.PlaybackIDs(ctx, "call-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_PublishSessionReadyDeliversToSubscriber(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	sub := store.SubscribeSessionReady(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	require.NoError(t, store.PublishSessionReady(ctx, "call-1"))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "call-1", msg.Payload)
}
