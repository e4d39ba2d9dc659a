package callstate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// entryTTL bounds how long a call's cross-process state survives after
// its last write, per spec.md §4.7 ("~1hr, refreshed on every write").
const entryTTL = time.Hour

const (
	sessionReadyChannel = "callstate:session_ready"
	audioDoneChannel    = "callstate:audio_done"
)

// RedisStore is the cross-process tier of the Call-State Store: any
// worker can read or flag a call's shared fields without holding the
// process-local Store that holds its live CallStateEntry. Every write is
// a field-level HSET, never a whole-hash SET, so concurrent writers never
// clobber fields they didn't touch.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func fieldsKey(callID string) string   { return fmt.Sprintf("call:%s:fields", callID) }
func playbackKey(callID string) string { return fmt.Sprintf("call:%s:playback_ids", callID) }

// SetField merges one field into the call's hash and refreshes its TTL.
func (r *RedisStore) SetField(ctx context.Context, callID, field string, value any) error {
	key := fieldsKey(callID)
	if err := r.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("callstate: hset %s.%s: %w", key, field, err)
	}
	return r.client.Expire(ctx, key, entryTTL).Err()
}

// SetFields merges several fields in one round trip.
func (r *RedisStore) SetFields(ctx context.Context, callID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	key := fieldsKey(callID)
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("callstate: hset %s: %w", key, err)
	}
	return r.client.Expire(ctx, key, entryTTL).Err()
}

// Fields returns every field currently set for a call.
func (r *RedisStore) Fields(ctx context.Context, callID string) (map[string]string, error) {
	out, err := r.client.HGetAll(ctx, fieldsKey(callID)).Result()
	if err != nil {
		return nil, fmt.Errorf("callstate: hgetall %s: %w", fieldsKey(callID), err)
	}
	return out, nil
}

// AddPlaybackID records an outstanding playback item in the call's
// current_playback_ids set.
func (r *RedisStore) AddPlaybackID(ctx context.Context, callID, playbackID string) error {
	key := playbackKey(callID)
	if err := r.client.SAdd(ctx, key, playbackID).Err(); err != nil {
		return fmt.Errorf("callstate: sadd %s: %w", key, err)
	}
	return r.client.Expire(ctx, key, entryTTL).Err()
}

// RemovePlaybackID drops a playback item once it has ended or been cleared.
func (r *RedisStore) RemovePlaybackID(ctx context.Context, callID, playbackID string) error {
	key := playbackKey(callID)
	if err := r.client.SRem(ctx, key, playbackID).Err(); err != nil {
		return fmt.Errorf("callstate: srem %s: %w", key, err)
	}
	return r.client.Expire(ctx, key, entryTTL).Err()
}

// PlaybackIDs lists every currently outstanding playback item for a call.
func (r *RedisStore) PlaybackIDs(ctx context.Context, callID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, playbackKey(callID)).Result()
	if err != nil {
		return nil, fmt.Errorf("callstate: smembers %s: %w", playbackKey(callID), err)
	}
	return ids, nil
}

// Delete removes every cross-process record for a call once it ends.
func (r *RedisStore) Delete(ctx context.Context, callID string) error {
	return r.client.Del(ctx, fieldsKey(callID), playbackKey(callID)).Err()
}

// PublishSessionReady flags that a call's vendor sessions (STT/LLM/TTS)
// have all finished connecting, for workers waiting to hand off webhook
// events to the right process (spec.md §9, cross-worker message/flag
// passing).
func (r *RedisStore) PublishSessionReady(ctx context.Context, callID string) error {
	return r.client.Publish(ctx, sessionReadyChannel, callID).Err()
}

// PublishAudioDone flags that a call's outstanding playback has drained.
func (r *RedisStore) PublishAudioDone(ctx context.Context, callID string) error {
	return r.client.Publish(ctx, audioDoneChannel, callID).Err()
}

// SubscribeSessionReady returns a subscription to session_ready flags.
// Callers must Close it when done.
func (r *RedisStore) SubscribeSessionReady(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, sessionReadyChannel)
}

// SubscribeAudioDone returns a subscription to audio_done flags. Callers
// must Close it when done.
func (r *RedisStore) SubscribeAudioDone(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, audioDoneChannel)
}

// NewClient builds a go-redis client from host:port/password/db settings.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
