package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/loresmith/internal/domain"
)

const (
	DefaultKeyPrefix = "loresmith:selection:"
	DefaultTTL       = 24 * time.Hour

	liveField  = "_live"
	draftField = "_draft"
)

// RedisStore keeps one hash per session: one field per selection key holding the
// artifact JSON, plus a draft field and a liveness marker.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	KeyPrefix string
	TTL       time.Duration
}

func NewRedisStore(rdb goredis.UniversalClient, opts RedisOptions) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix := strings.TrimSpace(opts.KeyPrefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) key(session string) string { return s.prefix + session }

func (s *RedisStore) Init(ctx context.Context, session string) error {
	k := s.key(session)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, liveField, "1")
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("init selection %s: %w", session, err)
	}
	return nil
}

func (s *RedisStore) Put(ctx context.Context, session string, key domain.SelectionKey, a domain.Artifact) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return s.write(ctx, session, string(key), raw)
}

func (s *RedisStore) SaveDraft(ctx context.Context, session string, d Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return s.write(ctx, session, draftField, raw)
}

// writeScript sets a field only while the liveness marker exists, so a write racing
// Teardown cannot recreate the hash.
var writeScript = goredis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

func (s *RedisStore) write(ctx context.Context, session, field string, raw []byte) error {
	k := s.key(session)
	ok, err := writeScript.Run(ctx, s.rdb, []string{k}, liveField, field, raw, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("write selection %s/%s: %w", session, field, err)
	}
	if ok == 0 {
		return ErrNoSession
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, session string) (domain.SelectionState, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("load selection %s: %w", session, err)
	}
	if _, ok := fields[liveField]; !ok {
		return nil, ErrNoSession
	}
	out := domain.SelectionState{}
	for field, raw := range fields {
		if field == liveField || field == draftField {
			continue
		}
		var a domain.Artifact
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode selection %s/%s: %w", session, field, err)
		}
		out[domain.SelectionKey(field)] = a
	}
	return out, nil
}

func (s *RedisStore) LoadDraft(ctx context.Context, session string) (Draft, error) {
	k := s.key(session)
	vals, err := s.rdb.HMGet(ctx, k, liveField, draftField).Result()
	if err != nil {
		return Draft{}, fmt.Errorf("load draft %s: %w", session, err)
	}
	if vals[0] == nil {
		return Draft{}, ErrNoSession
	}
	raw, ok := vals[1].(string)
	if !ok || raw == "" {
		return Draft{}, nil
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Draft{}, fmt.Errorf("decode draft %s: %w", session, err)
	}
	return d, nil
}

func (s *RedisStore) Teardown(ctx context.Context, session string) error {
	if err := s.rdb.Del(ctx, s.key(session)).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("teardown selection %s: %w", session, err)
	}
	return nil
}
