package selection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/loresmith/internal/domain"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s, err := NewRedisStore(rdb, RedisOptions{TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return s, mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, "s1", domain.KeyCharacter, domain.Artifact{Name: "early"}); !errors.Is(err, ErrNoSession) {
				t.Fatalf("put before init: want ErrNoSession got=%v", err)
			}
			if err := s.Init(ctx, "s1"); err != nil {
				t.Fatalf("Init: %v", err)
			}
			hero := domain.Artifact{Name: "Aria", Description: "ranger", Type: "character", Details: map[string]any{"age": float64(31)}}
			if err := s.Put(ctx, "s1", domain.KeyCharacter, hero); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := s.Put(ctx, "s1", domain.KeyFaction, domain.Artifact{Name: "Gilded Hand"}); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := s.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != 2 || got[domain.KeyCharacter].Name != "Aria" || got[domain.KeyCharacter].Details["age"] != float64(31) {
				t.Fatalf("selection: got=%+v", got)
			}

			idx := 2
			if err := s.SaveDraft(ctx, "s1", Draft{Stage: domain.StageSettings, Index: &idx, Artifact: &domain.Artifact{Name: "Port Vell"}}); err != nil {
				t.Fatalf("SaveDraft: %v", err)
			}
			d, err := s.LoadDraft(ctx, "s1")
			if err != nil {
				t.Fatalf("LoadDraft: %v", err)
			}
			if d.Stage != domain.StageSettings || d.Index == nil || *d.Index != 2 || d.Artifact.Name != "Port Vell" {
				t.Fatalf("draft: got=%+v", d)
			}

			// re-init clears
			if err := s.Init(ctx, "s1"); err != nil {
				t.Fatalf("Init again: %v", err)
			}
			got, _ = s.Load(ctx, "s1")
			if len(got) != 0 {
				t.Fatalf("init must clear picks: got=%v", got)
			}

			if err := s.Teardown(ctx, "s1"); err != nil {
				t.Fatalf("Teardown: %v", err)
			}
			if _, err := s.Load(ctx, "s1"); !errors.Is(err, ErrNoSession) {
				t.Fatalf("load after teardown: want ErrNoSession got=%v", err)
			}
		})
	}
}

func TestSessionsDoNotLeak(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Init(ctx, "a")
			_ = s.Init(ctx, "b")
			_ = s.Put(ctx, "a", domain.KeyRelic, domain.Artifact{Name: "Crown"})
			got, err := s.Load(ctx, "b")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("session b sees session a picks: %v", got)
			}
		})
	}
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	if err := s.Init(ctx, "s1"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if ttl := mr.TTL(DefaultKeyPrefix + "s1"); ttl != time.Hour {
		t.Fatalf("ttl: want=1h got=%s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := s.Load(ctx, "s1"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expired session: want ErrNoSession got=%v", err)
	}
}

func TestRedisWriteRacingTeardownLeavesNoHash(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	if err := s.Init(ctx, "s1"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 500; n++ {
				err := s.Put(ctx, "s1", domain.KeyCharacter, domain.Artifact{Name: "A"})
				if errors.Is(err, ErrNoSession) {
					return
				}
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	if err := s.Teardown(ctx, "s1"); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	wg.Wait()

	if mr.Exists(DefaultKeyPrefix + "s1") {
		t.Fatalf("write after teardown recreated hash: %v", mr.Keys())
	}
	if err := s.Put(ctx, "s1", domain.KeyFaction, domain.Artifact{Name: "B"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("put after teardown: want ErrNoSession got=%v", err)
	}
}
