package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisChallengeStoreTest(t *testing.T) (*RedisOtpChallengeStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisOtpChallengeStore(rdb, "aoc", 0)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func exerciseChallengeStore(t *testing.T, store OtpChallengeStore) {
	t.Helper()
	ctx := context.Background()
	issued := time.Unix(1700000000, 0)

	if _, err := store.Consume(ctx, "a@b.com"); !errors.Is(err, ErrOtpChallengeNotFound) {
		t.Fatalf("expected not found before issue, got %v", err)
	}
	if err := store.Issue(ctx, " A@B.com ", issued); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := store.Issue(ctx, "a@b.com", issued.Add(time.Minute)); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	rec, err := store.Consume(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if rec.Email != "a@b.com" || rec.IssuedAt != issued.Add(time.Minute).Unix() {
		t.Fatalf("expected latest challenge, got %+v", rec)
	}
	if _, err := store.Consume(ctx, "a@b.com"); !errors.Is(err, ErrOtpChallengeNotFound) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func TestMemoryOtpChallengeStore(t *testing.T) {
	exerciseChallengeStore(t, NewMemoryOtpChallengeStore(0))
}

func TestRedisOtpChallengeStore(t *testing.T) {
	store, _, done := newRedisChallengeStoreTest(t)
	defer done()
	exerciseChallengeStore(t, store)
}

func TestMemoryOtpChallengeStoreTTL(t *testing.T) {
	store := NewMemoryOtpChallengeStore(time.Minute)
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }
	if err := store.Issue(context.Background(), "a@b.com", now); err != nil {
		t.Fatalf("issue: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := store.Consume(context.Background(), "a@b.com"); !errors.Is(err, ErrOtpChallengeNotFound) {
		t.Fatalf("expected expired challenge, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expired challenge not removed")
	}
}

func TestRedisOtpChallengeConsumeOnceUnderContention(t *testing.T) {
	store, _, done := newRedisChallengeStoreTest(t)
	defer done()
	if err := store.Issue(context.Background(), "race@b.com", time.Now()); err != nil {
		t.Fatalf("issue: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(context.Background(), "race@b.com"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one consumer, got %d", wins.Load())
	}
}

func TestRedisOtpChallengeBackendError(t *testing.T) {
	store, mr, done := newRedisChallengeStoreTest(t)
	defer done()
	mr.SetError("down")
	if err := store.Issue(context.Background(), "a@b.com", time.Now()); !errors.Is(err, ErrOtpChallengeBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestDecodeOtpChallengeRejectsUnknownVersion(t *testing.T) {
	if _, err := decodeOtpChallenge([]byte{9, 0}); err == nil {
		t.Fatal("expected version error")
	}
}
