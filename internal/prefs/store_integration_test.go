package prefs_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/langswap/internal/prefs"
)

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s prefs.Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if muted, err := s.LoadMute(ctx); err != nil || muted {
		t.Fatalf("initial LoadMute = %v, %v; want false, nil", muted, err)
	}
	for _, want := range []bool{true, false, true} {
		if err := s.SaveMute(ctx, want); err != nil {
			t.Fatalf("SaveMute(%v): %v", want, err)
		}
		got, err := s.LoadMute(ctx)
		if err != nil || got != want {
			t.Fatalf("LoadMute = %v, %v; want %v", got, err, want)
		}
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("LANGSWAP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LANGSWAP_TEST_REDIS_ADDR not set, skipping Redis integration test")
	}
	key := "langswap:test:" + t.Name()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Del(context.Background(), key); _ = client.Close() })
	client.Del(context.Background(), key)

	s, err := prefs.NewRedis(prefs.RedisOptions{Addr: addr, Key: key})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("LANGSWAP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LANGSWAP_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	key := "test_" + t.Name()

	s, err := prefs.NewPostgres(ctx, dsn, key)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	cleanup := func() { _, _ = pool.Exec(ctx, `DELETE FROM preferences WHERE key = $1`, key) }
	cleanup()
	t.Cleanup(cleanup)

	exerciseStore(t, s)
}

func TestNewRedis_EmptyAddr(t *testing.T) {
	if _, err := prefs.NewRedis(prefs.RedisOptions{}); err == nil {
		t.Error("NewRedis accepted an empty address")
	}
}
