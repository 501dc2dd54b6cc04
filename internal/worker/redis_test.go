package worker

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"docuexplore/internal/config"
	"docuexplore/internal/redis"
	"docuexplore/internal/session"
)

func TestInvalidationBusPubSub(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newInvalidationBus(client, nil)
	ch := make(chan invalidateMessage, 1)
	bus.startListener(ctx, func(msg invalidateMessage) {
		ch <- msg
	})

	msg := invalidateMessage{SessionID: "abc", Origin: "node-1"}
	bus.publish(msg)
	select {
	case got := <-ch:
		if got != msg {
			t.Fatalf("unexpected message %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive pubsub message")
	}
}

func TestPeerInvalidationDropsLocalWorker(t *testing.T) {
	client, cleanup := newTestRedis(t)
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := session.NewRedisStore(client, time.Minute)
	a := NewManager(readyServices(), store, Config{}, nil)
	b := NewManager(readyServices(), store, Config{}, nil)
	a.EnableInvalidation(ctx, client)
	b.EnableInvalidation(ctx, client)
	defer a.Shutdown()
	defer b.Shutdown()

	b.ensureWorker(ctx, "shared")
	if err := a.Upload(ctx, "shared", session.UploadRequest{FileName: "a.pdf", Data: []byte("%PDF")}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	waitIdle(t, a, "shared")

	deadline := time.Now().Add(2 * time.Second)
	for b.getWorker("shared") != nil {
		if time.Now().After(deadline) {
			t.Fatalf("peer worker was not invalidated")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if v := b.Snapshot(ctx, "shared"); v.Title != "Renewable Energy Report" {
		t.Fatalf("expected peer to restore the shared snapshot, got %+v", v)
	}
}

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed worker tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	if raw := client.Raw(); raw != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	return client, func() { client.Close() }
}
