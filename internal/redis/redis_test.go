package redis

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"assistanthub/internal/config"
)

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.Set(ctx, "k", "v", time.Minute); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
	if _, err := c.SetNX(ctx, "k", "v", time.Minute); err == nil {
		t.Fatalf("expected error from nil client")
	}
}

func TestConfigured(t *testing.T) {
	if Configured(&config.Config{}) {
		t.Fatalf("empty host should not be configured")
	}
	if !Configured(&config.Config{Redis: config.RedisConfig{Host: "127.0.0.1"}}) {
		t.Fatalf("host should mark redis configured")
	}
}

func TestSetNXAndGetDel(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	key := "test:setnx:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	ok, err := client.SetNX(ctx, key, "first", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "second", time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should not overwrite: ok=%v err=%v", ok, err)
	}
	got, err := client.GetDel(ctx, key)
	if err != nil || got != "first" {
		t.Fatalf("GetDel: got=%q err=%v", got, err)
	}
	if _, err := client.Get(ctx, key); err != ErrCacheMiss {
		t.Fatalf("expected cache miss after GetDel, got %v", err)
	}
}
