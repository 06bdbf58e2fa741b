package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/StefanPetk0vic/Locus/internal/config"
)

func TestKeyspace(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		cmd  redis.Cmder
		want string
	}{
		{redis.NewStringCmd(ctx, "get", "ride:batch:index:abc"), "ride"},
		{redis.NewStringCmd(ctx, "get", "presence:user-1"), "presence"},
		{redis.NewStringCmd(ctx, "geoadd", "drivers:locations", 20.4, 44.8, "d1"), "drivers"},
		{redis.NewStringCmd(ctx, "get", "plain"), "plain"},
		{redis.NewStatusCmd(ctx, "ping"), "redis"},
	}

	for _, tt := range tests {
		if got := keyspace(tt.cmd); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.cmd.Args(), tt.want, got)
		}
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "presence:u1", "drivers", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if v, _ := mr.Get("presence:u1"); v != "drivers" {
		t.Errorf("unexpected value %q", v)
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr}, nil); err == nil {
		t.Fatal("expected ping failure")
	}
}
