package health

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRegistryCheckAll(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	down := errors.New("connection refused")
	r := NewRegistry()
	r.Register(NewRedisProbe(client))
	r.Register(NewPingProbe("execution", pingFunc(func(ctx context.Context) error { return down })))
	r.Register(NewPingProbe("database", pingFunc(func(ctx context.Context) error { return nil })))

	if names := r.List(); len(names) != 3 || names[0] != "database" || names[2] != "redis" {
		t.Errorf("names = %v", names)
	}

	results := r.CheckAll(context.Background())
	if results["redis"] != nil || results["database"] != nil {
		t.Errorf("healthy probes failed: %v", results)
	}
	if !errors.Is(results["execution"], down) {
		t.Errorf("execution = %v", results["execution"])
	}

	mr.Close()
	if err := r.Get("redis").Check(context.Background()); err == nil {
		t.Error("expected redis probe to fail after shutdown")
	}

	if r.Get("missing") != nil {
		t.Error("unknown name should return nil")
	}
}
