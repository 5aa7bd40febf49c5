package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/assessment-engine/internal/models"
)

func newStore(t *testing.T, ttl time.Duration) (*RedisSnapshots, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSnapshots(client, ttl), mr
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	ctx := context.Background()

	view := models.SessionView{
		SessionID: "abc",
		Owner:     "alice",
		State:     "dashboard",
		Status:    models.SessionInProgress,
		Results: map[models.StageName]*models.StageResult{
			models.StageCommunication: {Score: 72.5, Passed: true},
		},
		Unlocked: map[models.StageName]bool{models.StageTechnical: true},
	}
	if err := store.Save(ctx, view); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !mr.Exists("assessment:session:abc") {
		t.Fatal("snapshot key not written")
	}
	if ttl := mr.TTL("assessment:session:abc"); ttl != time.Hour {
		t.Errorf("ttl = %v", ttl)
	}

	got, err := store.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Owner != "alice" || got.Results[models.StageCommunication].Score != 72.5 || !got.Unlocked[models.StageTechnical] {
		t.Errorf("loaded = %+v", got)
	}

	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = store.Load(ctx, "abc")
	if err != nil || got != nil {
		t.Errorf("after delete: %v, %v", got, err)
	}
}

func TestSnapshotExpires(t *testing.T) {
	store, mr := newStore(t, time.Minute)
	ctx := context.Background()

	store.Save(ctx, models.SessionView{SessionID: "x"})
	mr.FastForward(2 * time.Minute)

	got, err := store.Load(ctx, "x")
	if err != nil || got != nil {
		t.Errorf("expected expired snapshot, got %v, %v", got, err)
	}
}

func TestSnapshotLoadCorrupt(t *testing.T) {
	store, mr := newStore(t, 0)
	mr.Set("assessment:session:bad", "{not json")

	if _, err := store.Load(context.Background(), "bad"); err == nil {
		t.Error("expected an error for a corrupt snapshot")
	}
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisClient(ctx, RedisConfig{Address: addr}); err == nil {
		t.Error("expected connection error")
	}
}
