package storage

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/terra-clan/assessment-engine/internal/models"
)

func newSession(id, owner string, created time.Time) *models.Session {
	return &models.Session{
		ID:      id,
		Owner:   owner,
		Status:  models.SessionInProgress,
		Results: map[models.StageName]*models.StageResult{},
		Metadata: models.SessionMetadata{
			QuestionSetID: "set-1",
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	s := newSession("a", "alice", time.Now())
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// a repeated create keeps the first record
	dup := s.Clone()
	dup.Status = models.SessionDisqualified
	if err := repo.CreateSession(ctx, dup); err != nil {
		t.Errorf("repeated CreateSession: %v", err)
	}
	if got, _ := repo.GetSession(ctx, "a"); got.Status != s.Status {
		t.Errorf("repeated create overwrote status: %q", got.Status)
	}

	// mutating the caller's copy must not leak into the store
	s.Results[models.StageCommunication] = &models.StageResult{Score: 80, Passed: true}

	got, err := repo.GetSession(ctx, "a")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Result(models.StageCommunication) != nil {
		t.Error("store shares state with caller")
	}

	if err := repo.UpdateSession(ctx, s); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	got, _ = repo.GetSession(ctx, "a")
	if r := got.Result(models.StageCommunication); r == nil || r.Score != 80 {
		t.Errorf("result = %+v", r)
	}

	missing, err := repo.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetSession(missing) = %v, %v", missing, err)
	}
}

func TestMemoryRepositoryUpdateMissing(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.UpdateSession(context.Background(), newSession("x", "bob", time.Now()))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositoryListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Now()

	for i, id := range []string{"s1", "s2", "s3"} {
		repo.CreateSession(ctx, newSession(id, "alice", base.Add(time.Duration(i)*time.Minute)))
	}
	repo.CreateSession(ctx, newSession("other", "bob", base))

	all, err := repo.ListSessionsByOwner(ctx, "alice", 0, 0)
	if err != nil {
		t.Fatalf("ListSessionsByOwner: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s3" || all[2].ID != "s1" {
		t.Errorf("unexpected order: %v", ids(all))
	}

	page, _ := repo.ListSessionsByOwner(ctx, "alice", 1, 1)
	if len(page) != 1 || page[0].ID != "s2" {
		t.Errorf("page = %v", ids(page))
	}

	empty, _ := repo.ListSessionsByOwner(ctx, "alice", 10, 5)
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %v", ids(empty))
	}
}

func ids(sessions []*models.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}

func TestMigrationNames(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.sql":    {Data: []byte("SELECT 1")},
		"001_initial.sql": {Data: []byte("SELECT 1")},
		"README.md":       {Data: []byte("docs")},
		"old/003.sql":     {Data: []byte("SELECT 1")},
	}

	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) != 2 || names[0] != "001_initial.sql" || names[1] != "002_more.sql" {
		t.Errorf("names = %v", names)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	fsys, err := Migrations("")
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_assessment_sessions.sql" {
		t.Errorf("embedded migrations = %v", names)
	}
}
