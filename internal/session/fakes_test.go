package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/terra-clan/assessment-engine/internal/integrity"
	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/stages"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

// fakeStage returns a fixed outcome, optionally blocking until released
type fakeStage struct {
	name      models.StageName
	outcome   stages.Outcome
	err       error
	release   chan struct{}
	started   chan struct{}
	cancelled atomic.Bool
}

func (s *fakeStage) Name() models.StageName { return s.name }

func (s *fakeStage) Run(ctx context.Context, payload json.RawMessage) (stages.Outcome, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.outcome, s.err
}

func (s *fakeStage) Cancel() { s.cancelled.Store(true) }

type fakeFactory struct {
	mu      sync.Mutex
	next    map[models.StageName]*fakeStage
	created []*fakeStage
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{next: make(map[models.StageName]*fakeStage)}
}

// prepare sets the stage instance returned on the next New call for name
func (f *fakeFactory) prepare(s *fakeStage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next[s.name] = s
}

func (f *fakeFactory) New(name models.StageName, sc *models.SessionContext) (stages.Stage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.next[name]
	if !ok {
		s = &fakeStage{name: name}
	}
	delete(f.next, name)
	f.created = append(f.created, s)
	return s, nil
}

// flakyRepo fails the next failUpdates writes; a negative value fails forever.
// lostCreates inserts commit but report an error, like a dropped reply.
type flakyRepo struct {
	*storage.MemoryRepository
	mu          sync.Mutex
	failCreates int
	lostCreates int
	failUpdates int
	creates     int
	updates     int
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{MemoryRepository: storage.NewMemoryRepository()}
}

var errConnReset = errors.New("connection reset by peer")

func (r *flakyRepo) CreateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	r.creates++
	if r.lostCreates > 0 {
		r.lostCreates--
		r.mu.Unlock()
		if err := r.MemoryRepository.CreateSession(ctx, s); err != nil {
			return err
		}
		return errConnReset
	}
	if r.failCreates != 0 {
		if r.failCreates > 0 {
			r.failCreates--
		}
		r.mu.Unlock()
		return errConnReset
	}
	r.mu.Unlock()
	return r.MemoryRepository.CreateSession(ctx, s)
}

func (r *flakyRepo) UpdateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	r.updates++
	if r.failUpdates != 0 {
		if r.failUpdates > 0 {
			r.failUpdates--
		}
		r.mu.Unlock()
		return errConnReset
	}
	r.mu.Unlock()
	return r.MemoryRepository.UpdateSession(ctx, s)
}

func (r *flakyRepo) setFailUpdates(n int) {
	r.mu.Lock()
	r.failUpdates = n
	r.mu.Unlock()
}

type fakeStream struct{ stops atomic.Int32 }

func (s *fakeStream) Stop() { s.stops.Add(1) }

type fakeEnv struct {
	mu         sync.Mutex
	fullscreen bool
	mediaErr   error
	stream     *fakeStream
	signals    chan integrity.Signal

	// gate, when set, holds RequestFullscreen until closed
	gate    chan struct{}
	entered chan struct{}
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{stream: &fakeStream{}, signals: make(chan integrity.Signal, 4)}
}

func (e *fakeEnv) RequestFullscreen(ctx context.Context) error {
	if e.gate != nil {
		close(e.entered)
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreen = true
	return nil
}

func (e *fakeEnv) ExitFullscreen(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fullscreen = false
	return nil
}

func (e *fakeEnv) AcquireMedia(ctx context.Context, c integrity.Constraints) (integrity.MediaStream, error) {
	if e.mediaErr != nil {
		return nil, e.mediaErr
	}
	return e.stream, nil
}

func (e *fakeEnv) Signals() <-chan integrity.Signal { return e.signals }

func (e *fakeEnv) inFullscreen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullscreen
}

func testQuestionSet(proctored bool) *models.QuestionSet {
	return &models.QuestionSet{
		ID:        "backend-intern",
		Title:     "Backend intern",
		Proctored: proctored,
		Communication: models.CommunicationSection{
			Prompts: []string{"Introduce yourself"},
		},
		Technical: models.TechnicalSection{
			Questions: []models.Question{{Prompt: "q", Options: []string{"a", "b"}}},
		},
		Coding: models.CodingSection{
			Tasks: []models.CodingTask{{Title: "sum", Kind: models.TaskProgram}},
		},
	}
}

type fixture struct {
	repo    *flakyRepo
	factory *fakeFactory
	deps    Deps
}

func newFixture() *fixture {
	repo := newFlakyRepo()
	factory := newFakeFactory()
	return &fixture{
		repo:    repo,
		factory: factory,
		deps: Deps{
			Factory:   factory,
			Gating:    DefaultGatingTable(),
			Persister: NewPersister(repo, 3, time.Millisecond),
		},
	}
}

func (f *fixture) controller(qs *models.QuestionSet, env integrity.Environment) *Controller {
	sc := &models.SessionContext{
		SessionID:   "session-1",
		Owner:       "participant-1",
		Credential:  "token",
		QuestionSet: qs,
		Proctored:   qs.Proctored,
	}
	return NewController(sc, env, f.deps)
}

// started returns a controller already on the dashboard
func (f *fixture) started(t *testing.T, qs *models.QuestionSet, env integrity.Environment) *Controller {
	t.Helper()
	c := f.controller(qs, env)
	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

// complete enters a stage and completes it with the given outcome
func complete(t *testing.T, c *Controller, name models.StageName, score float64, passed bool) models.SessionView {
	t.Helper()
	ctx := context.Background()
	if _, err := c.EnterStage(ctx, name); err != nil {
		t.Fatalf("EnterStage(%s): %v", name, err)
	}
	view, err := c.CompleteStage(ctx, name, score, passed)
	if err != nil {
		t.Fatalf("CompleteStage(%s): %v", name, err)
	}
	return view
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
