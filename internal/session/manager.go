package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/assessment-engine/internal/integrity"
	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

// QuestionSets resolves the content of a session
type QuestionSets interface {
	Get(id string) *models.QuestionSet
	Pick() *models.QuestionSet
}

// Environments resolves the proctoring environment connected by a participant
type Environments interface {
	Environment(owner string) (integrity.Environment, bool)
}

// Participant is the authenticated caller starting a session
type Participant struct {
	ID         string
	Credential string
}

// Manager holds the live controllers and answers history queries
type Manager struct {
	mu       sync.RWMutex
	live     map[string]*Controller
	starting map[string]struct{}

	deps         Deps
	repo         storage.Repository
	questionSets QuestionSets
	environments Environments
}

// NewManager creates a session manager
func NewManager(deps Deps, repo storage.Repository, questionSets QuestionSets, environments Environments) *Manager {
	return &Manager{
		live:         make(map[string]*Controller),
		starting:     make(map[string]struct{}),
		deps:         deps,
		repo:         repo,
		questionSets: questionSets,
		environments: environments,
	}
}

// Start creates and starts a session for a participant. An empty
// questionSetID picks a random set.
func (m *Manager) Start(ctx context.Context, p Participant, questionSetID string) (models.SessionView, error) {
	var qs *models.QuestionSet
	if questionSetID == "" {
		qs = m.questionSets.Pick()
	} else {
		qs = m.questionSets.Get(questionSetID)
	}
	if qs == nil {
		return models.SessionView{}, ErrQuestionSetNotFound
	}

	if err := m.reserve(p.ID); err != nil {
		return models.SessionView{}, err
	}
	defer m.unreserve(p.ID)

	var env integrity.Environment
	if qs.Proctored && m.environments != nil {
		if e, ok := m.environments.Environment(p.ID); ok {
			env = e
		}
	}

	sc := &models.SessionContext{
		SessionID:   uuid.New().String(),
		Owner:       p.ID,
		Credential:  p.Credential,
		QuestionSet: qs,
		Proctored:   qs.Proctored,
	}

	ctrl := NewController(sc, env, m.deps)
	view, err := ctrl.Start(ctx)
	if err != nil {
		return view, err
	}

	m.mu.Lock()
	m.live[sc.SessionID] = ctrl
	m.mu.Unlock()

	return view, nil
}

// reserve claims the participant's start slot. It fails while another start
// is running or a live session is still in progress.
func (m *Manager) reserve(owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.starting[owner]; ok {
		return ErrSessionActive
	}
	for _, ctrl := range m.live {
		if ctrl.Owner() == owner && ctrl.State().InProgress() {
			return ErrSessionActive
		}
	}
	m.starting[owner] = struct{}{}
	return nil
}

func (m *Manager) unreserve(owner string) {
	m.mu.Lock()
	delete(m.starting, owner)
	m.mu.Unlock()
}

// Controller returns the live controller of a session owned by the participant
func (m *Manager) Controller(owner, id string) (*Controller, error) {
	m.mu.RLock()
	ctrl, ok := m.live[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if ctrl.Owner() != owner {
		return nil, ErrForbidden
	}
	return ctrl, nil
}

// View returns a session view from the live controller, the snapshot cache
// or the persisted record, in that order
func (m *Manager) View(ctx context.Context, owner, id string) (models.SessionView, error) {
	ctrl, err := m.Controller(owner, id)
	if err == nil {
		return ctrl.View(), nil
	}
	if errors.Is(err, ErrForbidden) {
		return models.SessionView{}, err
	}

	if m.deps.Snapshots != nil {
		view, err := m.deps.Snapshots.Load(ctx, id)
		if err != nil {
			slog.Debug("snapshot lookup failed", "session_id", id, "error", err)
		}
		if view != nil {
			if view.Owner != owner {
				return models.SessionView{}, ErrForbidden
			}
			return *view, nil
		}
	}

	record, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return models.SessionView{}, fmt.Errorf("failed to get session: %w", err)
	}
	if record == nil {
		return models.SessionView{}, ErrSessionNotFound
	}
	if record.Owner != owner {
		return models.SessionView{}, ErrForbidden
	}
	return models.ViewFromSession(record), nil
}

// History lists a participant's sessions, most recent first. Live sessions
// are reported from their controller.
func (m *Manager) History(ctx context.Context, owner string, limit, offset int) ([]models.SessionView, error) {
	records, err := m.repo.ListSessionsByOwner(ctx, owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	views := make([]models.SessionView, 0, len(records))
	for _, record := range records {
		if ctrl, err := m.Controller(owner, record.ID); err == nil {
			views = append(views, ctrl.View())
			continue
		}
		views = append(views, models.ViewFromSession(record))
	}
	return views, nil
}

// Exit leaves a session and drops its controller once it is back in the lobby
func (m *Manager) Exit(ctx context.Context, owner, id string, confirmed bool) (models.SessionView, error) {
	ctrl, err := m.Controller(owner, id)
	if err != nil {
		return models.SessionView{}, err
	}

	view, err := ctrl.Exit(ctx, confirmed)
	if err != nil {
		return view, err
	}

	m.remove(id)
	return view, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
}

// Live returns the ids of live controllers
func (m *Manager) Live() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reap releases controllers idle for longer than idle. Abandoned sessions
// are exited with confirmation so devices and full-screen are released.
// Finished sessions are dropped without touching their snapshot.
func (m *Manager) Reap(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	m.mu.RLock()
	var stale, finished []*Controller
	for _, ctrl := range m.live {
		switch state := ctrl.State(); {
		case state == StateSummary || state == StateDisqualified:
			finished = append(finished, ctrl)
		case ctrl.LastActivity().Before(cutoff):
			stale = append(stale, ctrl)
		}
	}
	m.mu.RUnlock()

	released := 0
	for _, ctrl := range finished {
		m.remove(ctrl.ID())
		released++
		slog.Debug("finished session dropped", "session_id", ctrl.ID())
	}

	for _, ctrl := range stale {
		if _, err := ctrl.Exit(ctx, true); err != nil {
			slog.Warn("failed to release idle session", "session_id", ctrl.ID(), "error", err)
			continue
		}
		m.remove(ctrl.ID())
		released++
		slog.Info("idle session released", "session_id", ctrl.ID(), "owner", ctrl.Owner())
	}
	return released
}

// Ping checks the persistence gateway
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases every live controller
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	live := m.live
	m.live = make(map[string]*Controller)
	m.mu.Unlock()

	for _, ctrl := range live {
		if _, err := ctrl.Exit(ctx, true); err != nil {
			slog.Warn("failed to release session on shutdown", "session_id", ctrl.ID(), "error", err)
		}
	}
}
