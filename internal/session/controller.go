// Package session owns the assessment state machine: stage sequence, unlock
// gating, score aggregation, disqualification and persistence.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/assessment-engine/internal/failure"
	"github.com/terra-clan/assessment-engine/internal/integrity"
	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/stages"
)

// Common errors
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrQuestionSetNotFound  = errors.New("question set not found")
	ErrForbidden            = errors.New("session belongs to another participant")
	ErrSessionActive        = errors.New("participant already has an assessment in progress")
	ErrStageLocked          = errors.New("stage is locked")
	ErrStageCompleted       = errors.New("stage already completed")
	ErrStageNotActive       = errors.New("stage is not active")
	ErrInvalidTransition    = errors.New("operation not allowed in the current state")
	ErrStaleResponse        = errors.New("response belongs to a stage that is no longer active")
	ErrConfirmationRequired = errors.New("leaving a proctored session requires confirmation")
)

// State is the controller's position in the assessment flow
type State string

const (
	StateLobby         State = "lobby"
	StateDashboard     State = "dashboard"
	StateCommunication State = "communication"
	StateTechnical     State = "technical"
	StateCoding        State = "coding"
	StateSummary       State = "summary"
	StateDisqualified  State = "disqualified"
)

// stageStates maps each stage to the state that runs it
var stageStates = map[models.StageName]State{
	models.StageCommunication: StateCommunication,
	models.StageTechnical:     StateTechnical,
	models.StageCoding:        StateCoding,
}

// InStage returns true while a stage is running
func (s State) InStage() bool {
	return s == StateCommunication || s == StateTechnical || s == StateCoding
}

// InProgress returns true for the dashboard and every stage
func (s State) InProgress() bool {
	return s == StateDashboard || s.InStage()
}

// Tag identifies the stage instance a request was issued for
type Tag struct {
	SessionID string
	Stage     models.StageName
	Epoch     uint64
}

// StageFactory creates stage modules bound to a session
type StageFactory interface {
	New(name models.StageName, sc *models.SessionContext) (stages.Stage, error)
}

// SnapshotStore caches dashboard views for fast reads
type SnapshotStore interface {
	Save(ctx context.Context, view models.SessionView) error
	Load(ctx context.Context, id string) (*models.SessionView, error)
	Delete(ctx context.Context, id string) error
}

// Deps are the collaborators shared by every controller
type Deps struct {
	Factory   StageFactory
	Gating    GatingTable
	Persister *Persister
	Snapshots SnapshotStore // optional
}

// Controller drives one session. All mutation goes through its methods,
// which are serialized by mu; remote stage calls run outside the lock and
// are matched back by Tag.
type Controller struct {
	mu sync.Mutex

	sc   *models.SessionContext
	deps Deps
	env  integrity.Environment

	state    State
	record   *models.Session
	monitor  *integrity.Monitor
	epoch    uint64
	active   stages.Stage
	stage    models.StageName
	timer    *time.Timer
	deadline *time.Time

	lastActivity time.Time
}

// NewController creates a controller in the lobby. env may be nil for
// sessions that are not proctored.
func NewController(sc *models.SessionContext, env integrity.Environment, deps Deps) *Controller {
	return &Controller{
		sc:           sc,
		deps:         deps,
		env:          env,
		state:        StateLobby,
		lastActivity: time.Now(),
	}
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.sc.SessionID
}

// Owner returns the participant owning the session
func (c *Controller) Owner() string {
	return c.sc.Owner
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastActivity returns when the participant last acted on the session
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Monitor returns the integrity monitor, nil when not proctored
func (c *Controller) Monitor() *integrity.Monitor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitor
}

// Start creates the session. Proctored sessions arm the integrity monitor
// first; if arming fails no record is created and the controller stays in
// the lobby.
func (c *Controller) Start(ctx context.Context) (models.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateLobby || c.record != nil {
		return c.viewLocked(), ErrInvalidTransition
	}

	var monitor *integrity.Monitor
	if c.sc.Proctored {
		if c.env == nil {
			return c.viewLocked(), failure.New(failure.KindPermissionDenied,
				"This assessment is proctored: connect the proctoring channel and allow fullscreen, camera and microphone")
		}
		monitor = integrity.NewMonitor(c.env, c.onIntegrityBreach)
		if err := monitor.Arm(ctx); err != nil {
			slog.Info("session start aborted", "session_id", c.sc.SessionID, "error", err)
			return c.viewLocked(), err
		}
	}

	now := time.Now()
	record := &models.Session{
		ID:      c.sc.SessionID,
		Owner:   c.sc.Owner,
		Status:  models.SessionInProgress,
		Results: make(map[models.StageName]*models.StageResult),
		Metadata: models.SessionMetadata{
			QuestionSetID: c.sc.QuestionSet.ID,
			Proctored:     c.sc.Proctored,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.deps.Gating.Apply(record)

	if err := c.deps.Persister.Create(ctx, record.Clone()); err != nil {
		if monitor != nil {
			monitor.Disarm()
		}
		return c.viewLocked(), err
	}

	c.record = record
	c.monitor = monitor
	c.state = StateDashboard
	c.lastActivity = now

	slog.Info("session started",
		"session_id", c.sc.SessionID,
		"owner", c.sc.Owner,
		"question_set", c.sc.QuestionSet.ID,
		"proctored", c.sc.Proctored,
	)

	c.saveSnapshotLocked(ctx)
	return c.viewLocked(), nil
}

// EnterStage starts a stage from the dashboard. A locked or already
// completed stage is rejected without any state change.
func (c *Controller) EnterStage(ctx context.Context, name models.StageName) (models.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.integrityErrLocked(); err != nil {
		return c.viewLocked(), err
	}
	if c.state != StateDashboard {
		return c.viewLocked(), ErrInvalidTransition
	}
	if c.record.Result(name) != nil {
		return c.viewLocked(), ErrStageCompleted
	}
	if !c.deps.Gating.Unlocked(c.record, name) {
		return c.viewLocked(), fmt.Errorf("%w: %s", ErrStageLocked, name)
	}

	stage, err := c.deps.Factory.New(name, c.sc)
	if err != nil {
		return c.viewLocked(), fmt.Errorf("failed to create stage: %w", err)
	}

	c.epoch++
	c.active = stage
	c.stage = name
	c.state = stageStates[name]
	c.lastActivity = time.Now()

	if limit := c.sc.QuestionSet.TimeLimit(name); limit > 0 {
		deadline := time.Now().Add(limit)
		c.deadline = &deadline
		tag := c.tagLocked()
		c.timer = time.AfterFunc(limit, func() {
			c.expire(tag)
		})
	}

	slog.Info("stage entered", "session_id", c.sc.SessionID, "stage", name)

	c.saveSnapshotLocked(ctx)
	return c.viewLocked(), nil
}

// Submit hands the final payload to the active stage and completes it with
// the outcome. Stage errors leave the stage running so the participant can
// retry. A response arriving after the stage ended is dropped.
func (c *Controller) Submit(ctx context.Context, name models.StageName, payload json.RawMessage) (models.SessionView, stages.Outcome, error) {
	stage, tag, err := c.acquire(name)
	if err != nil {
		return c.View(), stages.Outcome{}, err
	}

	outcome, runErr := stage.Run(ctx, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(tag) {
		slog.Debug("dropping stale stage response", "session_id", tag.SessionID, "stage", tag.Stage, "epoch", tag.Epoch)
		if err := c.integrityErrLocked(); err != nil {
			return c.viewLocked(), stages.Outcome{}, err
		}
		return c.viewLocked(), stages.Outcome{}, ErrStaleResponse
	}
	if runErr != nil {
		return c.viewLocked(), stages.Outcome{}, runErr
	}

	view, err := c.completeLocked(ctx, name, outcome)
	return view, outcome, err
}

// Interact forwards an ungraded run to the active stage
func (c *Controller) Interact(ctx context.Context, name models.StageName, payload json.RawMessage) (any, error) {
	stage, tag, err := c.acquire(name)
	if err != nil {
		return nil, err
	}

	interactive, ok := stage.(stages.Interactive)
	if !ok {
		return nil, stages.ErrNotInteractive
	}

	result, err := interactive.Interact(ctx, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(tag) {
		if err := c.integrityErrLocked(); err != nil {
			return nil, err
		}
		return nil, ErrStaleResponse
	}
	return result, err
}

// CompleteStage records a score for the active stage directly
func (c *Controller) CompleteStage(ctx context.Context, name models.StageName, score float64, passed bool) (models.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stageStates[name] || c.stage != name {
		return c.viewLocked(), fmt.Errorf("%w: %s", ErrStageNotActive, name)
	}
	return c.completeLocked(ctx, name, stages.Outcome{Score: score, Passed: passed})
}

// acquire returns the active stage and its tag
func (c *Controller) acquire(name models.StageName) (stages.Stage, Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.integrityErrLocked(); err != nil {
		return nil, Tag{}, err
	}
	if c.active == nil || c.stage != name {
		return nil, Tag{}, fmt.Errorf("%w: %s", ErrStageNotActive, name)
	}
	c.lastActivity = time.Now()
	return c.active, c.tagLocked(), nil
}

// integrityErrLocked reports the disqualification to callers still acting
// on a session that was terminated under them.
func (c *Controller) integrityErrLocked() error {
	if c.state != StateDisqualified {
		return nil
	}
	return failure.New(failure.KindIntegrityViolation, c.record.Metadata.DisqualificationReason)
}

func (c *Controller) tagLocked() Tag {
	return Tag{SessionID: c.sc.SessionID, Stage: c.stage, Epoch: c.epoch}
}

func (c *Controller) currentLocked(tag Tag) bool {
	return c.active != nil && tag == c.tagLocked()
}

// completeLocked records the outcome, re-applies gating and persists. A
// persistence failure is returned but local state stays advanced.
func (c *Controller) completeLocked(ctx context.Context, name models.StageName, outcome stages.Outcome) (models.SessionView, error) {
	c.stopStageLocked()

	now := time.Now()
	c.record.Results[name] = &models.StageResult{
		Score:       outcome.Score,
		Passed:      outcome.Passed,
		CompletedAt: &now,
	}
	c.record.Submissions = append(c.record.Submissions, outcome.Submissions...)
	c.deps.Gating.Apply(c.record)
	c.record.UpdatedAt = now
	c.lastActivity = now

	if name == models.FinalStage {
		c.state = StateSummary
		c.record.Status = models.SessionCompleted
		c.record.CompletedAt = &now
		if c.monitor != nil {
			c.monitor.Disarm()
		}
	} else {
		c.state = StateDashboard
	}

	slog.Info("stage completed",
		"session_id", c.sc.SessionID,
		"stage", name,
		"score", outcome.Score,
		"passed", outcome.Passed,
		"state", c.state,
	)

	err := c.deps.Persister.Update(ctx, c.record.Clone())
	c.saveSnapshotLocked(ctx)
	return c.viewLocked(), err
}

// expire completes a stage whose countdown ran out with a failing score
func (c *Controller) expire(tag Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(tag) {
		return
	}

	slog.Info("stage time limit reached", "session_id", tag.SessionID, "stage", tag.Stage)
	if _, err := c.completeLocked(context.Background(), tag.Stage, stages.Outcome{}); err != nil {
		slog.Error("failed to persist expired stage", "session_id", tag.SessionID, "stage", tag.Stage, "error", err)
	}
}

// stopStageLocked ends the active stage: cancels its countdown and any
// in-flight call, and invalidates outstanding tags
func (c *Controller) stopStageLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
	c.stage = ""
	c.deadline = nil
	c.epoch++
}

// Disqualify forces the session into the disqualified state. Only allowed
// from the dashboard or a running stage. Every recorded score is zeroed.
func (c *Controller) Disqualify(ctx context.Context, reason string) (models.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.InProgress() {
		return c.viewLocked(), ErrInvalidTransition
	}

	c.stopStageLocked()

	now := time.Now()
	for _, res := range c.record.Results {
		res.Score = 0
		res.Passed = false
	}
	for i := range c.record.Submissions {
		c.record.Submissions[i].Score = 0
	}
	c.record.Status = models.SessionDisqualified
	c.record.Metadata.DisqualificationReason = reason
	c.record.UpdatedAt = now
	c.deps.Gating.Apply(c.record)
	c.state = StateDisqualified

	if c.monitor != nil {
		c.monitor.Disarm()
	}

	slog.Warn("session disqualified", "session_id", c.sc.SessionID, "owner", c.sc.Owner, "reason", reason)

	err := c.deps.Persister.Update(ctx, c.record.Clone())
	c.saveSnapshotLocked(ctx)
	return c.viewLocked(), err
}

// onIntegrityBreach is the monitor's termination callback
func (c *Controller) onIntegrityBreach(reason string) {
	if _, err := c.Disqualify(context.Background(), reason); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			slog.Debug("integrity breach after session left progress", "session_id", c.sc.SessionID)
			return
		}
		slog.Error("failed to record disqualification", "session_id", c.sc.SessionID, "error", err)
	}
}

// Exit returns to the lobby. While the monitor is armed the participant
// must confirm, since the same release as a disqualification happens. No
// score is zeroed and nothing is persisted.
func (c *Controller) Exit(ctx context.Context, confirmed bool) (models.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateLobby {
		return c.viewLocked(), nil
	}
	if c.monitor != nil && c.monitor.Armed() && !confirmed {
		return c.viewLocked(), ErrConfirmationRequired
	}

	if c.state.InStage() {
		c.stopStageLocked()
	}
	if c.monitor != nil {
		c.monitor.Disarm()
	}
	c.state = StateLobby

	slog.Info("session exited", "session_id", c.sc.SessionID, "confirmed", confirmed)

	if c.deps.Snapshots != nil {
		if err := c.deps.Snapshots.Delete(ctx, c.sc.SessionID); err != nil {
			slog.Debug("failed to drop session snapshot", "session_id", c.sc.SessionID, "error", err)
		}
	}
	return c.viewLocked(), nil
}

// View returns the dashboard projection
func (c *Controller) View() models.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() models.SessionView {
	view := models.SessionView{
		SessionID:     c.sc.SessionID,
		Owner:         c.sc.Owner,
		State:         string(c.state),
		Status:        models.SessionInProgress,
		Proctored:     c.sc.Proctored,
		Results:       map[models.StageName]*models.StageResult{},
		Unlocked:      map[models.StageName]bool{},
		ActiveStage:   c.stage,
		StageDeadline: c.deadline,
	}
	if c.sc.QuestionSet != nil {
		view.QuestionSetID = c.sc.QuestionSet.ID
	}
	if c.record == nil {
		return view
	}

	view.Status = c.record.Status
	view.DisqualificationReason = c.record.Metadata.DisqualificationReason
	view.UpdatedAt = c.record.UpdatedAt
	for name, res := range c.record.Results {
		r := *res
		view.Results[name] = &r
	}
	view.Unlocked = c.deps.Gating.UnlockedStages(c.record)
	return view
}

func (c *Controller) saveSnapshotLocked(ctx context.Context) {
	if c.deps.Snapshots == nil {
		return
	}
	if err := c.deps.Snapshots.Save(ctx, c.viewLocked()); err != nil {
		slog.Debug("failed to save session snapshot", "session_id", c.sc.SessionID, "error", err)
	}
}
