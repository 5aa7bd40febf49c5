package models

import (
	"time"
)

// SessionStatus represents the lifecycle status of an assessment session
type SessionStatus string

const (
	SessionInProgress   SessionStatus = "in_progress"  // Started, stages may still run
	SessionCompleted    SessionStatus = "completed"    // Final stage finished
	SessionDisqualified SessionStatus = "disqualified" // Integrity breach, scores zeroed
)

// IsTerminal returns true if no further stage may run for the session
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionDisqualified
}

// StageName identifies one independently scored phase of an assessment
type StageName string

const (
	StageCommunication StageName = "communication"
	StageTechnical     StageName = "technical"
	StageCoding        StageName = "coding"
)

// StageOrder is the fixed order stages are presented on the dashboard
var StageOrder = []StageName{StageCommunication, StageTechnical, StageCoding}

// FinalStage is the stage whose completion moves the session to the summary
const FinalStage = StageCoding

// ParseStageName validates a stage name coming from a request path
func ParseStageName(raw string) (StageName, bool) {
	for _, name := range StageOrder {
		if string(name) == raw {
			return name, true
		}
	}
	return "", false
}

// StageResult is the recorded outcome of a completed stage
type StageResult struct {
	Score       float64    `json:"score"`
	Passed      bool       `json:"passed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Submission is the final code for one coding task and the score it earned
type Submission struct {
	TaskIndex int     `json:"task_index"`
	Language  string  `json:"language"`
	Code      string  `json:"code"`
	Score     float64 `json:"score"`
}

// SessionMetadata holds non-score session details
type SessionMetadata struct {
	QuestionSetID          string `json:"question_set_id"`
	Proctored              bool   `json:"proctored"`
	DisqualificationReason string `json:"disqualification_reason,omitempty"`
}

// Session is one attempt at the full multi-stage assessment.
// This is the record shape written through the persistence gateway.
type Session struct {
	ID                string                     `json:"id"`
	Owner             string                     `json:"owner"`
	Status            SessionStatus              `json:"status"`
	Results           map[StageName]*StageResult `json:"results"`
	TechnicalUnlocked bool                       `json:"technical_unlocked"`
	CodingUnlocked    bool                       `json:"coding_unlocked"`
	Submissions       []Submission               `json:"submissions,omitempty"`
	Metadata          SessionMetadata            `json:"metadata"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	CompletedAt       *time.Time                 `json:"completed_at,omitempty"`
}

// Result returns the recorded result for a stage, or nil if it has not completed
func (s *Session) Result(name StageName) *StageResult {
	if s.Results == nil {
		return nil
	}
	return s.Results[name]
}

// Clone returns a deep copy safe to hand to another goroutine
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Results = make(map[StageName]*StageResult, len(s.Results))
	for name, res := range s.Results {
		r := *res
		out.Results[name] = &r
	}
	if s.Submissions != nil {
		out.Submissions = append([]Submission(nil), s.Submissions...)
	}
	return &out
}

// SessionContext carries everything a stage module or the integrity monitor
// needs about the session it serves. It is owned by the controller and
// injected explicitly instead of being read from shared state.
type SessionContext struct {
	SessionID   string
	Owner       string
	Credential  string // bearer token forwarded to backend analysis calls
	QuestionSet *QuestionSet
	Proctored   bool
}

// SessionView is the dashboard projection of a session
type SessionView struct {
	SessionID              string                     `json:"session_id"`
	Owner                  string                     `json:"owner"`
	State                  string                     `json:"state"`
	Status                 SessionStatus              `json:"status"`
	QuestionSetID          string                     `json:"question_set_id"`
	Proctored              bool                       `json:"proctored"`
	Results                map[StageName]*StageResult `json:"results"`
	Unlocked               map[StageName]bool         `json:"unlocked"`
	ActiveStage            StageName                  `json:"active_stage,omitempty"`
	StageDeadline          *time.Time                 `json:"stage_deadline,omitempty"`
	DisqualificationReason string                     `json:"disqualification_reason,omitempty"`
	UpdatedAt              time.Time                  `json:"updated_at"`
}

// ViewFromSession builds a dashboard view from a persisted record, used when
// no live controller holds the session
func ViewFromSession(s *Session) SessionView {
	state := "dashboard"
	switch s.Status {
	case SessionCompleted:
		state = "summary"
	case SessionDisqualified:
		state = "disqualified"
	}

	results := make(map[StageName]*StageResult, len(s.Results))
	for name, res := range s.Results {
		r := *res
		results[name] = &r
	}

	return SessionView{
		SessionID:     s.ID,
		Owner:         s.Owner,
		State:         state,
		Status:        s.Status,
		QuestionSetID: s.Metadata.QuestionSetID,
		Proctored:     s.Metadata.Proctored,
		Results:       results,
		Unlocked: map[StageName]bool{
			StageCommunication: !s.Status.IsTerminal(),
			StageTechnical:     s.TechnicalUnlocked,
			StageCoding:        s.CodingUnlocked,
		},
		DisqualificationReason: s.Metadata.DisqualificationReason,
		UpdatedAt:              s.UpdatedAt,
	}
}

// StartRequest represents a request to start an assessment session
type StartRequest struct {
	QuestionSetID string `json:"question_set_id"`
}

// ExitRequest represents a request to leave a running session
type ExitRequest struct {
	Confirm bool `json:"confirm"`
}
