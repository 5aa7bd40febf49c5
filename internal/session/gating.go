package session

import "github.com/terra-clan/assessment-engine/internal/models"

// GatingTable decides which stages may be entered. It is the only place
// where stages are told apart by name.
type GatingTable struct {
	// CommunicationUnlockScore is the communication score that unlocks the technical stage
	CommunicationUnlockScore float64
}

// DefaultGatingTable unlocks technical at a communication score of 60
func DefaultGatingTable() GatingTable {
	return GatingTable{CommunicationUnlockScore: 60}
}

// Apply recomputes the derived unlock flags of a session from its results.
// Coding follows the technical pass flag, never its raw score.
func (g GatingTable) Apply(s *models.Session) {
	comm := s.Result(models.StageCommunication)
	s.TechnicalUnlocked = comm != nil && comm.Score >= g.CommunicationUnlockScore

	tech := s.Result(models.StageTechnical)
	s.CodingUnlocked = tech != nil && tech.Passed
}

// Unlocked reports whether a stage may be entered
func (g GatingTable) Unlocked(s *models.Session, name models.StageName) bool {
	if s.Status.IsTerminal() {
		return false
	}
	switch name {
	case models.StageCommunication:
		return true
	case models.StageTechnical:
		return s.TechnicalUnlocked
	case models.StageCoding:
		return s.CodingUnlocked
	}
	return false
}

// UnlockedStages returns the unlock flag of every stage
func (g GatingTable) UnlockedStages(s *models.Session) map[models.StageName]bool {
	out := make(map[models.StageName]bool, len(models.StageOrder))
	for _, name := range models.StageOrder {
		out[name] = g.Unlocked(s, name)
	}
	return out
}
