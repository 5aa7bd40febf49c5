package api

import (
	"context"

	"github.com/terra-clan/assessment-engine/internal/auth"
	"github.com/terra-clan/assessment-engine/internal/session"
)

// ParticipantFromContext returns the authenticated participant of a request
func ParticipantFromContext(ctx context.Context) (session.Participant, bool) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return session.Participant{}, false
	}
	return session.Participant{
		ID:         identity.ParticipantID,
		Credential: identity.Credential,
	}, true
}
