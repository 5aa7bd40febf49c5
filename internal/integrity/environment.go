// Package integrity enforces the supervised environment of a proctored
// session: exclusive full-screen plus live camera and microphone capture.
package integrity

import "context"

// Signal is a change notification from the participant's environment
type Signal string

const (
	SignalHidden         Signal = "visibility_hidden"
	SignalFullscreenLost Signal = "fullscreen_exited"
	SignalChannelLost    Signal = "channel_lost"
)

// Termination reasons shown to the participant
const (
	ReasonHidden         = "Tab Switching / Minimized Window"
	ReasonFullscreenLost = "Exited Fullscreen Mode"
	ReasonChannelLost    = "Proctoring Channel Lost"
)

// Reason returns the disqualification reason for a signal
func (s Signal) Reason() string {
	switch s {
	case SignalHidden:
		return ReasonHidden
	case SignalFullscreenLost:
		return ReasonFullscreenLost
	case SignalChannelLost:
		return ReasonChannelLost
	}
	return ""
}

// Constraints selects the capture devices to acquire
type Constraints struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// MediaStream is a live capture that holds device locks until stopped
type MediaStream interface {
	Stop()
}

// Environment is the participant's device and display surface
type Environment interface {
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
	AcquireMedia(ctx context.Context, c Constraints) (MediaStream, error)
	// Signals is closed when the environment goes away
	Signals() <-chan Signal
}
