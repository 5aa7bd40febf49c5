// Package health tracks the readiness of the service's backing dependencies.
package health

import (
	"context"
)

// Probe checks one dependency
type Probe interface {
	// Name identifies the dependency in readiness reports
	Name() string

	// Check returns nil when the dependency is usable
	Check(ctx context.Context) error
}

// BaseProbe provides the name of a probe
type BaseProbe struct {
	name string
}

// Name returns the probe name
func (p *BaseProbe) Name() string {
	return p.name
}

// Pinger is anything with a connectivity check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger, such as the execution client, to a Probe
type PingProbe struct {
	BaseProbe
	target Pinger
}

// NewPingProbe creates a probe around a Pinger
func NewPingProbe(name string, target Pinger) *PingProbe {
	return &PingProbe{BaseProbe: BaseProbe{name: name}, target: target}
}

// Check pings the target
func (p *PingProbe) Check(ctx context.Context) error {
	return p.target.Ping(ctx)
}
