package simulator

import "time"

// Default simulation sizing.
const (
	defaultEvents       = 5
	defaultJoiners      = 50
	defaultPhaseTimeout = 30 * time.Second
)

// Config sizes one simulation run.
type Config struct {
	// Events is the number of staked events, one creator each.
	Events int

	// Joiners is the number of simulated participants. Each joins one
	// event, checks in at its anchor, and the creator settles afterwards.
	Joiners int

	// PhaseTimeout bounds how long each phase may take to settle.
	PhaseTimeout time.Duration

	// Seed fixes the pseudo-random event assignment; zero derives one from
	// the clock.
	Seed int64
}

// NewConfig returns a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Events:       defaultEvents,
		Joiners:      defaultJoiners,
		PhaseTimeout: defaultPhaseTimeout,
	}
}
