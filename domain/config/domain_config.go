package config

import "time"

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Board constraints
	MaxFramesPerBoard      int
	MaxConnectionsPerBoard int
	DefaultBoardName       string

	// Frame constraints
	MinFrameDurationMs     int
	MaxFrameDurationMs     int
	DefaultFrameDurationMs int

	// Connection constraints
	AllowSelfConnections      bool
	AllowDuplicateConnections bool

	// Realtime timing windows
	CursorThrottle    time.Duration
	MovementThrottle  time.Duration
	MovementExpiry    time.Duration
	CursorExpiry      time.Duration
	PositionDebounce  time.Duration
	IdleTimeout       time.Duration
	SnapshotCacheTTL  time.Duration
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Board constraints
		MaxFramesPerBoard:      2000,
		MaxConnectionsPerBoard: 10000,
		DefaultBoardName:       "Untitled Board",

		// Frame constraints
		MinFrameDurationMs:     100,
		MaxFrameDurationMs:     60000,
		DefaultFrameDurationMs: 3000,

		// Connection constraints; cycles and self-loops are legal topology
		// and only matter to sequence derivation
		AllowSelfConnections:      true,
		AllowDuplicateConnections: false,

		// Realtime timing windows
		CursorThrottle:   50 * time.Millisecond,
		MovementThrottle: 33 * time.Millisecond,
		MovementExpiry:   150 * time.Millisecond,
		CursorExpiry:     3 * time.Second,
		PositionDebounce: 300 * time.Millisecond,
		IdleTimeout:      60 * time.Second,
		SnapshotCacheTTL: 5 * time.Minute,
	}
}

// Validate checks that the configuration is internally consistent
func (c *DomainConfig) Validate() bool {
	if c.MaxFramesPerBoard <= 0 || c.MaxConnectionsPerBoard <= 0 {
		return false
	}
	if c.MinFrameDurationMs < 0 || c.MaxFrameDurationMs < c.MinFrameDurationMs {
		return false
	}
	if c.DefaultFrameDurationMs < c.MinFrameDurationMs || c.DefaultFrameDurationMs > c.MaxFrameDurationMs {
		return false
	}
	if c.MovementThrottle <= 0 || c.CursorThrottle <= 0 {
		return false
	}
	if c.MovementExpiry <= 0 || c.PositionDebounce <= 0 {
		return false
	}
	return true
}
