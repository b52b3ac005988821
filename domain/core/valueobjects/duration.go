package valueobjects

import (
	"fmt"
	"time"

	"storyboard/domain/config"
)

// FrameDuration is a value object for how long a frame plays, in milliseconds
type FrameDuration struct {
	ms int
}

// NewFrameDuration creates a duration with bounds validation
func NewFrameDuration(ms int) (FrameDuration, error) {
	return NewFrameDurationWithConfig(ms, config.DefaultDomainConfig())
}

// NewFrameDurationWithConfig creates a duration validated against configuration
func NewFrameDurationWithConfig(ms int, cfg *config.DomainConfig) (FrameDuration, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if ms < cfg.MinFrameDurationMs {
		return FrameDuration{}, fmt.Errorf("duration below minimum of %dms", cfg.MinFrameDurationMs)
	}
	if ms > cfg.MaxFrameDurationMs {
		return FrameDuration{}, fmt.Errorf("duration exceeds maximum of %dms", cfg.MaxFrameDurationMs)
	}

	return FrameDuration{ms: ms}, nil
}

// DefaultFrameDuration returns the configured default duration
func DefaultFrameDuration() FrameDuration {
	return FrameDuration{ms: config.DefaultDomainConfig().DefaultFrameDurationMs}
}

// Milliseconds returns the duration in milliseconds
func (d FrameDuration) Milliseconds() int {
	return d.ms
}

// AsDuration returns the value as a time.Duration
func (d FrameDuration) AsDuration() time.Duration {
	return time.Duration(d.ms) * time.Millisecond
}

// Equals checks if two durations are equal
func (d FrameDuration) Equals(other FrameDuration) bool {
	return d.ms == other.ms
}

// IsZero checks if the duration is unset
func (d FrameDuration) IsZero() bool {
	return d.ms == 0
}
