package ratelimit

import "time"

// Limit caps calls of one member to MaxRequests per Window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" toml:"max_requests"`
	Window      time.Duration `yaml:"window" toml:"window"`
}

// Enabled reports whether the limit restricts anything.
func (l *Limit) Enabled() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}

// Config maps member names to limits. The "*" entry applies to members
// without their own entry.
type Config map[string]*Limit

// HasLimits returns true if any member has a configured limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.Enabled() {
			return true
		}
	}
	return false
}

// For returns the limit that applies to a member, or nil.
func (c Config) For(member string) *Limit {
	if l := c[member]; l != nil {
		return l
	}
	return c["*"]
}
