package resilience

import "time"

// Breaker settings for recognizer calls. Calls sit on the frame path, so the
// breaker trips after a few failures and probes again soon.
const (
	DefaultThreshold         = 3
	DefaultResetTimeout      = 10 * time.Second
	DefaultHalfOpenSuccesses = 1
)

// Config holds circuit breaker settings. Zero fields take the defaults.
type Config struct {
	Threshold         int           // consecutive failures before opening
	ResetTimeout      time.Duration // time open before a probe is let through
	HalfOpenSuccesses int           // probe successes needed to close
}

// DetectorConfig returns the settings used for remote detection engines.
func DetectorConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
