package scheduler

import "time"

// Config controls the run loop. The billing knobs (sweep interval, reminder
// offsets) come from the hot-reloadable billing config instead.
type Config struct {
	JobTimeout time.Duration
	LockKey    string
}

func DefaultConfig() Config {
	return Config{
		JobTimeout: 30 * time.Second,
		LockKey:    "hostbill:scheduler",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockKey == "" {
		c.LockKey = defaults.LockKey
	}
	return c
}
