package resilience

import "time"

type Config struct {
	// MaxRetries is the number of attempts per Execute call, not the number
	// of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	// MaxDelay caps the exponential backoff. Zero means uncapped.
	MaxDelay time.Duration

	// FailureThreshold is the consecutive-failure count at which the breaker
	// opens. CoolDown is how long it stays open before the next Execute is
	// allowed through again.
	FailureThreshold int
	CoolDown         time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		BaseDelay:        200 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.MaxRetries <= 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = def.BaseDelay
	}
	if out.MaxDelay < 0 {
		out.MaxDelay = 0
	}
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.CoolDown <= 0 {
		out.CoolDown = def.CoolDown
	}
	return out
}
