package config

import (
	"time"

	"playcount_snapshot/internal/retry"
)

// DefaultSheetsPolicy makes a single attempt per Sheets call. Store errors
// abort the run unless SHEETS_MAX_RETRIES asks for more.
var DefaultSheetsPolicy = retry.Policy{
	MaxRetries: 0,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
	Timeout:    30 * time.Second,
}

// NotificationPolicy is used for the ntfy run summary.
var NotificationPolicy = retry.Policy{
	MaxRetries: 2,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
	Timeout:    10 * time.Second,
}

func (c Config) SheetsPolicy() retry.Policy {
	p := DefaultSheetsPolicy
	p.MaxRetries = c.SheetsMaxRetries
	p.Timeout = c.SheetsTimeout
	return p
}
