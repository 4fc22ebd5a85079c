package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/jiuai233/StreamDeck/internal/domain"
)

// Retry holds every attempt count, delay and timeout used by the session
// client and the enumeration driver. Both layers read the same value.
type Retry struct {
	// MaxAttempts bounds model load attempts, counting the first one.
	MaxAttempts int `mapstructure:"max_attempts"`
	// ReadAttempts bounds info/hotkey reads after a successful load.
	ReadAttempts int `mapstructure:"read_attempts"`

	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	BusyBackoff    time.Duration `mapstructure:"busy_backoff"`
	BlockedBackoff time.Duration `mapstructure:"blocked_backoff"`
	TimeoutBackoff time.Duration `mapstructure:"timeout_backoff"`

	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	LoadTimeout   time.Duration `mapstructure:"load_timeout"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`

	// ProbeEvery triggers a liveness probe before every Nth model. 0 disables it.
	ProbeEvery   int           `mapstructure:"probe_every"`
	StartupPause time.Duration `mapstructure:"startup_pause"`
}

// DefaultRetry returns the timings that work against a local remote on a desktop.
func DefaultRetry() Retry {
	return Retry{
		MaxAttempts:    3,
		ReadAttempts:   1,
		SettleDelay:    3 * time.Second,
		BusyBackoff:    3 * time.Second,
		BlockedBackoff: 3 * time.Second,
		TimeoutBackoff: 3 * time.Second,
		ProbeTimeout:   3 * time.Second,
		LoadTimeout:    8 * time.Second,
		VerifyTimeout:  2 * time.Second,
		ReadTimeout:    5 * time.Second,
		ProbeEvery:     5,
		StartupPause:   3 * time.Second,
	}
}

// Validate rejects values that would make the client hang or never try.
func (r Retry) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.ReadAttempts < 1 {
		return fmt.Errorf("read_attempts must be at least 1, got %d", r.ReadAttempts)
	}
	if r.ProbeEvery < 0 {
		return fmt.Errorf("probe_every must not be negative, got %d", r.ProbeEvery)
	}
	timeouts := map[string]time.Duration{
		"probe_timeout":  r.ProbeTimeout,
		"load_timeout":   r.LoadTimeout,
		"verify_timeout": r.VerifyTimeout,
		"read_timeout":   r.ReadTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// BackoffFor returns the pause before retrying after a failure of the given kind.
// A blocked remote gets its own delay so an operator has time to dismiss a dialog.
func (r Retry) BackoffFor(kind domain.FailureKind) time.Duration {
	switch kind {
	case domain.FailureKindBlocked:
		return r.BlockedBackoff
	case domain.FailureKindTimeout:
		return r.TimeoutBackoff
	default:
		return r.BusyBackoff
	}
}

// ShouldProbe reports whether a periodic liveness probe is due before the model at idx.
func (r Retry) ShouldProbe(idx int) bool {
	return r.ProbeEvery > 0 && idx > 0 && idx%r.ProbeEvery == 0
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
