package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jiuai233/StreamDeck/internal/policy"
)

// FastRetry is the default policy scaled down to milliseconds.
func FastRetry() policy.Retry {
	r := policy.DefaultRetry()
	r.SettleDelay = 5 * time.Millisecond
	r.BusyBackoff = 5 * time.Millisecond
	r.BlockedBackoff = 5 * time.Millisecond
	r.TimeoutBackoff = 5 * time.Millisecond
	r.ProbeTimeout = 150 * time.Millisecond
	r.LoadTimeout = 150 * time.Millisecond
	r.VerifyTimeout = 150 * time.Millisecond
	r.ReadTimeout = 150 * time.Millisecond
	r.StartupPause = 5 * time.Millisecond
	return r
}

// NewClassifier builds a classifier with the embedded default policy.
func NewClassifier(t *testing.T) *policy.Classifier {
	t.Helper()
	c, err := policy.NewClassifier(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return c
}
