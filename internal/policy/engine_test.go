package policy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiuai233/StreamDeck/internal/domain"
)

type describedErr struct {
	f Failure
}

func (e describedErr) Error() string    { return e.f.Message }
func (e describedErr) Failure() Failure { return e.f }

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return c
}

func TestClassifierDefaultPolicy(t *testing.T) {
	c := newTestClassifier(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		failure Failure
		want    domain.FailureClass
	}{
		{"connection lost", Failure{Kind: domain.FailureKindConnection}, domain.FailureClassFatal},
		{"auth pending", Failure{Kind: domain.FailureKindAuthPending}, domain.FailureClassFatal},
		{"auth failed", Failure{Kind: domain.FailureKindAuthFailed}, domain.FailureClassFatal},
		{"canceled", Failure{Kind: domain.FailureKindCanceled}, domain.FailureClassFatal},
		{"busy", Failure{Kind: domain.FailureKindBusy}, domain.FailureClassRetry},
		{"busy exhausted", Failure{Kind: domain.FailureKindBusy, Exhausted: true}, domain.FailureClassSkip},
		{"timeout", Failure{Kind: domain.FailureKindTimeout}, domain.FailureClassRetry},
		{"timeout exhausted", Failure{Kind: domain.FailureKindTimeout, Exhausted: true}, domain.FailureClassSkip},
		{"blocked", Failure{Kind: domain.FailureKindBlocked}, domain.FailureClassNeedsHuman},
		{"blocked exhausted", Failure{Kind: domain.FailureKindBlocked, Exhausted: true}, domain.FailureClassNeedsHuman},
		{"remote cooldown", Failure{Kind: domain.FailureKindRemote, Message: "Model Load Cooldown active"}, domain.FailureClassRetry},
		{"remote already loading", Failure{Kind: domain.FailureKindRemote, Message: "already loading a model", Exhausted: true}, domain.FailureClassSkip},
		{"remote unknown", Failure{Kind: domain.FailureKindRemote, Message: "No model with this ID found."}, domain.FailureClassNeedsHuman},
		{"unknown", Failure{Kind: domain.FailureKindUnknown, Message: "boom"}, domain.FailureClassNeedsHuman},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := c.Evaluate(ctx, tt.failure)
			require.NoError(t, err)
			assert.Equal(t, tt.want, class)
		})
	}
}

func TestClassifyErrors(t *testing.T) {
	c := newTestClassifier(t)
	ctx := context.Background()

	assert.Equal(t, domain.FailureClass(""), c.Classify(ctx, nil))
	assert.Equal(t, domain.FailureClassFatal, c.Classify(ctx, context.Canceled))
	assert.Equal(t, domain.FailureClassFatal, c.Classify(ctx, fmt.Errorf("list models: %w", context.Canceled)))
	assert.Equal(t, domain.FailureClassRetry, c.Classify(ctx, context.DeadlineExceeded))
	assert.Equal(t, domain.FailureClassNeedsHuman, c.Classify(ctx, errors.New("something odd")))

	wrapped := fmt.Errorf("load: %w", describedErr{Failure{Kind: domain.FailureKindBusy, Exhausted: true}})
	assert.Equal(t, domain.FailureClassSkip, c.Classify(ctx, wrapped))
}

func TestClassifyIgnoresCanceledContext(t *testing.T) {
	c := newTestClassifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, domain.FailureClassRetry, c.Classify(ctx, describedErr{Failure{Kind: domain.FailureKindBusy}}))
}

func TestClassifyFallsBackOnBadPolicy(t *testing.T) {
	ctx := context.Background()
	c, err := NewClassifier(ctx, "package vts_failure\n\ndefault class = \"maybe\"\n")
	require.NoError(t, err)

	_, err = c.Evaluate(ctx, Failure{Kind: domain.FailureKindBusy})
	assert.Error(t, err)
	assert.Equal(t, domain.FailureClassNeedsHuman, c.Classify(ctx, describedErr{Failure{Kind: domain.FailureKindBusy}}))
}

func TestNewClassifierInvalidRego(t *testing.T) {
	_, err := NewClassifier(context.Background(), "package vts_failure\n\nclass = {")
	assert.Error(t, err)

	_, err = NewClassifierFromFile(context.Background(), "/does/not/exist.rego")
	assert.Error(t, err)
}

func TestNewClassifierFromFileEmptyPath(t *testing.T) {
	c, err := NewClassifierFromFile(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.FailureClassFatal, c.Classify(context.Background(), context.Canceled))
}
