package vts

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/policy"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

// stageBackOff waits according to the kind of the last failed attempt.
type stageBackOff struct {
	retry policy.Retry
	last  domain.FailureKind
}

func (b *stageBackOff) NextBackOff() time.Duration { return b.retry.BackoffFor(b.last) }

func (b *stageBackOff) Reset() { b.last = "" }

// LoadModel switches the remote to modelID and returns once the remote
// answers again after the switch. It refuses to start when the liveness
// probe fails, retries cooldowns, timeouts and post-load verification
// failures up to Retry.MaxAttempts, and reports the last obstacle in a
// *LoadError when it gives up.
func (c *Client) LoadModel(ctx context.Context, modelID string) error {
	r := c.cfg.Retry
	log := c.log.WithField("model_id", modelID)

	if !c.ProbeLiveness(ctx) {
		return &RemoteBlockedError{Reason: "no answer to the state request before loading"}
	}

	sb := &stageBackOff{retry: r}
	attempts := 0

	operation := func() error {
		attempts++
		kind, err := c.loadOnce(ctx, modelID)
		if err == nil {
			return nil
		}
		sb.last = kind

		if kind == domain.FailureKindTimeout && attempts < r.MaxAttempts && !c.ProbeLiveness(ctx) {
			return backoff.Permanent(&RemoteBlockedError{Reason: "no answer after a load timeout", Err: err})
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"of":      r.MaxAttempts,
			"wait":    wait,
		}).Warn("Model load failed, retrying")
	}

	// WithMaxRetries treats 0 as unlimited
	var b backoff.BackOff = &backoff.StopBackOff{}
	if r.MaxAttempts > 1 {
		b = backoff.WithMaxRetries(sb, uint64(r.MaxAttempts-1))
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if err == nil {
		log.WithField("attempts", attempts).Debug("Model loaded")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	loadErr := &LoadError{ModelID: modelID, Reason: sb.last, Attempts: attempts, Err: err}
	var blocked *RemoteBlockedError
	if errors.As(err, &blocked) {
		loadErr.Reason = domain.FailureKindBlocked
	}
	loadErr.Exhausted = attempts >= r.MaxAttempts && isRetryKind(loadErr.Reason)
	return loadErr
}

// loadOnce runs one REQUESTING -> settle -> VERIFYING pass. Errors that must
// not be retried are wrapped with backoff.Permanent.
func (c *Client) loadOnce(ctx context.Context, modelID string) (domain.FailureKind, error) {
	r := c.cfg.Retry

	lctx, cancel := context.WithTimeout(ctx, r.LoadTimeout)
	_, err := c.Request(lctx, protocol.TypeModelLoad, map[string]any{"modelID": modelID})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return domain.FailureKindCanceled, backoff.Permanent(ctx.Err())
		}
		f := policy.Describe(err)
		if c.classifier.Classify(ctx, err) != domain.FailureClassRetry {
			return f.Kind, backoff.Permanent(err)
		}
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			return domain.FailureKindBusy, &RemoteBusyError{Message: remoteErr.Message, Err: err}
		}
		return f.Kind, err
	}

	if err := policy.Sleep(ctx, r.SettleDelay); err != nil {
		return domain.FailureKindCanceled, backoff.Permanent(err)
	}

	vctx, cancel := context.WithTimeout(ctx, r.VerifyTimeout)
	_, err = c.CurrentModelInfo(vctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return domain.FailureKindCanceled, backoff.Permanent(ctx.Err())
		}
		return domain.FailureKindBlocked, &RemoteBlockedError{Reason: "no model info after load", Err: err}
	}
	return "", nil
}

func isRetryKind(kind domain.FailureKind) bool {
	switch kind {
	case domain.FailureKindBusy, domain.FailureKindTimeout, domain.FailureKindBlocked:
		return true
	}
	return false
}
