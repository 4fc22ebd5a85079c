// Package driver walks the remote's model list and collects one result entry
// per model, recovering from per-model failures.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/policy"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

// Session is the part of the VTube Studio client the driver uses.
// *vts.Client implements it.
type Session interface {
	Endpoint() string
	Authenticate(ctx context.Context) error
	ListModels(ctx context.Context) ([]protocol.Model, error)
	LoadModel(ctx context.Context, modelID string) error
	CurrentModelInfo(ctx context.Context) (*protocol.CurrentModelData, error)
	CurrentHotkeys(ctx context.Context) ([]protocol.Hotkey, error)
	ProbeLiveness(ctx context.Context) bool
	Close() error
}

// IconResolver turns a model file hint and display name into an icon reference.
type IconResolver interface {
	Resolve(fileHint, name string) string
}

// ErrModelMismatch means the remote reports a different model than the one just loaded.
var ErrModelMismatch = errors.New("remote reports a different model than requested")

// ReadError is returned when the info or hotkey read after a load kept failing.
type ReadError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Failure reports the underlying failure with its retries spent.
func (e *ReadError) Failure() policy.Failure {
	f := policy.Describe(e.Err)
	f.Exhausted = true
	return f
}

// Options configures a Driver.
type Options struct {
	Retry policy.Retry
	// Operator acknowledges pauses. Nil runs non-interactively.
	Operator    Operator
	Icons       IconResolver
	DefaultIcon string
}

// Driver runs one enumeration pass over a session it owns.
type Driver struct {
	session     Session
	classifier  *policy.Classifier
	retry       policy.Retry
	operator    Operator
	icons       IconResolver
	defaultIcon string
	log         *logrus.Entry
}

// New creates a driver. The session is closed when Run returns.
func New(session Session, classifier *policy.Classifier, opts Options) *Driver {
	defaultIcon := opts.DefaultIcon
	if defaultIcon == "" {
		defaultIcon = domain.DefaultIcon
	}
	return &Driver{
		session:     session,
		classifier:  classifier,
		retry:       opts.Retry,
		operator:    opts.Operator,
		icons:       opts.Icons,
		defaultIcon: defaultIcon,
		log:         logrus.WithField("component", "driver"),
	}
}

// Interactive reports whether pauses wait for an operator.
func (d *Driver) Interactive() bool {
	return d.operator != nil
}

// Run authenticates, lists models (restricted to filter when it is not
// nil) and processes them in the remote's order. Only fatal failures end
// the run early; every other failure leaves a placeholder entry.
func (d *Driver) Run(ctx context.Context, filter []string) (*domain.RunResult, error) {
	defer func() {
		if err := d.session.Close(); err != nil {
			d.log.WithError(err).Debug("Closing session")
		}
	}()

	result := &domain.RunResult{
		RunID:     uuid.NewString(),
		Endpoint:  d.session.Endpoint(),
		StartedAt: time.Now(),
		Entries:   []domain.Entry{},
	}
	log := d.log.WithField("run_id", result.RunID)

	if err := d.session.Authenticate(ctx); err != nil {
		if policy.Describe(err).Kind == domain.FailureKindAuthPending {
			log.Warn("An authentication popup is already open in VTube Studio. Approve it, then run again")
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if !d.session.ProbeLiveness(ctx) {
		if err := d.pause(ctx, newPause(domain.PauseReasonStartup, nil, nil)); err != nil {
			return nil, err
		}
		if !d.Interactive() {
			if err := policy.Sleep(ctx, d.retry.StartupPause); err != nil {
				return nil, err
			}
		}
	}

	all, err := d.session.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	models := d.filter(all, filter)
	log.WithFields(logrus.Fields{
		"available": len(all),
		"selected":  len(models),
	}).Info("Starting model enumeration")

	for i := range models {
		m := models[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if d.retry.ShouldProbe(i) && !d.session.ProbeLiveness(ctx) {
			if err := d.pause(ctx, newPause(domain.PauseReasonPeriodic, &m, nil)); err != nil {
				return nil, err
			}
		}

		log.WithFields(logrus.Fields{
			"model":    m.ModelName,
			"model_id": m.ModelID,
			"index":    i + 1,
			"total":    len(models),
		}).Info("Processing model")

		entry, err := d.process(ctx, m)
		if err != nil {
			return nil, err
		}
		result.Add(entry)
	}

	result.FinishedAt = time.Now()
	log.WithFields(logrus.Fields{
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"duration":  result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	}).Info("Model enumeration finished")
	return result, nil
}

// filter keeps the models named by ids in the remote's order. A nil ids
// keeps every model; an empty one keeps none.
func (d *Driver) filter(models []protocol.Model, ids []string) []protocol.Model {
	if ids == nil {
		return models
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	out := make([]protocol.Model, 0, len(ids))
	for _, m := range models {
		if wanted[m.ModelID] {
			out = append(out, m)
			delete(wanted, m.ModelID)
		}
	}
	for id := range wanted {
		d.log.WithField("model_id", id).Warn("Selected model is not known to VTube Studio")
	}
	return out
}

// process loads one model and reads its info and hotkeys. A non-nil error
// is fatal to the run.
func (d *Driver) process(ctx context.Context, m protocol.Model) (domain.Entry, error) {
	if err := d.session.LoadModel(ctx, m.ModelID); err != nil {
		return d.recover(ctx, m, err)
	}

	info, err := read(ctx, d, "read current model", d.session.CurrentModelInfo)
	if err != nil {
		return d.recover(ctx, m, err)
	}
	if info.ModelLoaded && info.ModelID != "" && info.ModelID != m.ModelID {
		return d.recover(ctx, m, fmt.Errorf("%w: %s", ErrModelMismatch, info.ModelID))
	}

	hotkeys, err := read(ctx, d, "read hotkeys", d.session.CurrentHotkeys)
	if err != nil {
		return d.recover(ctx, m, err)
	}

	d.log.WithFields(logrus.Fields{
		"model":   m.ModelName,
		"hotkeys": len(hotkeys),
	}).Info("Model collected")

	return domain.Entry{
		Model:   m,
		Icon:    d.resolveIcon(info.ModelFileName, m.ModelName),
		Hotkeys: hotkeys,
	}, nil
}

// recover decides what a failure on model m means for the run: fatal
// failures end it, anything else leaves a placeholder after an optional
// operator pause.
func (d *Driver) recover(ctx context.Context, m protocol.Model, cause error) (domain.Entry, error) {
	if ctx.Err() != nil {
		return domain.Entry{}, ctx.Err()
	}

	f := policy.Describe(cause)
	class := d.classifier.Classify(ctx, cause)
	log := d.log.WithError(cause).WithFields(logrus.Fields{
		"model":    m.ModelName,
		"model_id": m.ModelID,
		"kind":     f.Kind,
		"class":    class,
	})

	if class == domain.FailureClassFatal {
		log.Error("Aborting run")
		return domain.Entry{}, cause
	}

	p := newPause(pauseReason(f.Kind), &m, cause)
	if d.Interactive() {
		if err := d.pause(ctx, p); err != nil {
			return domain.Entry{}, err
		}
	} else {
		log.Warnf("%s, skipping", p.Text())
	}

	if class == domain.FailureClassNeedsHuman && !d.session.ProbeLiveness(ctx) {
		log.Warn("VTube Studio is still not answering, the next model will likely fail too")
	}
	return domain.Placeholder(m, d.defaultIcon, cause), nil
}

func (d *Driver) pause(ctx context.Context, p *Pause) error {
	entry := d.log.WithField("reason", p.Reason)
	if p.Model != nil {
		entry = entry.WithField("model", p.Model.ModelName)
	}
	if d.operator == nil {
		entry.Warn(p.Text())
		return nil
	}

	entry.Warn("Waiting for operator: " + p.Text())
	if err := d.operator.AwaitOperator(ctx, p); err != nil {
		return err
	}
	entry.Info("Operator resumed the run")
	return nil
}

func (d *Driver) resolveIcon(hint, name string) string {
	if d.icons == nil {
		return d.defaultIcon
	}
	if ref := d.icons.Resolve(hint, name); ref != "" {
		return ref
	}
	return d.defaultIcon
}

// read runs a post-load read under ReadTimeout, retrying retry-class
// failures up to ReadAttempts.
func read[T any](ctx context.Context, d *Driver, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := 0
	var out T
	operation := func() error {
		attempts++
		rctx, cancel := context.WithTimeout(ctx, d.retry.ReadTimeout)
		defer cancel()

		v, err := fn(rctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if d.classifier.Classify(ctx, err) != domain.FailureClassRetry {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if d.retry.ReadAttempts > 1 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retry.BusyBackoff), uint64(d.retry.ReadAttempts-1))
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &ReadError{Op: op, Attempts: attempts, Err: err}
	}
	return out, nil
}

func pauseReason(kind domain.FailureKind) domain.PauseReason {
	switch kind {
	case domain.FailureKindBlocked:
		return domain.PauseReasonBlocked
	case domain.FailureKindBusy:
		return domain.PauseReasonBusy
	case domain.FailureKindTimeout:
		return domain.PauseReasonTimeout
	default:
		return domain.PauseReasonUnknown
	}
}
