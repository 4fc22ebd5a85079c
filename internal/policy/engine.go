// Package policy holds the retry policy and the failure classifier shared by
// the session client and the enumeration driver.
package policy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"github.com/sirupsen/logrus"

	"github.com/jiuai233/StreamDeck/internal/domain"
)

// Failure is the normalized description of an error that the classifier sees.
type Failure struct {
	Kind      domain.FailureKind `json:"kind"`
	Message   string             `json:"message"`
	Exhausted bool               `json:"exhausted"`
}

// Describer is implemented by client errors that know their own failure shape.
type Describer interface {
	Failure() Failure
}

// Describe turns any error into a Failure. Errors that do not describe
// themselves are reported as unknown, apart from context errors.
func Describe(err error) Failure {
	var d Describer
	if errors.As(err, &d) {
		return d.Failure()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Failure{Kind: domain.FailureKindCanceled, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Failure{Kind: domain.FailureKindTimeout, Message: err.Error()}
	}
	return Failure{Kind: domain.FailureKindUnknown, Message: err.Error()}
}

// Classifier maps failures to a domain.FailureClass by evaluating a rego policy.
type Classifier struct {
	query rego.PreparedEvalQuery
}

// NewClassifier creates a classifier with the given policy content.
func NewClassifier(ctx context.Context, policyContent string) (*Classifier, error) {
	r := rego.New(
		rego.Query("data.vts_failure.class"),
		rego.Module("vts_failure.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Classifier{query: query}, nil
}

// NewClassifierFromFile loads the policy from path, or DefaultPolicy when path is empty.
func NewClassifierFromFile(ctx context.Context, path string) (*Classifier, error) {
	if path == "" {
		return NewClassifier(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewClassifier(ctx, string(content))
}

// Evaluate runs the policy for one failure.
func (c *Classifier) Evaluate(ctx context.Context, f Failure) (domain.FailureClass, error) {
	input := map[string]any{
		"kind":      string(f.Kind),
		"message":   f.Message,
		"exhausted": f.Exhausted,
	}
	results, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", errors.New("policy produced no class")
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("policy returned %T, want string", results[0].Expressions[0].Value)
	}
	class := domain.FailureClass(s)
	if !class.Valid() {
		return "", fmt.Errorf("policy returned unknown class %q", s)
	}
	return class, nil
}

// Classify maps err to exactly one class. A policy that cannot be evaluated
// falls back to needs_human. Cancellation of ctx does not affect evaluation.
func (c *Classifier) Classify(ctx context.Context, err error) domain.FailureClass {
	if err == nil {
		return ""
	}
	f := Describe(err)
	class, evalErr := c.Evaluate(context.WithoutCancel(ctx), f)
	if evalErr != nil {
		logrus.WithError(evalErr).WithField("kind", f.Kind).Warn("Failure classification failed, assuming operator attention is needed")
		return domain.FailureClassNeedsHuman
	}
	return class
}

// DefaultPolicy is the default classification policy.
const DefaultPolicy = `
package vts_failure

default class = "needs_human"

busy_markers = [
	"cannot currently change model",
	"model load cooldown",
	"already loading"
]

fatal_kinds = {"connection", "auth_pending", "auth_failed", "canceled"}

busy_message {
	m := lower(input.message)
	contains(m, busy_markers[_])
}

retryable {
	input.kind == "busy"
}

retryable {
	input.kind == "timeout"
}

retryable {
	input.kind == "remote"
	busy_message
}

class = "fatal" {
	fatal_kinds[input.kind]
}

class = "retry" {
	retryable
	not input.exhausted
}

class = "skip" {
	retryable
	input.exhausted
}
`
