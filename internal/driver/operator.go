package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/protocol"
)

// Pause is one request for operator attention. The driver stays suspended
// until Resolve is called or the run is canceled.
type Pause struct {
	Reason  domain.PauseReason
	Model   *protocol.Model
	Message string
	Hint    string
	Err     error

	once sync.Once
	done chan struct{}
}

func newPause(reason domain.PauseReason, m *protocol.Model, err error) *Pause {
	p := &Pause{
		Reason: reason,
		Model:  m,
		Err:    err,
		done:   make(chan struct{}),
	}
	p.Message, p.Hint = describePause(reason, m)
	return p
}

// Resolve lets the driver continue. Calling it more than once is harmless.
func (p *Pause) Resolve() {
	p.once.Do(func() { close(p.done) })
}

// Done is closed once the pause has been resolved.
func (p *Pause) Done() <-chan struct{} {
	return p.done
}

// Text is the message followed by the hint, for a prompt or a log line.
func (p *Pause) Text() string {
	if p.Hint == "" {
		return p.Message
	}
	return p.Message + ". " + p.Hint + "."
}

func describePause(reason domain.PauseReason, m *protocol.Model) (string, string) {
	name := "the next model"
	if m != nil {
		name = fmt.Sprintf("%q", m.ModelName)
	}
	switch reason {
	case domain.PauseReasonStartup:
		return "VTube Studio is not answering",
			"Close any open dialog in VTube Studio and check that the plugin API is enabled"
	case domain.PauseReasonPeriodic:
		return "VTube Studio stopped answering before " + name,
			"Close any open dialog in VTube Studio"
	case domain.PauseReasonBlocked:
		return "VTube Studio appears blocked by a dialog while loading " + name,
			"Dismiss the dialog in VTube Studio"
	case domain.PauseReasonBusy:
		return "VTube Studio kept refusing to switch to " + name,
			"Wait for the current model to finish loading"
	case domain.PauseReasonTimeout:
		return "VTube Studio did not answer in time for " + name,
			"Check that VTube Studio is responsive and not minimized to a frozen state"
	default:
		return "Unexpected error while processing " + name,
			"Check the VTube Studio window for an error message"
	}
}

// Operator is whoever acknowledges pauses: a console prompt, a GUI modal or a test.
type Operator interface {
	// AwaitOperator blocks until the operator has dealt with p or ctx is done.
	AwaitOperator(ctx context.Context, p *Pause) error
}

// ChannelOperator publishes pauses on a channel and waits for the receiver
// to resolve them.
type ChannelOperator struct {
	pauses chan *Pause
}

// NewChannelOperator creates an operator with an unbuffered pause channel.
func NewChannelOperator() *ChannelOperator {
	return &ChannelOperator{pauses: make(chan *Pause)}
}

// Pauses delivers each pause the driver raises.
func (o *ChannelOperator) Pauses() <-chan *Pause {
	return o.pauses
}

func (o *ChannelOperator) AwaitOperator(ctx context.Context, p *Pause) error {
	select {
	case o.pauses <- p:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context, p *Pause) error

func (f OperatorFunc) AwaitOperator(ctx context.Context, p *Pause) error {
	return f(ctx, p)
}
