package pickup

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/asterisk-pickup/internal/channel"
)

var (
	ErrNoTarget   = errors.New("no target channel found")
	ErrAnswer     = errors.New("unable to answer")
	ErrSignal     = errors.New("unable to queue answer")
	ErrTransplant = errors.New("unable to masquerade")
)

// Engine is what the merge needs from the PBX.
type Engine interface {
	// Answer answers the channel at the transport level.
	Answer(ctx context.Context, c *channel.Channel) error

	// QueueControl puts a control frame on the channel's own queue.
	QueueControl(c *channel.Channel, ctl channel.Control) error

	// Masquerade moves the locked src channel onto dst. src is consumed.
	Masquerade(ctx context.Context, dst *channel.Channel, src *channel.Locked) error
}

// Step names one stage of a merge.
type Step string

const (
	StepAnswer     Step = "answer"
	StepSignal     Step = "signal"
	StepTransplant Step = "transplant"
)

var stepErrors = map[Step]error{
	StepAnswer:     ErrAnswer,
	StepSignal:     ErrSignal,
	StepTransplant: ErrTransplant,
}

// MergeError reports which merge step failed. It matches both the step's
// sentinel (ErrAnswer, ErrSignal, ErrTransplant) and the underlying error.
type MergeError struct {
	Step      Step
	Requester string
	Target    string
	Err       error
}

func (e *MergeError) Error() string {
	switch e.Step {
	case StepAnswer, StepSignal:
		return fmt.Sprintf("%v '%s': %v", stepErrors[e.Step], e.Requester, e.Err)
	default:
		return fmt.Sprintf("%v '%s' into '%s': %v", ErrTransplant, e.Requester, e.Target, e.Err)
	}
}

func (e *MergeError) Unwrap() []error {
	return []error{stepErrors[e.Step], e.Err}
}

// Merge makes requester the answering party for the locked target: answer
// the requester, queue an answer frame on it, then masquerade the target
// into it. Each step runs only if the previous one succeeded. Completed
// steps are not undone when a later one fails.
func Merge(ctx context.Context, eng Engine, requester *channel.Channel, target *channel.Locked) error {
	fail := &MergeError{Requester: requester.Name(), Target: target.Name()}

	if err := eng.Answer(ctx, requester); err != nil {
		fail.Step, fail.Err = StepAnswer, err
		return fail
	}
	if err := eng.QueueControl(requester, channel.ControlAnswer); err != nil {
		fail.Step, fail.Err = StepSignal, err
		return fail
	}
	if err := eng.Masquerade(ctx, requester, target); err != nil {
		fail.Step, fail.Err = StepTransplant, err
		return fail
	}
	return nil
}
