package pickup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/pickup"
)

func TestMergeStepFailures(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name      string
		failStep  pickup.Step
		sentinel  error
		wantSteps []pickup.Step
		message   string
	}{
		{
			name:      "answer",
			failStep:  pickup.StepAnswer,
			sentinel:  pickup.ErrAnswer,
			wantSteps: []pickup.Step{pickup.StepAnswer},
			message:   "unable to answer 'R': boom",
		},
		{
			name:      "signal",
			failStep:  pickup.StepSignal,
			sentinel:  pickup.ErrSignal,
			wantSteps: []pickup.Step{pickup.StepAnswer, pickup.StepSignal},
			message:   "unable to queue answer 'R': boom",
		},
		{
			name:      "transplant",
			failStep:  pickup.StepTransplant,
			sentinel:  pickup.ErrTransplant,
			wantSteps: []pickup.Step{pickup.StepAnswer, pickup.StepSignal, pickup.StepTransplant},
			message:   "unable to masquerade 'R' into 'T': boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := channel.NewRegistry()
			eng := &recordingEngine{
				local: channel.NewLocal(reg),
				failAt: func(step pickup.Step) error {
					if step == tt.failStep {
						return cause
					}
					return nil
				},
			}
			requester := reg.New("R", channel.Attrs{State: channel.StateUp})
			target := reg.New("T", channel.Attrs{State: channel.StateRinging})

			l := reg.Find(func(l *channel.Locked) bool { return l.Channel() == target })
			err := pickup.Merge(context.Background(), eng, requester, l)
			l.Release()

			if !errors.Is(err, tt.sentinel) || !errors.Is(err, cause) {
				t.Fatalf("expected %v wrapping %v, got %v", tt.sentinel, cause, err)
			}
			var me *pickup.MergeError
			if !errors.As(err, &me) || me.Step != tt.failStep {
				t.Fatalf("expected MergeError at %s, got %#v", tt.failStep, err)
			}
			if err.Error() != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, err.Error())
			}
			if diff := cmp.Diff(tt.wantSteps, eng.steps); diff != "" {
				t.Errorf("steps mismatch (-want +got):\n%s", diff)
			}
			if target.Destroyed() {
				t.Error("target must survive a failed merge")
			}
		})
	}
}

func TestMergeNoRollback(t *testing.T) {
	reg := channel.NewRegistry()
	eng := &recordingEngine{
		local: channel.NewLocal(reg),
		failAt: func(step pickup.Step) error {
			if step == pickup.StepTransplant {
				return errors.New("boom")
			}
			return nil
		},
	}
	requester := reg.New("R", channel.Attrs{State: channel.StateRing})
	target := reg.New("T", channel.Attrs{State: channel.StateRinging})

	l := reg.Find(func(l *channel.Locked) bool { return l.Channel() == target })
	_ = pickup.Merge(context.Background(), eng, requester, l)
	l.Release()

	if requester.Attrs().State != channel.StateUp {
		t.Error("answer is not undone after a failed transplant")
	}
	if len(requester.Controls()) != 1 {
		t.Error("queued answer frame is not withdrawn after a failed transplant")
	}
}

func TestCallGroups(t *testing.T) {
	tests := []struct {
		name       string
		pickup     uint64
		callGroup  uint64
		inPBX      bool
		wantPicked bool
	}{
		{"shared bit", 0b0110, 0b0100, false, true},
		{"no shared bit", 0b0001, 0b0100, false, false},
		{"requester has no pickup group", 0, 0b0100, false, false},
		{"target in dialplan", 0b0100, 0b0100, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := channel.NewRegistry()
			g := &pickup.CallGroups{Registry: reg, Engine: channel.NewLocal(reg)}
			requester := reg.New("R", channel.Attrs{State: channel.StateUp, PickupGroup: tt.pickup, CallGroup: tt.pickup})
			target := reg.New("T", channel.Attrs{State: channel.StateRinging, CallGroup: tt.callGroup, InPBX: tt.inPBX})

			err := g.PickupGroup(context.Background(), requester)
			if tt.wantPicked {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !target.Destroyed() {
					t.Error("expected target absorbed")
				}
				return
			}
			if !errors.Is(err, pickup.ErrNoTarget) {
				t.Fatalf("expected ErrNoTarget, got %v", err)
			}
			if target.Destroyed() {
				t.Error("target must survive")
			}
		})
	}
}

func TestDriverDefaultsToCallGroups(t *testing.T) {
	f := newFixture(t)
	a := f.reg.New("R", channel.Attrs{State: channel.StateUp, PickupGroup: 1})
	b := f.reg.New("T", channel.Attrs{State: channel.StateRinging, CallGroup: 1})

	report, err := f.driver.Pickup(context.Background(), a, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Group || !b.Destroyed() {
		t.Errorf("expected group pickup of T, got %+v", report)
	}
}
