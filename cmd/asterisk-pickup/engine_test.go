package main

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/asterisk-pickup/internal/ami"
	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/logging"
	"github.com/sweeney/asterisk-pickup/internal/pickup"
	"github.com/sweeney/asterisk-pickup/internal/tracker"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, a ami.Action) (ami.Event, error) {
	f.sent = append(f.sent, strings.TrimSpace(string(a.Encode())))
	if f.err != nil {
		return ami.Event{}, f.err
	}
	return ami.NewEvent("Response", "Success"), nil
}

func newEngine(sender *fakeSender) (*amiEngine, *channel.Registry) {
	reg := channel.NewRegistry()
	return &amiEngine{client: sender, local: channel.NewLocal(reg), timeout: time.Second}, reg
}

func TestAMIEngineMerge(t *testing.T) {
	sender := &fakeSender{}
	eng, reg := newEngine(sender)
	requester := reg.New("PJSIP/22-00000003", channel.Attrs{State: channel.StateRing, InPBX: true})
	target := reg.New("PJSIP/21-00000002", channel.Attrs{State: channel.StateRinging})

	l := reg.Find(func(l *channel.Locked) bool { return l.Channel() == target })
	err := pickup.Merge(context.Background(), eng, requester, l)
	l.Release()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"Action: AGI\r\nChannel: PJSIP/22-00000003\r\nCommand: ANSWER",
		"Action: Bridge\r\nChannel1: PJSIP/22-00000003\r\nChannel2: PJSIP/21-00000002\r\nTone: no",
	}
	if diff := cmp.Diff(want, sender.sent); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
	if !target.Destroyed() {
		t.Error("expected target folded into requester")
	}
}

func TestAMIEngineAnswerFailure(t *testing.T) {
	sender := &fakeSender{err: &ami.ActionError{Action: "AGI", Message: "Channel does not exist"}}
	eng, reg := newEngine(sender)
	requester := reg.New("PJSIP/22-00000003", channel.Attrs{State: channel.StateRing})
	target := reg.New("PJSIP/21-00000002", channel.Attrs{State: channel.StateRinging})

	l := reg.Find(func(l *channel.Locked) bool { return l.Channel() == target })
	err := pickup.Merge(context.Background(), eng, requester, l)
	l.Release()

	if !errors.Is(err, pickup.ErrAnswer) {
		t.Fatalf("expected ErrAnswer, got %v", err)
	}
	var ae *ami.ActionError
	if !errors.As(err, &ae) {
		t.Errorf("expected the AMI error to be kept, got %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("expected no bridge after a failed answer, got %v", sender.sent)
	}
	if requester.Attrs().State != channel.StateRing {
		t.Error("mirror must not be answered when AMI refused")
	}
}

func TestReadEvents(t *testing.T) {
	server, conn := net.Pipe()
	reg := channel.NewRegistry()
	tr := tracker.New(reg)
	client := ami.NewClient(io.Discard)
	events := newEventQueue()

	go func() {
		io.WriteString(server, "Asterisk Call Manager/7.0.3\r\n"+
			"Event: Newchannel\r\nChannel: PJSIP/21-00000002\r\nChannelStateDesc: Ringing\r\nUniqueid: 1.2\r\n\r\n"+
			"Response: Success\r\nActionID: nobody\r\n\r\n")
		server.Close()
	}()

	err := readEvents(conn, client, events, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "AMI connection closed") {
		t.Fatalf("expected connection closed, got %v", err)
	}

	// readEvents closed the queue, so run drains it and returns.
	events.run(context.Background(), tr.Process)

	if reg.Len() != 1 {
		t.Fatalf("expected 1 mirrored channel, got %d", reg.Len())
	}
	if reg.GetByName("PJSIP/21-00000002").Attrs().State != channel.StateRinging {
		t.Error("expected Ringing state")
	}
}

// fakeAsterisk answers every action on conn with Success, first writing
// the events before[action] for it.
func fakeAsterisk(t *testing.T, conn net.Conn, before map[string]string) {
	t.Helper()
	go func() {
		if _, err := io.WriteString(conn, "Asterisk Call Manager/7.0.3\r\n"); err != nil {
			return
		}
		p := ami.NewParser(conn)
		for {
			action, ok := p.Next()
			if !ok {
				return
			}
			reply := before[action.Get("Action")] +
				"Response: Success\r\nActionID: " + action.ActionID() + "\r\n\r\n"
			if _, err := io.WriteString(conn, reply); err != nil {
				return
			}
		}
	}()
}

func TestPickupWhileTargetEventsArrive(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()

	fakeAsterisk(t, server, map[string]string{
		"AGI":    "Event: Newstate\r\nChannel: PJSIP/21-00000002\r\nChannelStateDesc: Ringing\r\nUniqueid: 1.2\r\n\r\n",
		"Bridge": "Event: VarSet\r\nChannel: PJSIP/21-00000002\r\nVariable: BRIDGEPEER\r\nValue: PJSIP/22-00000001\r\nUniqueid: 1.2\r\n\r\n",
	})

	reg := channel.NewRegistry()
	requester, _ := reg.Add("1.1", "PJSIP/22-00000001", channel.Attrs{
		State: channel.StateRing, InPBX: true, Context: "from-internal",
	})
	target, _ := reg.Add("1.2", "PJSIP/21-00000002", channel.Attrs{
		State: channel.StateRinging, Exten: "21", DialContext: "from-internal",
	})

	client := ami.NewClient(conn)
	events := newEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go readEvents(conn, client, events, logging.Discard())
	go events.run(ctx, tracker.New(reg).Process)

	eng := &amiEngine{client: client, local: channel.NewLocal(reg), timeout: 2 * time.Second}
	start := time.Now()
	report, err := pickup.NewDriver(reg, eng).Pickup(ctx, requester, "21")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("pickup took %s, responses were held up behind the tracker", elapsed)
	}
	if report.Picked != "PJSIP/21-00000002" {
		t.Fatalf("expected target picked, got %+v", report.Attempts)
	}
	if !target.Destroyed() {
		t.Error("expected target folded into requester")
	}
	if requester.Name() != "PJSIP/21-00000002" {
		t.Errorf("expected requester to take the target's name, got %q", requester.Name())
	}
}

func TestAMIEngineBridgeFailureLeavesMirror(t *testing.T) {
	sender := &fakeSender{}
	eng, reg := newEngine(sender)
	requester := reg.New("PJSIP/22-00000003", channel.Attrs{State: channel.StateUp})
	target := reg.New("PJSIP/21-00000002", channel.Attrs{State: channel.StateRinging})

	sender.err = &ami.ActionError{Action: "Bridge", Message: "Channel2 does not exist"}
	l := reg.Find(func(l *channel.Locked) bool { return l.Channel() == target })
	err := eng.Masquerade(context.Background(), requester, l)
	l.Release()

	var ae *ami.ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected the AMI error, got %v", err)
	}
	if target.Destroyed() || reg.Len() != 2 {
		t.Error("mirror must be untouched when the bridge is refused")
	}
	if requester.Name() != "PJSIP/22-00000003" {
		t.Errorf("requester renamed to %q", requester.Name())
	}
}

func TestAMIEngineNoBridgeForReleasedTarget(t *testing.T) {
	sender := &fakeSender{}
	eng, reg := newEngine(sender)
	requester := reg.New("PJSIP/22-00000003", channel.Attrs{State: channel.StateUp})
	target := reg.New("PJSIP/21-00000002", channel.Attrs{State: channel.StateRinging})

	l := reg.Find(func(l *channel.Locked) bool { return l.Channel() == target })
	l.Release()

	err := eng.Masquerade(context.Background(), requester, l)
	if !errors.Is(err, channel.ErrTargetGone) {
		t.Fatalf("expected ErrTargetGone, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no Bridge, got %v", sender.sent)
	}
}
