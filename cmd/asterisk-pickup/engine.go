package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/asterisk-pickup/internal/ami"
	"github.com/sweeney/asterisk-pickup/internal/channel"
)

// actionSender is the part of ami.Client the engine uses.
type actionSender interface {
	Send(ctx context.Context, a ami.Action) (ami.Event, error)
}

// amiEngine drives a real Asterisk through AMI and keeps the local mirror
// in step with what it asked for.
type amiEngine struct {
	client  actionSender
	local   *channel.Local
	timeout time.Duration
}

// Answer sends ANSWER to the requester, which must be running AsyncAGI.
func (e *amiEngine) Answer(ctx context.Context, c *channel.Channel) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if _, err := e.client.Send(ctx, ami.AGI(c.Name(), "ANSWER")); err != nil {
		return fmt.Errorf("agi answer: %w", err)
	}
	return e.local.Answer(ctx, c)
}

// QueueControl only touches the mirror; the frame is for our own view of
// the requester.
func (e *amiEngine) QueueControl(c *channel.Channel, ctl channel.Control) error {
	return e.local.QueueControl(c, ctl)
}

// Masquerade bridges the requester to the ringing target and folds the
// target into the requester in the mirror. The Bridge is only sent once
// both channels are locked and the target is known to be unchanged, so a
// target lost locally never gets bridged.
func (e *amiEngine) Masquerade(ctx context.Context, dst *channel.Channel, src *channel.Locked) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	requester := dst.Name()
	_, err := e.local.Registry.MasqueradeFunc(dst, src, func() error {
		if _, err := e.client.Send(ctx, ami.Bridge(requester, src.Name())); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		return nil
	})
	return err
}
