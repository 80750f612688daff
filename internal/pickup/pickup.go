// Package pickup implements directed call pickup: finding the ringing
// channel a request names and making the requester answer it instead.
//
// A request is a list of alternatives separated by '&'. Each one is an
// extension with an optional dial context (100, 100@sales) or a pickup mark
// (sales1@PICKUPMARK) matched against the PICKUPMARK channel variable. The
// alternatives are tried in order until one is picked up. An empty request
// falls back to group pickup.
package pickup

import (
	"context"
	"log/slog"

	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/logging"
)

// GroupPicker handles requests that name no target.
type GroupPicker interface {
	PickupGroup(ctx context.Context, requester *channel.Channel) error
}

// Outcome is what happened to one target of a request.
type Outcome string

const (
	OutcomePicked      Outcome = "picked"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeMergeFailed Outcome = "merge_failed"
)

// Attempt records one target tried by the driver.
type Attempt struct {
	Target  Target  `json:"target"`
	Outcome Outcome `json:"outcome"`
	Channel string  `json:"channel,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Report describes a pickup request after it ran.
type Report struct {
	Requester string    `json:"requester"`
	Request   string    `json:"request"`
	Group     bool      `json:"group,omitempty"`
	Picked    string    `json:"picked,omitempty"`
	Attempts  []Attempt `json:"attempts,omitempty"`
}

// Driver runs pickup requests against a registry.
type Driver struct {
	registry *channel.Registry
	engine   Engine
	group    GroupPicker
	logger   *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithGroupPicker replaces the default call group fallback.
func WithGroupPicker(g GroupPicker) Option {
	return func(d *Driver) { d.group = g }
}

func NewDriver(reg *channel.Registry, eng Engine, opts ...Option) *Driver {
	d := &Driver{
		registry: reg,
		engine:   eng,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.group == nil {
		d.group = &CallGroups{Registry: reg, Engine: eng}
	}
	return d
}

// Pickup runs one request for requester.
//
// An empty request is handed to the group picker and its error is returned
// as is. For any other request the returned error is always nil, whether or
// not a channel was picked up: pickup never fails the dialplan that asked
// for it. The Report says what actually happened.
func (d *Driver) Pickup(ctx context.Context, requester *channel.Channel, request string) (Report, error) {
	report := Report{Requester: requester.Name(), Request: request}
	log := d.logger.With("requester", report.Requester)

	if request == "" {
		report.Group = true
		return report, d.group.PickupGroup(ctx, requester)
	}

	for _, t := range ParseTargets(request, requester.Attrs().Context) {
		attempt := d.try(ctx, log, requester, t)
		report.Attempts = append(report.Attempts, attempt)
		if attempt.Outcome == OutcomePicked {
			report.Picked = attempt.Channel
			break
		}
	}
	return report, nil
}

func (d *Driver) try(ctx context.Context, log *slog.Logger, requester *channel.Channel, t Target) Attempt {
	target, ok := FindTarget(d.registry, t, requester)
	if !ok {
		log.Log(ctx, logging.LevelNotice, "no target channel found",
			"target", t.Ident,
			"kind", t.Kind.String(),
			"context", t.Context,
		)
		return Attempt{Target: t, Outcome: OutcomeNotFound}
	}
	defer target.Release()

	name := target.Name()
	log.Debug("call pickup", "target", name)

	if err := Merge(ctx, d.engine, requester, target); err != nil {
		log.Warn("pickup merge failed", "target", name, "error", err)
		return Attempt{Target: t, Outcome: OutcomeMergeFailed, Channel: name, Error: err.Error()}
	}
	return Attempt{Target: t, Outcome: OutcomePicked, Channel: name}
}
