// Package tracker mirrors the channels of a live Asterisk into a
// channel.Registry by following the AMI event stream.
package tracker

import (
	"log/slog"
	"strings"

	"github.com/sweeney/asterisk-pickup/internal/ami"
	"github.com/sweeney/asterisk-pickup/internal/channel"
	"github.com/sweeney/asterisk-pickup/internal/logging"
)

// MacroExtenVar is set by Macro() to the extension that invoked it.
const MacroExtenVar = "MACRO_EXTEN"

// Tracker applies AMI events to a registry.
type Tracker struct {
	reg    *channel.Registry
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func New(reg *channel.Registry, opts ...Option) *Tracker {
	t := &Tracker{reg: reg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process ingests one AMI event.
func (t *Tracker) Process(evt ami.Event) {
	if evt.IsResponse() {
		return
	}

	uniqueID := evt.UniqueID()
	if uniqueID == "" {
		return
	}

	switch evt.Type() {
	case "Newchannel":
		t.handleNewchannel(evt, uniqueID)
	case "Newstate":
		t.handleNewstate(evt, uniqueID)
	case "Newexten":
		t.handleNewexten(evt, uniqueID)
	case "DialBegin":
		t.handleDialBegin(evt)
	case "VarSet":
		t.handleVarSet(evt, uniqueID)
	case "Rename":
		t.handleRename(evt, uniqueID)
	case "Hangup":
		t.handleHangup(uniqueID)
	}
}

// ActiveChannels returns the number of channels currently mirrored.
func (t *Tracker) ActiveChannels() int {
	return t.reg.Len()
}

func (t *Tracker) handleNewchannel(evt ami.Event, uniqueID string) {
	state, _ := channel.ParseState(evt.Get("ChannelStateDesc"))
	_, created := t.reg.Add(uniqueID, evt.Channel(), channel.Attrs{
		State:   state,
		Context: evt.Get("Context"),
		Exten:   evt.Get("Exten"),
	})
	if created {
		t.logger.Debug("channel created", "channel", evt.Channel(), "uniqueid", uniqueID)
	}
}

func (t *Tracker) update(uniqueID string, fn func(a *channel.Attrs)) {
	c := t.reg.Get(uniqueID)
	if c == nil {
		return
	}
	if err := c.Update(fn); err != nil {
		t.logger.Debug("event for departed channel", "uniqueid", uniqueID, "error", err)
	}
}

func (t *Tracker) handleNewstate(evt ami.Event, uniqueID string) {
	state, ok := channel.ParseState(evt.Get("ChannelStateDesc"))
	if !ok {
		return
	}
	t.update(uniqueID, func(a *channel.Attrs) {
		a.State = state
	})
}

// handleNewexten marks the channel as running dialplan.
func (t *Tracker) handleNewexten(evt ami.Event, uniqueID string) {
	exten := evt.Get("Extension")
	if exten == "" {
		exten = evt.Get("Exten")
	}
	t.update(uniqueID, func(a *channel.Attrs) {
		a.InPBX = true
		a.Context = evt.Get("Context")
		a.Exten = exten
	})
}

// handleDialBegin gives the dialled channel the caller's context and
// extension, the way Dial() does.
func (t *Tracker) handleDialBegin(evt ami.Event) {
	destID := evt.Get("DestUniqueid")
	if destID == "" {
		return
	}
	t.update(destID, func(a *channel.Attrs) {
		a.DialContext = evt.Get("Context")
		a.Exten = evt.Get("Exten")
		a.Conn = channel.Connection{Peer: evt.Channel()}
	})
}

func (t *Tracker) handleVarSet(evt ami.Event, uniqueID string) {
	// Inheritable variables are reported with their leading underscores.
	name := strings.TrimLeft(evt.Get("Variable"), "_")
	if name == "" {
		return
	}
	value := evt.Get("Value")
	t.update(uniqueID, func(a *channel.Attrs) {
		a.Vars[name] = value
		if name == MacroExtenVar {
			a.MacroExten = value
		}
	})
}

func (t *Tracker) handleRename(evt ami.Event, uniqueID string) {
	c := t.reg.Get(uniqueID)
	if c == nil {
		return
	}
	newName := evt.Get("Newname")
	if newName == "" {
		return
	}
	if err := t.reg.Rename(c, newName); err != nil {
		t.logger.Debug("rename of departed channel", "uniqueid", uniqueID, "error", err)
	}
}

func (t *Tracker) handleHangup(uniqueID string) {
	if c := t.reg.Remove(uniqueID); c != nil {
		t.logger.Debug("channel hung up", "uniqueid", uniqueID)
	}
}
