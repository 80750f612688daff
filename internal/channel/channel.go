// Package channel models the live calls known to the daemon: the Channel
// aggregate, the Registry that owns them, and the masquerade that moves one
// channel's connection onto another.
package channel

import (
	"errors"
	"maps"
	"sync"
)

var (
	ErrDestroyed  = errors.New("channel destroyed")
	ErrQueueFull  = errors.New("control queue full")
	ErrTargetGone = errors.New("target changed before masquerade")
	ErrSelf       = errors.New("cannot masquerade a channel into itself")
)

// State mirrors Asterisk's channel states.
type State int

const (
	StateDown State = iota
	StateReserved
	StateOffHook
	StateDialing
	StateRing
	StateRinging
	StateUp
	StateBusy
	StateDialingOffHook
	StatePreRing
)

var stateNames = map[State]string{
	StateDown:           "Down",
	StateReserved:       "Rsrvd",
	StateOffHook:        "OffHook",
	StateDialing:        "Dialing",
	StateRing:           "Ring",
	StateRinging:        "Ringing",
	StateUp:             "Up",
	StateBusy:           "Busy",
	StateDialingOffHook: "Dialing Offhook",
	StatePreRing:        "Pre-ring",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}

// ParseState maps an AMI ChannelStateDesc to a State.
func ParseState(desc string) (State, bool) {
	for s, n := range stateNames {
		if n == desc {
			return s, true
		}
	}
	return StateDown, false
}

// Control is a frame queued onto a channel's own control queue.
type Control int

const (
	ControlAnswer Control = iota + 1
	ControlRinging
	ControlHangup
)

func (c Control) String() string {
	switch c {
	case ControlAnswer:
		return "answer"
	case ControlRinging:
		return "ringing"
	case ControlHangup:
		return "hangup"
	}
	return "unknown"
}

// Connection is the far end a channel is talking to.
type Connection struct {
	Peer    string `json:"peer,omitempty"`
	MediaID string `json:"media_id,omitempty"`
}

// Attrs are the mutable attributes of a channel. They are only read or
// written with the owning channel's lock held.
type Attrs struct {
	State State

	// InPBX is set while dialplan is executing on the channel.
	InPBX bool

	Exten       string
	MacroExten  string
	Context     string
	DialContext string

	CallGroup   uint64
	PickupGroup uint64

	Conn Connection
	Vars map[string]string
}

func (a Attrs) clone() Attrs {
	a.Vars = maps.Clone(a.Vars)
	return a
}

const controlQueueSize = 16

// Channel is one live call leg. Its lifetime is owned by a Registry.
type Channel struct {
	id  string
	seq uint64

	mu        sync.Mutex
	name      string
	attrs     Attrs
	gen       uint64
	destroyed bool

	controls chan Control
}

func newChannel(id, name string, seq uint64, attrs Attrs) *Channel {
	if attrs.Vars == nil {
		attrs.Vars = make(map[string]string)
	}
	return &Channel{
		id:       id,
		seq:      seq,
		name:     name,
		attrs:    attrs,
		controls: make(chan Control, controlQueueSize),
	}
}

// ID returns the unique id the channel was registered with.
func (c *Channel) ID() string { return c.id }

func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Attrs returns a copy of the channel's attributes.
func (c *Channel) Attrs() Attrs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attrs.clone()
}

// Var returns the value of a channel variable.
func (c *Channel) Var(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs.Vars[key]
	return v, ok
}

// Destroyed reports whether the channel has left the registry.
func (c *Channel) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Update applies fn to the channel's attributes under its lock.
func (c *Channel) Update(fn func(a *Attrs)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	fn(&c.attrs)
	if c.attrs.Vars == nil {
		c.attrs.Vars = make(map[string]string)
	}
	c.gen++
	return nil
}

// QueueControl appends a control frame to the channel's own queue without
// blocking.
func (c *Channel) QueueControl(ctl Control) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	select {
	case c.controls <- ctl:
		return nil
	default:
		return ErrQueueFull
	}
}

// Controls is the receive side of the control queue.
func (c *Channel) Controls() <-chan Control {
	return c.controls
}

// Locked is a channel whose lock is held by the caller. It is handed out by
// Registry.Find and Registry.Walk and must be released exactly once;
// Release is idempotent.
type Locked struct {
	c        *Channel
	gen      uint64
	released bool
}

func lockChannel(c *Channel) *Locked {
	c.mu.Lock()
	return &Locked{c: c, gen: c.gen}
}

func (l *Locked) Channel() *Channel { return l.c }
func (l *Locked) ID() string        { return l.c.id }
func (l *Locked) Name() string      { return l.c.name }

// Attrs gives direct access to the locked channel's attributes. The
// pointer must not be used after Release.
func (l *Locked) Attrs() *Attrs { return &l.c.attrs }

func (l *Locked) Release() {
	if l.released {
		return
	}
	l.released = true
	l.c.mu.Unlock()
}
