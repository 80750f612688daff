package channel

import "context"

// Local performs answer, control queueing and masquerade purely on the
// in-process model, with no PBX behind it.
type Local struct {
	Registry *Registry
}

func NewLocal(r *Registry) *Local {
	return &Local{Registry: r}
}

// Answer moves the channel to Up. Answering an Up channel is a no-op.
func (l *Local) Answer(_ context.Context, c *Channel) error {
	return c.Update(func(a *Attrs) {
		a.State = StateUp
	})
}

func (l *Local) QueueControl(c *Channel, ctl Control) error {
	return c.QueueControl(ctl)
}

func (l *Local) Masquerade(_ context.Context, dst *Channel, src *Locked) error {
	_, err := l.Registry.Masquerade(dst, src)
	return err
}
