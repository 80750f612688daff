package pickup

import (
	"context"

	"github.com/sweeney/asterisk-pickup/internal/channel"
)

// CallGroups is the default group pickup: it answers the first ringing
// channel whose call group shares a bit with the requester's pickup group.
type CallGroups struct {
	Registry *channel.Registry
	Engine   Engine
}

func (g *CallGroups) PickupGroup(ctx context.Context, requester *channel.Channel) error {
	groups := requester.Attrs().PickupGroup
	if groups == 0 {
		return ErrNoTarget
	}

	target := g.Registry.Find(func(l *channel.Locked) bool {
		if l.Channel() == requester {
			return false
		}
		return l.Attrs().CallGroup&groups != 0 && CanPickup(l.Attrs())
	})
	if target == nil {
		return ErrNoTarget
	}
	defer target.Release()

	return Merge(ctx, g.Engine, requester, target)
}
