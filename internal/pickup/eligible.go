package pickup

import "github.com/sweeney/asterisk-pickup/internal/channel"

// CanPickup reports whether a channel may be picked up right now: it must
// be ringing and have no dialplan running on it. The caller holds the
// channel's lock.
func CanPickup(a *channel.Attrs) bool {
	if a.InPBX {
		return false
	}
	return a.State == channel.StateRinging || a.State == channel.StateRing
}
