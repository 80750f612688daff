package pickup

import (
	"strings"

	"github.com/sweeney/asterisk-pickup/internal/channel"
)

// Matches reports whether the channel attributes satisfy the target,
// ignoring eligibility.
func (t Target) Matches(a *channel.Attrs) bool {
	switch t.Kind {
	case MatchMark:
		mark, ok := a.Vars[MarkVariable]
		return ok && strings.EqualFold(mark, t.Ident)
	default:
		if !strings.EqualFold(a.Exten, t.Ident) && !strings.EqualFold(a.MacroExten, t.Ident) {
			return false
		}
		return strings.EqualFold(a.DialContext, t.Context)
	}
}

// FindTarget returns the first channel in the registry that matches t and
// can be picked up, still locked. The requester is never returned. The
// caller must Release the result.
func FindTarget(reg *channel.Registry, t Target, requester *channel.Channel) (*channel.Locked, bool) {
	l := reg.Find(func(l *channel.Locked) bool {
		if l.Channel() == requester {
			return false
		}
		return t.Matches(l.Attrs()) && CanPickup(l.Attrs())
	})
	return l, l != nil
}
