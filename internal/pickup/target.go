package pickup

import (
	"fmt"
	"strings"
)

const (
	// MarkContext in place of a context selects mark matching.
	MarkContext = "PICKUPMARK"

	// MarkVariable is the channel variable holding a channel's pickup mark.
	MarkVariable = "PICKUPMARK"
)

// Kind selects how a Target is matched against channels.
type Kind int

const (
	// MatchExtension matches the dialled extension within a dial context.
	MatchExtension Kind = iota
	// MatchMark matches the PICKUPMARK channel variable.
	MatchMark
)

func (k Kind) String() string {
	if k == MatchMark {
		return "mark"
	}
	return "extension"
}

// Target is one alternative of a pickup request.
type Target struct {
	Ident string
	Kind  Kind

	// Context is the dial context to match. Empty for MatchMark.
	Context string
}

func (t Target) String() string {
	if t.Kind == MatchMark {
		return t.Ident + "@" + MarkContext
	}
	return t.Ident + "@" + t.Context
}

// MarshalText renders the target in request syntax, so reports encode
// targets the way they were asked for.
func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText reads a single target written by MarshalText.
func (t *Target) UnmarshalText(b []byte) error {
	targets := ParseTargets(string(b), "")
	if len(targets) != 1 {
		return fmt.Errorf("invalid pickup target %q", b)
	}
	*t = targets[0]
	return nil
}

// ParseTargets splits a request of the form ident[@context][&ident[@context]...]
// into targets, in order. A missing or empty context becomes defaultContext.
// Segments with an empty identifier are skipped.
func ParseTargets(raw, defaultContext string) []Target {
	var targets []Target
	for _, seg := range strings.Split(raw, "&") {
		ident, context, _ := strings.Cut(seg, "@")
		if ident == "" {
			continue
		}
		switch {
		case strings.EqualFold(context, MarkContext):
			targets = append(targets, Target{Ident: ident, Kind: MatchMark})
		case context == "":
			targets = append(targets, Target{Ident: ident, Kind: MatchExtension, Context: defaultContext})
		default:
			targets = append(targets, Target{Ident: ident, Kind: MatchExtension, Context: context})
		}
	}
	return targets
}

// FormatTargets is the inverse of ParseTargets.
func FormatTargets(targets []Target) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = t.String()
	}
	return strings.Join(parts, "&")
}
