package ami

import "strings"

// Action is a request sent to the manager interface.
type Action struct {
	headers []header
}

// NewAction starts an action of the given type followed by the key/value pairs.
func NewAction(name string, kvs ...string) Action {
	a := Action{headers: []header{{Key: "Action", Value: name}}}
	for i := 0; i+1 < len(kvs); i += 2 {
		a.headers = append(a.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return a
}

func (a Action) Name() string {
	return a.Get("Action")
}

func (a Action) Get(key string) string {
	for _, h := range a.headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// With returns a copy of a with key set to value, replacing any earlier value.
func (a Action) With(key, value string) Action {
	out := Action{headers: make([]header, 0, len(a.headers)+1)}
	for _, h := range a.headers {
		if h.Key != key {
			out.headers = append(out.headers, h)
		}
	}
	out.headers = append(out.headers, header{Key: key, Value: value})
	return out
}

// Encode renders the action in wire format, terminated by a blank line.
func (a Action) Encode() []byte {
	var b strings.Builder
	for _, h := range a.headers {
		b.WriteString(h.Key)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

func Login(username, secret string) Action {
	return NewAction("Login", "Username", username, "Secret", secret)
}

// AGI queues an AGI command on a channel running AsyncAGI.
func AGI(channel, command string) Action {
	return NewAction("AGI", "Channel", channel, "Command", command)
}

// Bridge connects two channels already in the PBX.
func Bridge(channel1, channel2 string) Action {
	return NewAction("Bridge", "Channel1", channel1, "Channel2", channel2, "Tone", "no")
}
