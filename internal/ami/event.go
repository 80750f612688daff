package ami

import (
	"strconv"
	"strings"
)

// Event is one AMI message, event or response, as an ordered set of headers.
type Event struct {
	headers []header
}

type header struct {
	Key   string
	Value string
}

// NewEvent builds an Event from alternating keys and values.
func NewEvent(kvs ...string) Event {
	e := Event{}
	for i := 0; i+1 < len(kvs); i += 2 {
		e.headers = append(e.headers, header{Key: kvs[i], Value: kvs[i+1]})
	}
	return e
}

// Get returns the first value for key, or "" if absent.
func (e Event) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Lookup is Get that also reports whether the header was present.
func (e Event) Lookup(key string) (string, bool) {
	for _, h := range e.headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

func (e Event) GetInt(key string) int {
	v, _ := strconv.Atoi(e.Get(key))
	return v
}

// Type returns the Event header value (the AMI event type).
func (e Event) Type() string {
	return e.Get("Event")
}

func (e Event) Channel() string  { return e.Get("Channel") }
func (e Event) UniqueID() string { return e.Get("Uniqueid") }
func (e Event) ActionID() string { return e.Get("ActionID") }

// IsResponse reports whether this is a reply to an action.
func (e Event) IsResponse() bool {
	return e.Get("Response") != ""
}

// Success reports whether a response is "Success" (or "Follows").
func (e Event) Success() bool {
	r := e.Get("Response")
	return strings.EqualFold(r, "Success") || strings.EqualFold(r, "Follows")
}

func (e Event) Headers() []header {
	return e.headers
}
