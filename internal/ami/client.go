package ami

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("ami client closed")

// ActionError is a non-success response to an action.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("ami %s failed: %s", e.Action, e.Message)
}

// Client sends actions over an AMI connection and pairs them with their
// responses by ActionID. Responses are fed in by whoever reads the
// connection, through Deliver.
type Client struct {
	wmu sync.Mutex
	w   io.Writer

	mu      sync.Mutex
	pending map[string]chan Event
	closed  bool
}

func NewClient(w io.Writer) *Client {
	return &Client{
		w:       w,
		pending: make(map[string]chan Event),
	}
}

// Send writes a and waits for its response or for ctx to end.
func (c *Client) Send(ctx context.Context, a Action) (Event, error) {
	id := uuid.New().String()
	a = a.With("ActionID", id)
	ch := make(chan Event, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Event{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	_, err := c.w.Write(a.Encode())
	c.wmu.Unlock()
	if err != nil {
		return Event{}, fmt.Errorf("sending %s: %w", a.Name(), err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Event{}, ErrClosed
		}
		if !resp.Success() {
			return resp, &ActionError{Action: a.Name(), Message: resp.Get("Message")}
		}
		return resp, nil
	case <-ctx.Done():
		return Event{}, fmt.Errorf("waiting for %s response: %w", a.Name(), ctx.Err())
	}
}

// Deliver routes a response to the Send waiting for it. It reports whether
// the event was consumed.
func (c *Client) Deliver(evt Event) bool {
	if !evt.IsResponse() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[evt.ActionID()]
	if !ok {
		return false
	}
	delete(c.pending, evt.ActionID())
	ch <- evt
	return true
}

// Close fails every outstanding Send and rejects new ones.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
