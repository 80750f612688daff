package channel

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-wide set of live channels.
//
// Lock order: a channel lock may be held while taking the registry lock,
// never the other way round. Two channel locks are only ever held together
// by Masquerade, which takes them in ascending sequence order.
type Registry struct {
	mu     sync.RWMutex
	seq    uint64
	byID   map[string]*Channel
	byName map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Channel),
		byName: make(map[string]*Channel),
	}
}

// Add registers a channel under a known unique id. If the id is already
// present the existing channel is returned with false.
func (r *Registry) Add(id, name string, attrs Attrs) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		return c, false
	}
	r.seq++
	c := newChannel(id, name, r.seq, attrs)
	r.byID[id] = c
	r.byName[name] = c
	return c, true
}

// New registers a channel with a freshly generated id.
func (r *Registry) New(name string, attrs Attrs) *Channel {
	c, _ := r.Add(uuid.New().String(), name, attrs)
	return c
}

func (r *Registry) Get(id string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func (r *Registry) GetByName(name string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Rename changes a channel's name and keeps the name index in step.
func (r *Registry) Rename(c *Channel, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	old := c.name
	c.name = name
	c.gen++

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName[old] == c {
		delete(r.byName, old)
	}
	r.byName[name] = c
	return nil
}

// Remove destroys the channel with the given id. Callers must not hold
// that channel's lock.
func (r *Registry) Remove(id string) *Channel {
	r.mu.Lock()
	c := r.byID[id]
	if c == nil {
		r.mu.Unlock()
		return nil
	}
	r.unindexLocked(c)
	r.mu.Unlock()

	c.mu.Lock()
	c.destroyed = true
	c.gen++
	c.mu.Unlock()
	return c
}

func (r *Registry) unindexLocked(c *Channel) {
	delete(r.byID, c.id)
	for name, nc := range r.byName {
		if nc == c {
			delete(r.byName, name)
		}
	}
}

// Channels returns the live channels in registration order.
func (r *Registry) Channels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Channel) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// Walk visits every live channel once, in registration order, with only
// that channel locked. fn returning true stops the walk. Channels destroyed
// before they are reached are skipped.
func (r *Registry) Walk(fn func(l *Locked) (stop bool)) {
	for _, c := range r.Channels() {
		l := lockChannel(c)
		if c.destroyed {
			l.Release()
			continue
		}
		stop := fn(l)
		l.Release()
		if stop {
			return
		}
	}
}

// Find returns the first live channel for which match reports true, still
// locked. The caller owns the lock and must Release it. Find returns nil
// when nothing matches.
func (r *Registry) Find(match func(l *Locked) bool) *Locked {
	for _, c := range r.Channels() {
		l := lockChannel(c)
		if !c.destroyed && match(l) {
			return l
		}
		l.Release()
	}
	return nil
}
