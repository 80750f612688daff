package channel

import "maps"

// Leg describes the call leg a masquerade throws away.
type Leg struct {
	Name string
	Conn Connection
}

// Masquerade moves src's connection and identity onto dst. src must be
// held by the caller and stays held on return; afterwards it is destroyed
// and no longer in the registry. dst takes src's name, dialled extension,
// variables and connection and is left Up. The leg dst previously carried
// is returned.
//
// When dst sorts before src, src is released and both are re-locked in
// sequence order. If src changed in that window the masquerade fails with
// ErrTargetGone and nothing is modified.
func (r *Registry) Masquerade(dst *Channel, src *Locked) (Leg, error) {
	return r.MasqueradeFunc(dst, src, nil)
}

// MasqueradeFunc is Masquerade with a commit step. commit runs with both
// channels locked and checked, before anything is modified. If it fails the
// masquerade is abandoned and its error returned. commit must not lock dst
// or src.
func (r *Registry) MasqueradeFunc(dst *Channel, src *Locked, commit func() error) (Leg, error) {
	if src.released {
		return Leg{}, ErrTargetGone
	}
	if dst == src.c {
		return Leg{}, ErrSelf
	}

	if dst.seq < src.c.seq && !dst.mu.TryLock() {
		src.c.mu.Unlock()
		dst.mu.Lock()
		src.c.mu.Lock()
		if src.c.destroyed || src.c.gen != src.gen {
			dst.mu.Unlock()
			return Leg{}, ErrTargetGone
		}
	} else if dst.seq > src.c.seq {
		dst.mu.Lock()
	}
	defer dst.mu.Unlock()

	if dst.destroyed {
		return Leg{}, ErrDestroyed
	}
	if src.c.destroyed {
		return Leg{}, ErrTargetGone
	}
	if commit != nil {
		if err := commit(); err != nil {
			return Leg{}, err
		}
	}

	discarded := Leg{Name: dst.name, Conn: dst.attrs.Conn}
	from := &src.c.attrs

	dst.name = src.c.name
	dst.attrs.Conn = from.Conn
	dst.attrs.Exten = from.Exten
	dst.attrs.MacroExten = from.MacroExten
	dst.attrs.DialContext = from.DialContext
	dst.attrs.State = StateUp
	maps.Copy(dst.attrs.Vars, from.Vars)
	dst.gen++

	src.c.destroyed = true
	src.c.gen++
	src.gen = src.c.gen

	r.mu.Lock()
	r.unindexLocked(src.c)
	for name, nc := range r.byName {
		if nc == dst {
			delete(r.byName, name)
		}
	}
	r.byName[dst.name] = dst
	r.mu.Unlock()

	return discarded, nil
}
