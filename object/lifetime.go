// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import "slices"

// Destroyable is implemented by anything that can tell observers it
// has been destroyed. The registry and the property syncer hold
// non-owning references to objects and subscribe here to drop them.
type Destroyable interface {
	// OnDestroy registers fn to run when the object is destroyed and
	// returns a function that cancels the registration. If the object
	// is already destroyed, fn runs immediately.
	OnDestroy(fn func()) (cancel func())
}

// Lifetime implements Destroyable. Embed it in a type and call Destroy
// when the value goes away. The zero value is ready to use.
type Lifetime struct {
	destroyed bool
	nextID    int
	observers map[int]func()
}

// OnDestroy implements Destroyable.
func (l *Lifetime) OnDestroy(fn func()) func() {
	if l.destroyed {
		fn()
		return func() {}
	}
	if l.observers == nil {
		l.observers = make(map[int]func())
	}
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	return func() { delete(l.observers, id) }
}

// Destroyed reports whether Destroy has been called.
func (l *Lifetime) Destroyed() bool { return l.destroyed }

// Destroy notifies every observer once, in registration order.
// Observers may cancel other registrations or subscribe new ones while
// being notified; the set notified is fixed before the first call.
func (l *Lifetime) Destroy() {
	if l.destroyed {
		return
	}
	l.destroyed = true

	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	observers := make([]func(), 0, len(ids))
	for _, id := range ids {
		observers = append(observers, l.observers[id])
	}
	l.observers = nil

	for _, observer := range observers {
		observer()
	}
}
