// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

// Editor mutates a Document inside an edit scope. It must not be retained
// past the Edit call that produced it; any use afterwards panics.
type Editor struct {
	doc    *Document
	closed bool
}

func (e *Editor) live() map[string]any {
	if e.closed {
		panic("lazyjson: editor for " + e.doc.LazyJSONName() + " used after its edit scope ended")
	}
	return e.doc.data
}

// Get returns a field of the live value. Mutating a returned map or slice
// mutates the document.
func (e *Editor) Get(field string) (any, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := e.live()[field]
	return v, ok
}

// Set stores value under field.
func (e *Editor) Set(field string, value any) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.live()[field] = value
}

// Delete removes field. Missing fields are ignored.
func (e *Editor) Delete(field string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	delete(e.live(), field)
}

// Clear removes every field.
func (e *Editor) Clear() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	clear(e.live())
}

// Data returns the live value. Changes to it are flushed when the edit
// scope ends.
func (e *Editor) Data() map[string]any {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.live()
}
