package doc

import (
	"sync"
	"sync/atomic"
)

// ObjectID identifies a document for the lifetime of the process.
type ObjectID uint64

var lastObjectID atomic.Uint64

// Document is an editable sprite plus its undo history.
type Document struct {
	id      ObjectID
	history *History

	mu       sync.RWMutex
	sprite   *Sprite
	filename string
	version  uint64
}

// NewDocument wraps sprite in a new document with a process-unique ID.
func NewDocument(sprite *Sprite, filename string) *Document {
	d := &Document{
		id:       ObjectID(lastObjectID.Add(1)),
		sprite:   sprite,
		filename: filename,
	}
	d.history = newHistory(d)
	return d
}

// ID returns the process-unique document identity.
func (d *Document) ID() ObjectID { return d.id }

// History returns the document's undo history.
func (d *Document) History() *History { return d.history }

// Filename returns the document's file name (display hint only).
func (d *Document) Filename() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filename
}

// SetFilename changes the file name. A rename counts as a mutation.
func (d *Document) SetFilename(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filename != name {
		d.filename = name
		d.version++
	}
}

// Version increases on every mutation and rename.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Read calls fn with the sprite under a read lock. fn must not retain it.
func (d *Document) Read(fn func(s *Sprite)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.sprite)
}

// Modify applies fn under the write lock, bumps the version and records an
// undo state, which notifies the history observers.
func (d *Document) Modify(fn func(s *Sprite)) {
	d.mutate(fn)
	d.history.addUndoState()
}

// Undo reverts content through fn and notifies OnAfterUndo.
func (d *Document) Undo(fn func(s *Sprite)) bool {
	if !d.history.CanUndo() {
		return false
	}
	d.mutate(fn)
	d.history.undo()
	return true
}

// Redo reapplies content through fn and notifies OnAfterRedo.
func (d *Document) Redo(fn func(s *Sprite)) bool {
	if !d.history.CanRedo() {
		return false
	}
	d.mutate(fn)
	d.history.redo()
	return true
}

func (d *Document) mutate(fn func(s *Sprite)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn != nil {
		fn(d.sprite)
	}
	d.version++
}
