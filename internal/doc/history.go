package doc

import "sync"

// UndoObserver is notified about history changes of one document.
type UndoObserver interface {
	OnAddUndoState(d *Document)
	OnAfterUndo(d *Document)
	OnAfterRedo(d *Document)
	OnClearRedo(d *Document)
}

// History counts undo/redo states and fans out notifications.
type History struct {
	doc *Document

	mu        sync.Mutex
	undoDepth int
	redoDepth int
	observers []UndoObserver
}

func newHistory(d *Document) *History {
	return &History{doc: d}
}

// AddObserver subscribes o. Adding the same observer twice is a no-op.
func (h *History) AddObserver(o UndoObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cur := range h.observers {
		if cur == o {
			return
		}
	}
	h.observers = append(h.observers, o)
}

// RemoveObserver unsubscribes o.
func (h *History) RemoveObserver(o UndoObserver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.observers {
		if cur == o {
			h.observers = append(h.observers[:i], h.observers[i+1:]...)
			return
		}
	}
}

// CanUndo reports whether an undo state is available.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.undoDepth > 0
}

// CanRedo reports whether a redo state is available.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.redoDepth > 0
}

// ClearRedo drops the redo states.
func (h *History) ClearRedo() {
	h.mu.Lock()
	h.redoDepth = 0
	obs := h.snapshot()
	h.mu.Unlock()
	for _, o := range obs {
		o.OnClearRedo(h.doc)
	}
}

func (h *History) addUndoState() {
	h.mu.Lock()
	h.undoDepth++
	cleared := h.redoDepth > 0
	h.redoDepth = 0
	obs := h.snapshot()
	h.mu.Unlock()
	for _, o := range obs {
		if cleared {
			o.OnClearRedo(h.doc)
		}
		o.OnAddUndoState(h.doc)
	}
}

func (h *History) undo() {
	h.mu.Lock()
	h.undoDepth--
	h.redoDepth++
	obs := h.snapshot()
	h.mu.Unlock()
	for _, o := range obs {
		o.OnAfterUndo(h.doc)
	}
}

func (h *History) redo() {
	h.mu.Lock()
	h.redoDepth--
	h.undoDepth++
	obs := h.snapshot()
	h.mu.Unlock()
	for _, o := range obs {
		o.OnAfterRedo(h.doc)
	}
}

// snapshot must be called with h.mu held.
func (h *History) snapshot() []UndoObserver {
	return append([]UndoObserver(nil), h.observers...)
}
