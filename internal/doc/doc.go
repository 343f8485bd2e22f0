// Package doc is the minimal in-memory editing model the recovery store
// works against.
//
// The model is deliberately small: a Document owns a Sprite made of layers,
// each layer holding at most one cel per frame, each cel pointing to a
// raster Image. Mutations go through Document.Modify, which bumps the
// document version and records an undo state on the document's History.
//
// Two observer capabilities are exposed:
//
//   - UndoObserver receives history notifications for one document.
//   - DocumentsObserver receives add/remove notifications from a Context.
//
// Observers are called synchronously on the mutating goroutine and outside
// of any document lock, so they may read the document but must not block.
package doc
