package doc

import "sync"

// DocumentsObserver is notified when documents enter or leave a Context.
type DocumentsObserver interface {
	OnAddDocument(d *Document)
	OnRemoveDocument(d *Document)
}

// Context is the set of open documents.
type Context struct {
	mu        sync.Mutex
	docs      []*Document
	observers []DocumentsObserver
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{}
}

// AddObserver subscribes o.
func (c *Context) AddObserver(o DocumentsObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cur := range c.observers {
		if cur == o {
			return
		}
	}
	c.observers = append(c.observers, o)
}

// RemoveObserver unsubscribes o.
func (c *Context) RemoveObserver(o DocumentsObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cur := range c.observers {
		if cur == o {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// Documents returns the open documents in insertion order.
func (c *Context) Documents() []*Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Document(nil), c.docs...)
}

// Add opens d and notifies observers.
func (c *Context) Add(d *Document) {
	c.mu.Lock()
	for _, cur := range c.docs {
		if cur == d {
			c.mu.Unlock()
			return
		}
	}
	c.docs = append(c.docs, d)
	obs := append([]DocumentsObserver(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range obs {
		o.OnAddDocument(d)
	}
}

// Remove closes d and notifies observers. Unknown documents are ignored.
func (c *Context) Remove(d *Document) {
	c.mu.Lock()
	idx := -1
	for i, cur := range c.docs {
		if cur == d {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}
	c.docs = append(c.docs[:idx], c.docs[idx+1:]...)
	obs := append([]DocumentsObserver(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range obs {
		o.OnRemoveDocument(d)
	}
}
