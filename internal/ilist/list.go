// Package ilist implements an intrusive doubly linked list and a circular
// "hand" list, mirroring _examples/original_source/src/lib/kernel/clist.h
// (and the plain list.h it builds on). Elements embed a Elem value rather
// than the list allocating nodes, so the scheduler's hot paths (enqueue,
// dequeue) never allocate -- spec.md §9 calls this out as a requirement to
// preserve in the reimplementation.
package ilist

// Elem is the intrusive link embedded inside list members, playing the
// role of struct list_elem in the original. owner lets callers recover
// the embedding struct from an Elem without a clist_entry-style macro;
// storing a pointer in an interface value does not allocate, so this
// stays consistent with the no-allocation requirement on these lists.
type Elem struct {
	next, prev *Elem
	list       *List
	owner      interface{}
}

// Owner returns the value passed to PushBack/PushFront/InsertBefore.
func (e *Elem) Owner() interface{} { return e.owner }

// List is a doubly linked list of embedded Elems with sentinel head/tail,
// matching struct list's head/tail sentinel design.
type List struct {
	head, tail Elem
	size       int
}

// Init must be called before using a List (zero value is not ready to
// use, matching list_init's explicit initialization requirement).
func (l *List) Init() {
	l.head.next = &l.tail
	l.head.prev = nil
	l.tail.prev = &l.head
	l.tail.next = nil
	l.size = 0
}

func (l *List) Len() int { return l.size }

func (l *List) Empty() bool { return l.size == 0 }

// Front returns the first element, or nil if empty.
func (l *List) Front() *Elem {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Back returns the last element, or nil if empty.
func (l *List) Back() *Elem {
	if l.Empty() {
		return nil
	}
	return l.tail.prev
}

// End returns the sentinel marking one-past-the-end, for iteration:
//
//	for e := l.Front(); e != l.End(); e = e.Next() { ... }
func (l *List) End() *Elem { return &l.tail }

func (e *Elem) Next() *Elem { return e.next }
func (e *Elem) Prev() *Elem { return e.prev }

// InList reports whether e is currently linked into some list.
func (e *Elem) InList() bool { return e.list != nil }

func (l *List) insertBefore(mark, e *Elem, owner interface{}) {
	e.prev = mark.prev
	e.next = mark
	mark.prev.next = e
	mark.prev = e
	e.list = l
	e.owner = owner
	l.size++
}

// PushBack inserts e at the tail.
func (l *List) PushBack(e *Elem, owner interface{}) {
	l.insertBefore(&l.tail, e, owner)
}

// PushFront inserts e at the head.
func (l *List) PushFront(e *Elem, owner interface{}) {
	l.insertBefore(l.head.next, e, owner)
}

// InsertBefore inserts e immediately before mark.
func (l *List) InsertBefore(mark, e *Elem, owner interface{}) {
	l.insertBefore(mark, e, owner)
}

// Remove unlinks e from whatever list it is on. O(1), matching
// list_remove.
func (e *Elem) Remove() {
	if e.list == nil {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.list.size--
	e.list = nil
	e.next = nil
	e.prev = nil
	e.owner = nil
}

// Circular is a circular list with a single "hand" cursor, matching
// struct clist: clist_hand/clist_go/clist_remove/clist_pop_hand.
// Operations preserve circularity: the hand always points somewhere
// valid unless the list is empty.
type Circular struct {
	hand *celem
	size int
}

// celem is the circular-list analogue of Elem; kept distinct from Elem
// because clock-list membership and plain-list membership are disjoint
// concerns in the frame table (an FTE sits only in the circular clock
// list, never in a plain List).
type celem struct {
	next, prev *celem
	owner      interface{}
}

// CElem is the intrusive link embedded for circular-list membership.
type CElem struct {
	c *celem
}

// init prepares a CElem to be inserted; owner is later returned by
// Circular.Hand and Circular.PopHand.
func (e *CElem) init(owner interface{}) {
	e.c = &celem{owner: owner}
}

func (c *Circular) Len() int    { return c.size }
func (c *Circular) Empty() bool { return c.size == 0 }

// PushBack binds e to owner and inserts it at the back of the ring, just before the current hand, matching
// clist_push_back. If the ring was empty the hand starts at e.
func (c *Circular) PushBack(e *CElem, owner interface{}) {
	e.init(owner)
	if c.hand == nil {
		e.c.next = e.c
		e.c.prev = e.c
		c.hand = e.c
	} else {
		last := c.hand.prev
		last.next = e.c
		e.c.prev = last
		e.c.next = c.hand
		c.hand.prev = e.c
	}
	c.size++
}

// Hand returns the owner the hand currently points at, or nil if empty.
func (c *Circular) Hand() interface{} {
	if c.hand == nil {
		return nil
	}
	return c.hand.owner
}

// Advance moves the hand forward one position (clist_go).
func (c *Circular) Advance() {
	if c.hand == nil {
		return
	}
	c.hand = c.hand.next
}

// removeCelem unlinks ce, fixing up the hand if it pointed at ce.
func (c *Circular) removeCelem(ce *celem) {
	if c.size == 0 {
		return
	}
	if c.size == 1 {
		c.hand = nil
	} else {
		ce.prev.next = ce.next
		ce.next.prev = ce.prev
		if c.hand == ce {
			c.hand = ce.next
		}
	}
	ce.next, ce.prev = nil, nil
	c.size--
}

// PopHand removes the element currently at the hand and advances the
// hand to the next entry (clist_pop_hand), returning the removed
// element's owner.
func (c *Circular) PopHand() interface{} {
	if c.hand == nil {
		return nil
	}
	ce := c.hand
	owner := ce.owner
	c.removeCelem(ce)
	return owner
}

// Remove removes an arbitrary, previously-inserted element.
func (c *Circular) Remove(e *CElem) {
	if e.c == nil {
		return
	}
	c.removeCelem(e.c)
	e.c = nil
}
