package server

import "container/list"

// lru is a size bounded map that drops its least recently used entry when
// full. It is not safe for concurrent use; callers hold their own lock.
type lru[V any] struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List // front is the most recent
}

type lruEntry[V any] struct {
	key   string
	value V
}

func newLRU[V any](capacity int) *lru[V] {
	return &lru[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the value for key and marks it most recently used.
func (l *lru[V]) get(key string) (V, bool) {
	elem, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.order.MoveToFront(elem)
	return elem.Value.(*lruEntry[V]).value, true
}

// add stores value under key. It reports whether another entry was evicted
// to make room.
func (l *lru[V]) add(key string, value V) bool {
	if elem, ok := l.items[key]; ok {
		elem.Value.(*lruEntry[V]).value = value
		l.order.MoveToFront(elem)
		return false
	}

	evicted := false
	if l.capacity > 0 && l.order.Len() >= l.capacity {
		if back := l.order.Back(); back != nil {
			l.order.Remove(back)
			delete(l.items, back.Value.(*lruEntry[V]).key)
			evicted = true
		}
	}
	l.items[key] = l.order.PushFront(&lruEntry[V]{key: key, value: value})
	return evicted
}

// removeIf drops every entry whose value matches and returns how many went.
func (l *lru[V]) removeIf(match func(V) bool) int {
	removed := 0
	for e := l.order.Back(); e != nil; {
		prev := e.Prev()
		if entry := e.Value.(*lruEntry[V]); match(entry.value) {
			l.order.Remove(e)
			delete(l.items, entry.key)
			removed++
		}
		e = prev
	}
	return removed
}

func (l *lru[V]) len() int {
	return l.order.Len()
}
