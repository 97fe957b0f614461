// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package cache

import (
	"container/list"
)

// lru is a size-bounded recency list. It is not safe for concurrent use.
type lru struct {
	size int

	elements map[Key]*list.Element
	access   *list.List // *entry
}

type entry struct {
	key   Key
	value interface{}
	stale bool
}

func newLRU(size int) *lru {
	return &lru{
		size:     size,
		elements: make(map[Key]*list.Element, size),
		access:   list.New(),
	}
}

func (l *lru) load(key Key) (*entry, bool) {
	elem, ok := l.elements[key]
	if !ok {
		return nil, false
	}

	l.access.MoveToFront(elem)

	return elem.Value.(*entry), true
}

// put stores val under key and returns how many entries were evicted.
func (l *lru) put(key Key, val interface{}) int {
	if elem, ok := l.elements[key]; ok {
		elem.Value = &entry{key: key, value: val}
		l.access.MoveToFront(elem)

		return 0
	}

	l.elements[key] = l.access.PushFront(&entry{key: key, value: val})

	evicted := 0

	for len(l.elements) > l.size {
		back := l.access.Back()
		delete(l.elements, back.Value.(*entry).key)
		l.access.Remove(back)

		evicted++
	}

	return evicted
}

func (l *lru) remove(key Key) {
	if elem, ok := l.elements[key]; ok {
		delete(l.elements, key)
		l.access.Remove(elem)
	}
}

// removeIf drops every entry matching fn and returns how many it dropped.
func (l *lru) removeIf(fn func(Key) bool) int {
	n := 0

	for key, elem := range l.elements {
		if fn(key) {
			delete(l.elements, key)
			l.access.Remove(elem)

			n++
		}
	}

	return n
}

// markIf flags every entry matching fn as stale.
func (l *lru) markIf(fn func(Key) bool) int {
	n := 0

	for key, elem := range l.elements {
		if fn(key) {
			elem.Value.(*entry).stale = true
			n++
		}
	}

	return n
}

func (l *lru) len() int {
	return len(l.elements)
}

func (l *lru) purge() {
	l.elements = make(map[Key]*list.Element, l.size)
	l.access.Init()
}
