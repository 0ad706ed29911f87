package cache

// node is one entry in a namespace's LRU list, per spec.md §4.5's
// "doubly linked LRU with map" REDESIGN FLAG: prev/next are arena
// handles (indices), not pointers, so the list can be mutated under a
// single lock without chasing live pointers across goroutines.
type node struct {
	key       string
	value     []byte
	createdAt int64 // unix millis
	expireAt  int64 // unix millis; 0 means no expiry
	size      int64
	prev      int32
	next      int32
	inUse     bool
}

const nilHandle int32 = -1

// lru is one namespace's bytes-bounded doubly linked list, backed by an
// arena of nodes addressed by integer handle plus a key->handle map.
type lru struct {
	nodes    []node
	free     []int32
	byKey    map[string]int32
	head     int32
	tail     int32
}

func newLRU() *lru {
	return &lru{
		byKey: make(map[string]int32),
		head:  nilHandle,
		tail:  nilHandle,
	}
}

func (l *lru) alloc() int32 {
	if n := len(l.free); n > 0 {
		h := l.free[n-1]
		l.free = l.free[:n-1]
		return h
	}
	l.nodes = append(l.nodes, node{})
	return int32(len(l.nodes) - 1)
}

func (l *lru) at(h int32) *node { return &l.nodes[h] }

func (l *lru) unlink(h int32) {
	n := l.at(h)
	if n.prev != nilHandle {
		l.at(n.prev).next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilHandle {
		l.at(n.next).prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nilHandle, nilHandle
}

func (l *lru) pushFront(h int32) {
	n := l.at(h)
	n.prev = nilHandle
	n.next = l.head
	if l.head != nilHandle {
		l.at(l.head).prev = h
	}
	l.head = h
	if l.tail == nilHandle {
		l.tail = h
	}
}

func (l *lru) moveToFront(h int32) {
	if l.head == h {
		return
	}
	l.unlink(h)
	l.pushFront(h)
}

// insert creates a new node, placing it at the head of the list.
func (l *lru) insert(key string, value []byte, createdAt, expireAt int64, size int64) int32 {
	h := l.alloc()
	n := l.at(h)
	*n = node{
		key: key, value: value,
		createdAt: createdAt, expireAt: expireAt,
		size: size, inUse: true,
	}
	l.pushFront(h)
	l.byKey[key] = h
	return h
}

// remove detaches the node for key from the list and frees its slot,
// returning the evicted entry's byte size (0 if key was absent).
func (l *lru) remove(key string) int64 {
	h, ok := l.byKey[key]
	if !ok {
		return 0
	}
	size := l.at(h).size
	l.unlink(h)
	delete(l.byKey, key)
	l.at(h).value = nil
	l.at(h).inUse = false
	l.free = append(l.free, h)
	return size
}

// removeTail evicts the least-recently-used node, if any, returning its
// key, value and size.
func (l *lru) removeTail() (key string, value []byte, size int64, ok bool) {
	if l.tail == nilHandle {
		return "", nil, 0, false
	}
	n := l.at(l.tail)
	key, value, size = n.key, n.value, n.size
	l.remove(key)
	return key, value, size, true
}

func (l *lru) len() int { return len(l.byKey) }

// keysInOrder returns keys from most- to least-recently-used.
func (l *lru) keysInOrder() []string {
	keys := make([]string, 0, len(l.byKey))
	for h := l.head; h != nilHandle; h = l.at(h).next {
		keys = append(keys, l.at(h).key)
	}
	return keys
}
