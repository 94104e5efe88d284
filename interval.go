package calc

// intervalTree is an augmented treap of closed row intervals. every node
// keeps the largest upper bound in its subtree, so a stabbing query only
// descends into subtrees that can contain a match: O(log N + k).
type intervalTree[T any] struct {
	root *intervalNode[T]
	size int
}

type intervalNode[T any] struct {
	lo, hi   uint32
	id       uint64
	maxHi    uint32
	priority uint64
	item     T
	left     *intervalNode[T]
	right    *intervalNode[T]
}

// treapPriority spreads sequential ids into pseudo-random priorities
// (splitmix64)
func treapPriority(id uint64) uint64 {
	z := id + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (n *intervalNode[T]) fix() {
	n.maxHi = n.hi
	if n.left != nil && n.left.maxHi > n.maxHi {
		n.maxHi = n.left.maxHi
	}
	if n.right != nil && n.right.maxHi > n.maxHi {
		n.maxHi = n.right.maxHi
	}
}

// before orders nodes by lower bound, then id
func before[T any](lo uint32, id uint64, n *intervalNode[T]) bool {
	return lo < n.lo || (lo == n.lo && id < n.id)
}

func rotateRight[T any](n *intervalNode[T]) *intervalNode[T] {
	l := n.left
	n.left = l.right
	l.right = n
	n.fix()
	l.fix()
	return l
}

func rotateLeft[T any](n *intervalNode[T]) *intervalNode[T] {
	r := n.right
	n.right = r.left
	r.left = n
	n.fix()
	r.fix()
	return r
}

// insert adds the interval [lo, hi] under a unique id
func (t *intervalTree[T]) insert(lo, hi uint32, id uint64, item T) {
	node := &intervalNode[T]{lo: lo, hi: hi, id: id, maxHi: hi, priority: treapPriority(id), item: item}
	t.root = insertNode(t.root, node)
	t.size++
}

func insertNode[T any](n, node *intervalNode[T]) *intervalNode[T] {
	if n == nil {
		return node
	}
	if before(node.lo, node.id, n) {
		n.left = insertNode(n.left, node)
		if n.left.priority > n.priority {
			n = rotateRight(n)
		}
	} else {
		n.right = insertNode(n.right, node)
		if n.right.priority > n.priority {
			n = rotateLeft(n)
		}
	}
	n.fix()
	return n
}

// remove deletes the interval with the given lower bound and id
func (t *intervalTree[T]) remove(lo uint32, id uint64) bool {
	var removed bool
	t.root, removed = removeNode(t.root, lo, id)
	if removed {
		t.size--
	}
	return removed
}

func removeNode[T any](n *intervalNode[T], lo uint32, id uint64) (*intervalNode[T], bool) {
	if n == nil {
		return nil, false
	}
	var removed bool
	switch {
	case n.lo == lo && n.id == id:
		return mergeNodes(n.left, n.right), true
	case before(lo, id, n):
		n.left, removed = removeNode(n.left, lo, id)
	default:
		n.right, removed = removeNode(n.right, lo, id)
	}
	n.fix()
	return n, removed
}

// mergeNodes joins two treaps where every key of a precedes every key of b
func mergeNodes[T any](a, b *intervalNode[T]) *intervalNode[T] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.priority > b.priority {
		a.right = mergeNodes(a.right, b)
		a.fix()
		return a
	}
	b.left = mergeNodes(a, b.left)
	b.fix()
	return b
}

// stab calls fn for every interval containing x
func (t *intervalTree[T]) stab(x uint32, fn func(item T)) {
	t.overlap(x, x, fn)
}

// overlap calls fn for every interval intersecting [lo, hi]
func (t *intervalTree[T]) overlap(lo, hi uint32, fn func(item T)) {
	var visit func(n *intervalNode[T])
	visit = func(n *intervalNode[T]) {
		if n == nil || n.maxHi < lo {
			return
		}
		visit(n.left)
		if n.lo > hi {
			return
		}
		if n.hi >= lo {
			fn(n.item)
		}
		visit(n.right)
	}
	visit(t.root)
}

func (t *intervalTree[T]) len() int {
	return t.size
}
