// Package prefix keeps the subscription set of a SUB socket.
package prefix

import (
	"strings"
)

// Tree stores prefixes with a reference count each. A node's children are
// keyed by their full prefix and never prefix one another.
type Tree struct {
	root node
	size int
}

type node struct {
	key      string
	children map[string]*node
	count    int
}

// Add a reference to prefix p.
func (t *Tree) Add(p []byte) {
	if t.root.put(string(p)) {
		t.size++
	}
}

// Remove a reference to p. It is false if p was never added.
func (t *Tree) Remove(p []byte) bool {
	removed, gone := t.root.remove(string(p), nil)
	if gone {
		t.size--
	}
	return removed
}

// Match is true if some stored prefix starts b.
func (t *Tree) Match(b []byte) bool {
	return t.root.match(string(b))
}

// Len is the number of distinct prefixes.
func (t *Tree) Len() int {
	return t.size
}

// put reports whether key is new.
func (n *node) put(key string) bool {
	if key == n.key {
		n.count++
		return n.count == 1
	}

	var adopted map[string]*node
	for childKey, child := range n.children {
		if len(childKey) > len(key) {
			if strings.HasPrefix(childKey, key) {
				if adopted == nil {
					adopted = make(map[string]*node)
				}
				adopted[childKey] = child
				delete(n.children, childKey)
			}
		} else if strings.HasPrefix(key, childKey) {
			return child.put(key)
		}
	}

	if n.children == nil {
		n.children = make(map[string]*node)
	}
	n.children[key] = &node{key: key, children: adopted, count: 1}
	return true
}

// remove drops one reference to key. Nodes left without references hand
// their children to the parent.
func (n *node) remove(key string, parent *node) (removed, gone bool) {
	if key == n.key {
		if n.count == 0 {
			return false, false
		}
		n.count--
		if n.count > 0 {
			return true, false
		}
		if parent != nil {
			delete(parent.children, n.key)
			for childKey, child := range n.children {
				if parent.children == nil {
					parent.children = make(map[string]*node)
				}
				parent.children[childKey] = child
			}
		}
		return true, true
	}

	for childKey, child := range n.children {
		if strings.HasPrefix(key, childKey) {
			return child.remove(key, n)
		}
	}
	return false, false
}

func (n *node) match(query string) bool {
	if n.count > 0 {
		return true
	}
	for childKey, child := range n.children {
		if strings.HasPrefix(query, childKey) {
			return child.match(query)
		}
	}
	return false
}
