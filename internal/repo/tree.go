package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Find returns the node with id, or nil.
func Find(root *Node, id string) *Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	for _, child := range root.Children {
		if found := Find(child, id); found != nil {
			return found
		}
	}
	return nil
}

// FindPath resolves a slash-separated path relative to root. An empty path
// returns root.
func FindPath(root *Node, p string) *Node {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return root
	}
	current := root
	for _, segment := range strings.Split(p, "/") {
		current = childNamed(current, segment)
		if current == nil {
			return nil
		}
	}
	return current
}

// PathOf returns the slash-separated path of id relative to root. ok is false
// when id is absent.
func PathOf(root *Node, id string) (string, bool) {
	chain := ancestry(root, id)
	if chain == nil {
		return "", false
	}
	names := make([]string, 0, len(chain)-1)
	for _, n := range chain[1:] {
		names = append(names, n.Name)
	}
	return strings.Join(names, "/"), true
}

// Update applies fn to the node with id. It reports whether the node existed.
func Update(root *Node, id string, fn func(*Node)) bool {
	node := Find(root, id)
	if node == nil {
		return false
	}
	fn(node)
	return true
}

// DeleteRecursive detaches the node with id and its whole subtree. The root
// itself cannot be deleted.
func DeleteRecursive(root *Node, id string) (*Node, error) {
	chain := ancestry(root, id)
	if chain == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if len(chain) == 1 {
		return nil, fmt.Errorf("%w: cannot delete repository root", ErrInvalidEdit)
	}
	parent := chain[len(chain)-2]
	for i, child := range parent.Children {
		if child.ID == id {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return child, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
}

// AddChild appends child under the folder parentID. Sibling names must be unique.
func AddChild(root *Node, parentID string, child *Node) error {
	parent := Find(root, parentID)
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, parentID)
	}
	if !parent.IsFolder() {
		return fmt.Errorf("%w: parent %s is not a folder", ErrInvalidEdit, parentID)
	}
	if child == nil || strings.TrimSpace(child.Name) == "" {
		return fmt.Errorf("%w: child name is required", ErrInvalidEdit)
	}
	if strings.Contains(child.Name, "/") {
		return fmt.Errorf("%w: child name %q must not contain '/'", ErrInvalidEdit, child.Name)
	}
	if childNamed(parent, child.Name) != nil {
		return fmt.Errorf("%w: %q already exists in %s", ErrInvalidEdit, child.Name, parent.Name)
	}
	parent.Children = append(parent.Children, child)
	return nil
}

// Paths lists every file path in the tree, sorted.
func Paths(root *Node) []string {
	var out []string
	walkFiles(root, "", func(p string, _ *Node) {
		out = append(out, p)
	})
	sort.Strings(out)
	return out
}

// Walk visits every file with its path.
func Walk(root *Node, fn func(path string, node *Node)) {
	walkFiles(root, "", fn)
}

func walkFiles(node *Node, prefix string, fn func(string, *Node)) {
	if node == nil {
		return
	}
	for _, child := range node.Children {
		p := child.Name
		if prefix != "" {
			p = prefix + "/" + child.Name
		}
		if child.IsFolder() {
			walkFiles(child, p, fn)
			continue
		}
		fn(p, child)
	}
}

// ancestry returns the chain root..id, or nil.
func ancestry(root *Node, id string) []*Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return []*Node{root}
	}
	for _, child := range root.Children {
		if chain := ancestry(child, id); chain != nil {
			return append([]*Node{root}, chain...)
		}
	}
	return nil
}

func childNamed(node *Node, name string) *Node {
	if node == nil {
		return nil
	}
	for _, child := range node.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// filesUnder lists file paths of node's subtree prefixed by its own path.
func filesUnder(node *Node, nodePath string) []string {
	if !node.IsFolder() {
		return []string{nodePath}
	}
	var out []string
	walkFiles(node, nodePath, func(p string, _ *Node) {
		out = append(out, p)
	})
	sort.Strings(out)
	return out
}
