// Package tree models the directory snapshots carried by file-scan events.
package tree

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind distinguishes files from folders.
type Kind int

const (
	File Kind = iota
	Folder
)

func (k Kind) String() string {
	if k == Folder {
		return "folder"
	}
	return "file"
}

// Node is one entry of a scanned directory tree. Nodes are immutable after
// parsing; depth and parent links are computed by the layout engine and kept
// outside the tree.
type Node struct {
	Name     string
	Kind     Kind
	Size     float64
	MimeType string
	FileHash string
	Children []*Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// MaxDepth returns the depth of the deepest node, the root being depth 0.
func (n *Node) MaxDepth() int {
	if n == nil || n.IsLeaf() {
		return 0
	}
	deepest := 0
	for _, c := range n.Children {
		if d := c.MaxDepth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// Walk visits n and its descendants depth-first, passing the slash-joined
// path of names from the root. Returning false stops descent into a node's
// children.
func (n *Node) Walk(fn func(path string, node *Node) bool) {
	n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, *Node) bool) {
	path := prefix + "/" + n.Name
	if !fn(path, n) {
		return
	}
	for _, c := range n.Children {
		c.walk(path, fn)
	}
}

// Names returns the set of every node name in the subtree, lower-cased.
func (n *Node) Names() map[string]struct{} {
	names := make(map[string]struct{})
	n.Walk(func(_ string, node *Node) bool {
		names[strings.ToLower(node.Name)] = struct{}{}
		return true
	})
	return names
}

// wireNode is the on-disk shape. Scanner output wraps each child as
// {"type": ..., "data": {...}}; flattened exports inline the fields.
type wireNode struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Size     *float64          `json:"size"`
	MimeType string            `json:"mime_type"`
	FileHash string            `json:"file_hash"`
	Data     json.RawMessage   `json:"data"`
	Children []json.RawMessage `json:"children"`
}

// Parse decodes a tree_structure payload.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UnmarshalJSON implements json.Unmarshaler for both node schemas.
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode tree node: %w", err)
	}

	if len(w.Data) > 0 && w.Name == "" {
		var inner Node
		if err := json.Unmarshal(w.Data, &inner); err != nil {
			return err
		}
		if w.Type != "" {
			inner.Kind = parseKind(w.Type, len(inner.Children) > 0)
		}
		*n = inner
		return nil
	}

	children := make([]*Node, 0, len(w.Children))
	for i, raw := range w.Children {
		var child Node
		if err := json.Unmarshal(raw, &child); err != nil {
			return fmt.Errorf("child %d of %q: %w", i, w.Name, err)
		}
		children = append(children, &child)
	}

	size := 1.0
	if w.Size != nil {
		size = *w.Size
		if size < 0 {
			size = 0
		}
	}

	*n = Node{
		Name:     w.Name,
		Kind:     parseKind(w.Type, w.Children != nil),
		Size:     size,
		MimeType: w.MimeType,
		FileHash: w.FileHash,
	}
	if n.Kind == Folder {
		n.Children = children
	}
	return nil
}

// MarshalJSON emits the flattened schema.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"name": n.Name,
		"type": n.Kind.String(),
		"size": n.Size,
	}
	if n.MimeType != "" {
		out["mime_type"] = n.MimeType
	}
	if n.FileHash != "" {
		out["file_hash"] = n.FileHash
	}
	if n.Kind == Folder {
		children := n.Children
		if children == nil {
			children = []*Node{}
		}
		out["children"] = children
	}
	return json.Marshal(out)
}

func parseKind(s string, hasChildren bool) Kind {
	switch strings.ToLower(s) {
	case "folder", "directory", "dir":
		return Folder
	case "file":
		return File
	}
	if hasChildren {
		return Folder
	}
	return File
}
