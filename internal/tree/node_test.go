package tree

import (
	"encoding/json"
	"testing"
)

func TestParseFlatSchema(t *testing.T) {
	data := `{
		"name": "root", "type": "folder", "size": 100,
		"children": [
			{"name": "a.go", "type": "file", "size": 30, "mime_type": "text/x-go"},
			{"name": "docs", "type": "folder", "children": []}
		]
	}`
	root, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if root.Kind != Folder {
		t.Errorf("expected folder, got %v", root.Kind)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
	file := root.Children[0]
	if file.Kind != File || file.Size != 30 || file.MimeType != "text/x-go" {
		t.Errorf("unexpected file node: %+v", file)
	}
	docs := root.Children[1]
	if docs.Kind != Folder {
		t.Errorf("expected docs to be a folder, got %v", docs.Kind)
	}
	if docs.Size != 1 {
		t.Errorf("expected absent size to default to 1, got %v", docs.Size)
	}
}

func TestParseWrappedScannerSchema(t *testing.T) {
	data := `{
		"name": "root", "path": "", "size": 12, "file_count": 2, "depth": 0,
		"children": [
			{"type": "folder", "data": {"name": "src", "size": 10, "children": [
				{"type": "file", "data": {"name": "app.py", "size": 10, "mime_type": "text/x-python", "file_hash": "abc"}}
			]}},
			{"type": "file", "data": {"name": "README.md", "size": 2}}
		]
	}`
	root, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if root.Kind != Folder || len(root.Children) != 2 {
		t.Fatalf("unexpected root: kind=%v children=%d", root.Kind, len(root.Children))
	}
	src := root.Children[0]
	if src.Name != "src" || src.Kind != Folder || len(src.Children) != 1 {
		t.Fatalf("unexpected src: %+v", src)
	}
	app := src.Children[0]
	if app.Name != "app.py" || app.Kind != File || app.FileHash != "abc" {
		t.Errorf("unexpected app.py: %+v", app)
	}
	if root.Count() != 4 {
		t.Errorf("expected 4 nodes, got %d", root.Count())
	}
	if root.MaxDepth() != 2 {
		t.Errorf("expected max depth 2, got %d", root.MaxDepth())
	}
}

func TestParseNegativeSizeClampsToZero(t *testing.T) {
	root, err := Parse([]byte(`{"name": "x", "type": "file", "size": -5}`))
	if err != nil {
		t.Fatal(err)
	}
	if root.Size != 0 {
		t.Errorf("expected 0, got %v", root.Size)
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte(`{"name": 3}`)); err == nil {
		t.Error("expected error for non-string name")
	}
}

func TestWalkPaths(t *testing.T) {
	root := &Node{Name: "root", Kind: Folder, Children: []*Node{
		{Name: "src", Kind: Folder, Children: []*Node{{Name: "main.go"}}},
		{Name: "go.mod"},
	}}
	var paths []string
	root.Walk(func(path string, _ *Node) bool {
		paths = append(paths, path)
		return true
	})
	want := []string{"/root", "/root/src", "/root/src/main.go", "/root/go.mod"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d paths, got %v", len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path %d: expected %s, got %s", i, want[i], paths[i])
		}
	}
}

func TestMarshalFlattened(t *testing.T) {
	root := &Node{Name: "root", Kind: Folder, Size: 3, Children: []*Node{{Name: "a", Size: 3, MimeType: "text/plain"}}}
	data, err := json.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != "root" || len(back.Children) != 1 || back.Children[0].MimeType != "text/plain" {
		t.Errorf("unexpected decoded tree: %s", data)
	}
}
