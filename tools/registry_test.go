package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crewtui/storage"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRegistry([]string{dir}, store), dir
}

func run(t *testing.T, r *Registry, name string, args map[string]any) string {
	t.Helper()
	tool, ok := r.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return tool.Run(context.Background(), args)
}

func TestWriteThenReadFile(t *testing.T) {
	r, dir := newTestRegistry(t)
	path := filepath.Join(dir, "notes.txt")

	out := run(t, r, "write_file", map[string]any{"filepath": path, "content": "hello crew"})
	if !strings.Contains(out, "Successfully wrote") {
		t.Fatalf("write_file = %q", out)
	}

	out = run(t, r, "read_file", map[string]any{"filepath": path})
	if out != "hello crew" {
		t.Errorf("read_file = %q", out)
	}
}

func TestSandboxRejectsOutsidePath(t *testing.T) {
	r, _ := newTestRegistry(t)

	out := run(t, r, "read_file", map[string]any{"filepath": "/etc/passwd"})
	if !strings.Contains(out, "access denied") {
		t.Errorf("expected access denied, got %q", out)
	}

	// Traversal out of the root is caught after resolution
	out = run(t, r, "read_file", map[string]any{"filepath": "../../etc/passwd"})
	if !strings.HasPrefix(out, "Error") {
		t.Errorf("expected error for traversal, got %q", out)
	}
}

func TestDeleteFileRefusesDirectory(t *testing.T) {
	r, dir := newTestRegistry(t)
	sub := filepath.Join(dir, "subdir")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	out := run(t, r, "delete_file", map[string]any{"filepath": sub})
	if !strings.Contains(out, "not a file") {
		t.Errorf("delete_file on dir = %q", out)
	}
}

func TestMoveAndCopyFile(t *testing.T) {
	r, dir := newTestRegistry(t)
	src := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	copied := filepath.Join(dir, "b.txt")
	if out := run(t, r, "copy_file", map[string]any{"source": src, "destination": copied}); !strings.Contains(out, "Copied") {
		t.Fatalf("copy_file = %q", out)
	}

	moved := filepath.Join(dir, "c.txt")
	if out := run(t, r, "move_file", map[string]any{"source": src, "destination": moved}); !strings.Contains(out, "Moved") {
		t.Fatalf("move_file = %q", out)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after move")
	}
	if _, err := os.Stat(copied); err != nil {
		t.Error("copy should remain")
	}
}

func TestListDirectoryMarksDirs(t *testing.T) {
	r, dir := newTestRegistry(t)
	os.Mkdir(filepath.Join(dir, "pkg"), 0755)
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644)

	out := run(t, r, "list_directory", map[string]any{"path": dir})
	if !strings.Contains(out, "pkg/") || !strings.Contains(out, "main.go") {
		t.Errorf("list_directory = %q", out)
	}
}

func TestSearchInFiles(t *testing.T) {
	r, dir := newTestRegistry(t)
	os.WriteFile(filepath.Join(dir, "x.go"), []byte("func Parse() {}\nfunc Render() {}\n"), 0644)

	out := run(t, r, "search_in_files", map[string]any{"pattern": "func Parse"})
	if !strings.Contains(out, "x.go:1") {
		t.Errorf("search_in_files = %q", out)
	}

	out = run(t, r, "search_in_files", map[string]any{"pattern": "["})
	if !strings.Contains(out, "invalid pattern") {
		t.Errorf("bad regex should report, got %q", out)
	}
}

func TestFindReferencesMatchesWholeWord(t *testing.T) {
	r, dir := newTestRegistry(t)
	os.WriteFile(filepath.Join(dir, "x.go"), []byte("Parse()\nParser()\n"), 0644)

	out := run(t, r, "find_references", map[string]any{"pattern": "Parse"})
	if !strings.Contains(out, "x.go:1") {
		t.Errorf("missing reference: %q", out)
	}
	if strings.Contains(out, "x.go:2") {
		t.Errorf("Parser should not match whole-word Parse: %q", out)
	}
}

func TestGetProjectStructure(t *testing.T) {
	r, dir := newTestRegistry(t)
	os.MkdirAll(filepath.Join(dir, "cmd", "app"), 0755)
	os.WriteFile(filepath.Join(dir, "cmd", "app", "main.go"), nil, 0644)
	os.MkdirAll(filepath.Join(dir, ".git"), 0755)

	out := run(t, r, "get_project_structure", map[string]any{"path": dir})
	if !strings.Contains(out, "cmd/") || !strings.Contains(out, "main.go") {
		t.Errorf("tree missing entries: %q", out)
	}
	if strings.Contains(out, ".git") {
		t.Errorf("tree should skip .git: %q", out)
	}
}

func TestAnalyzeCode(t *testing.T) {
	r, dir := newTestRegistry(t)
	src := "package p\n\nfunc A() {}\n\n// TODO handle B\nfunc B() {}\n"
	os.WriteFile(filepath.Join(dir, "p.go"), []byte(src), 0644)

	out := run(t, r, "analyze_code", map[string]any{"filepath": filepath.Join(dir, "p.go")})
	if !strings.Contains(out, "2 declarations") || !strings.Contains(out, "1 TODO") {
		t.Errorf("analyze_code = %q", out)
	}
}

func TestMemoryTools(t *testing.T) {
	r, _ := newTestRegistry(t)

	if out := run(t, r, "save_memory", map[string]any{"key": "lang", "value": "Go 1.25"}); !strings.Contains(out, "Saved") {
		t.Fatalf("save_memory = %q", out)
	}
	if out := run(t, r, "recall_memory", map[string]any{"query": "lang"}); !strings.Contains(out, "Go 1.25") {
		t.Errorf("recall_memory = %q", out)
	}
	if out := run(t, r, "recall_memory", map[string]any{"query": "nothing-here"}); out != "No matching memories." {
		t.Errorf("empty recall = %q", out)
	}
	if out := run(t, r, "add_to_context", map[string]any{"content": "prefer table tests"}); !strings.Contains(out, "Added") {
		t.Errorf("add_to_context = %q", out)
	}
}

func TestContextNotesComeBackThroughRecall(t *testing.T) {
	r, _ := newTestRegistry(t)

	if out := run(t, r, "add_to_context", map[string]any{"content": "the deploy target is staging-7"}); !strings.Contains(out, "Added") {
		t.Fatalf("add_to_context = %q", out)
	}

	out := run(t, r, "recall_memory", map[string]any{"query": "staging-7"})
	if !strings.Contains(out, "staging-7") || !strings.Contains(out, "Context note") {
		t.Errorf("recall_memory should surface context notes: %q", out)
	}

	// Notes that don't match the query stay out.
	if out := run(t, r, "recall_memory", map[string]any{"query": "production"}); out != "No matching memories." {
		t.Errorf("unrelated recall = %q", out)
	}

	// An empty query lists every recent note.
	if out := run(t, r, "recall_memory", map[string]any{"query": ""}); !strings.Contains(out, "staging-7") {
		t.Errorf("empty query should list notes: %q", out)
	}
}

func TestMemoryToolsWithoutStore(t *testing.T) {
	r := NewRegistry([]string{t.TempDir()}, nil)
	out := run(t, r, "save_memory", map[string]any{"key": "k", "value": "v"})
	if !strings.Contains(out, "not available") {
		t.Errorf("save_memory without store = %q", out)
	}
}

func TestRunCommand(t *testing.T) {
	r, _ := newTestRegistry(t)

	out := run(t, r, "run_command", map[string]any{"command": "echo hi"})
	if strings.TrimSpace(out) != "hi" {
		t.Errorf("run_command = %q", out)
	}

	out = run(t, r, "run_command", map[string]any{"command": "exit 3"})
	if !strings.Contains(out, "Command failed") {
		t.Errorf("failing command should report: %q", out)
	}
}

func TestDangerousClassification(t *testing.T) {
	r, _ := newTestRegistry(t)

	for _, name := range []string{"write_file", "delete_file", "move_file", "copy_file", "append_to_file", "run_command", "run_code"} {
		if !r.IsDangerous(name) {
			t.Errorf("%s should be dangerous", name)
		}
	}
	for _, name := range []string{"read_file", "list_directory", "search_in_files", "save_memory"} {
		if r.IsDangerous(name) {
			t.Errorf("%s should not be dangerous", name)
		}
	}
}

func TestDefinitionsFiltersUnknownNames(t *testing.T) {
	r, _ := newTestRegistry(t)

	defs := r.Definitions([]string{"read_file", "no_such_tool", "run_command"})
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	if defs[0].Name != "read_file" || defs[1].Name != "run_command" {
		t.Errorf("unexpected order: %s, %s", defs[0].Name, defs[1].Name)
	}
}

func TestRegistryHasFullToolSet(t *testing.T) {
	r, _ := newTestRegistry(t)
	if got := len(r.Names()); got != 19 {
		t.Errorf("registered %d tools, want 19", got)
	}
}
