// Package tools implements the built-in tool set and the invocation pipeline
// that validates, gates and dispatches tool calls from model responses.
//
// Every tool has the same contract: (name, arguments) -> text. Errors are
// folded into the returned text, never raised past the pipeline boundary;
// the model is expected to read the error and react.
package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"crewtui/storage"
)

// Func is one tool body. Output is always text; errors are folded in.
type Func func(ctx context.Context, args map[string]any) string

// Tool pairs a callable body with its wire definition.
type Tool struct {
	Def       mcptypes.Tool
	Dangerous bool
	Run       Func
}

// Registry holds the built-in tools and the sandbox roots they may touch.
type Registry struct {
	roots  []string
	memory *storage.MemoryStore
	tools  map[string]*Tool
	order  []string
}

// Tools that mutate state or execute code always require confirmation under
// the "dangerous" policy.
var dangerousTools = map[string]bool{
	"write_file":     true,
	"delete_file":    true,
	"move_file":      true,
	"copy_file":      true,
	"append_to_file": true,
	"run_command":    true,
	"run_code":       true,
}

const (
	maxOutputBytes  = 16 * 1024
	maxFetchBytes   = 64 * 1024
	maxSearchHits   = 100
	maxTreeDepth    = 4
	maxContextNotes = 20
)

// NewRegistry builds the tool set. roots are the absolute directories file
// tools may touch; memory backs the memory/context tools and may be nil,
// in which case those tools report themselves unavailable.
func NewRegistry(roots []string, memory *storage.MemoryStore) *Registry {
	r := &Registry{
		roots:  roots,
		memory: memory,
		tools:  make(map[string]*Tool),
	}
	r.registerAll()
	return r
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// IsDangerous reports whether a tool is in the always-confirm subset.
func (r *Registry) IsDangerous(name string) bool {
	return dangerousTools[name]
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	return r.order
}

// Definitions returns the wire definitions for the named tools, skipping
// names the registry doesn't know (they may belong to an external server).
func (r *Registry) Definitions(allow []string) []mcptypes.Tool {
	defs := make([]mcptypes.Tool, 0, len(allow))
	for _, name := range allow {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Def)
		}
	}
	return defs
}

func (r *Registry) register(def mcptypes.Tool, fn Func) {
	r.tools[def.Name] = &Tool{
		Def:       def,
		Dangerous: dangerousTools[def.Name],
		Run:       fn,
	}
	r.order = append(r.order, def.Name)
}

// safePath resolves a path and checks it against the sandbox roots.
func (r *Registry) safePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	for _, root := range r.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("access denied to path %s", path)
}

func (r *Registry) workDir() string {
	if len(r.roots) > 0 {
		return r.roots[0]
	}
	return "."
}

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func strArgDefault(args map[string]any, key, def string) string {
	if v := strArg(args, key); v != "" {
		return v
	}
	return def
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... (truncated, %d bytes total)", len(s))
}

func objectSchema(required []string, props map[string]any) mcptypes.ToolInputSchema {
	return mcptypes.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func (r *Registry) registerAll() {
	r.register(mcptypes.Tool{
		Name:        "read_file",
		Description: "Reads a file and returns its content.",
		InputSchema: objectSchema([]string{"filepath"}, map[string]any{
			"filepath": stringProp("The path to the file to read."),
		}),
	}, r.readFile)

	r.register(mcptypes.Tool{
		Name:        "write_file",
		Description: "Writes content to a file. Overwrites if exists.",
		InputSchema: objectSchema([]string{"filepath", "content"}, map[string]any{
			"filepath": stringProp("The path to the file to write."),
			"content":  stringProp("The content to write to the file."),
		}),
	}, r.writeFile)

	r.register(mcptypes.Tool{
		Name:        "list_directory",
		Description: "Lists files and directories in the given path.",
		InputSchema: objectSchema(nil, map[string]any{
			"path": stringProp("The directory path to list. Defaults to the working directory."),
		}),
	}, r.listDirectory)

	r.register(mcptypes.Tool{
		Name:        "delete_file",
		Description: "Deletes a file.",
		InputSchema: objectSchema([]string{"filepath"}, map[string]any{
			"filepath": stringProp("The path to the file to delete."),
		}),
	}, r.deleteFile)

	r.register(mcptypes.Tool{
		Name:        "move_file",
		Description: "Moves or renames a file.",
		InputSchema: objectSchema([]string{"source", "destination"}, map[string]any{
			"source":      stringProp("Source path."),
			"destination": stringProp("Destination path."),
		}),
	}, r.moveFile)

	r.register(mcptypes.Tool{
		Name:        "copy_file",
		Description: "Copies a file.",
		InputSchema: objectSchema([]string{"source", "destination"}, map[string]any{
			"source":      stringProp("Source path."),
			"destination": stringProp("Destination path."),
		}),
	}, r.copyFile)

	r.register(mcptypes.Tool{
		Name:        "append_to_file",
		Description: "Appends content to an existing file.",
		InputSchema: objectSchema([]string{"filepath", "content"}, map[string]any{
			"filepath": stringProp("Path to file."),
			"content":  stringProp("Content to append."),
		}),
	}, r.appendToFile)

	r.register(mcptypes.Tool{
		Name:        "get_file_info",
		Description: "Returns metadata about a file.",
		InputSchema: objectSchema([]string{"filepath"}, map[string]any{
			"filepath": stringProp("Path to file."),
		}),
	}, r.getFileInfo)

	r.register(mcptypes.Tool{
		Name:        "run_command",
		Description: "Executes a shell command inside the allowed directories.",
		InputSchema: objectSchema([]string{"command"}, map[string]any{
			"command": stringProp("The shell command to execute."),
		}),
	}, r.runCommand)

	r.register(mcptypes.Tool{
		Name:        "run_code",
		Description: "Executes a Python code snippet inside the allowed directories.",
		InputSchema: objectSchema([]string{"code"}, map[string]any{
			"code": stringProp("The code to execute."),
		}),
	}, r.runCode)

	r.register(mcptypes.Tool{
		Name:        "search_in_files",
		Description: "Searches for a regex pattern in files within a directory.",
		InputSchema: objectSchema([]string{"pattern"}, map[string]any{
			"pattern": stringProp("The regex pattern to search for."),
			"path":    stringProp("The directory to search in. Defaults to the working directory."),
		}),
	}, r.searchInFiles)

	r.register(mcptypes.Tool{
		Name:        "get_project_structure",
		Description: "Returns a tree view of the project structure.",
		InputSchema: objectSchema(nil, map[string]any{
			"path": stringProp("Root of the tree. Defaults to the working directory."),
		}),
	}, r.getProjectStructure)

	r.register(mcptypes.Tool{
		Name:        "analyze_code",
		Description: "Performs basic static analysis on a source file.",
		InputSchema: objectSchema([]string{"filepath"}, map[string]any{
			"filepath": stringProp("Path to the source file."),
		}),
	}, r.analyzeCode)

	r.register(mcptypes.Tool{
		Name:        "find_references",
		Description: "Finds references to a symbol (function, type or variable name) in the project.",
		InputSchema: objectSchema([]string{"pattern"}, map[string]any{
			"pattern": stringProp("The symbol to look up."),
			"path":    stringProp("The directory to search in. Defaults to the working directory."),
		}),
	}, r.findReferences)

	r.register(mcptypes.Tool{
		Name:        "save_memory",
		Description: "Saves a piece of information to persistent memory.",
		InputSchema: objectSchema([]string{"key", "value"}, map[string]any{
			"key":   stringProp("Memory key."),
			"value": stringProp("Memory value."),
		}),
	}, r.saveMemory)

	r.register(mcptypes.Tool{
		Name:        "recall_memory",
		Description: "Recalls memory based on a query.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query": stringProp("Query to search memory."),
		}),
	}, r.recallMemory)

	r.register(mcptypes.Tool{
		Name:        "add_to_context",
		Description: "Adds a note to the shared context.",
		InputSchema: objectSchema([]string{"content"}, map[string]any{
			"content": stringProp("Information to add to permanent context."),
		}),
	}, r.addToContext)

	r.register(mcptypes.Tool{
		Name:        "web_search",
		Description: "Searches the web.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query": stringProp("Search query."),
		}),
	}, r.webSearch)

	r.register(mcptypes.Tool{
		Name:        "fetch_url",
		Description: "Fetches a URL and returns its raw content.",
		InputSchema: objectSchema([]string{"url"}, map[string]any{
			"url": stringProp("URL to fetch."),
		}),
	}, r.fetchURL)
}

func (r *Registry) readFile(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArg(args, "filepath"))
	if err != nil {
		return "Error: " + err.Error()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err)
	}
	return truncate(string(data), maxOutputBytes)
}

func (r *Registry) writeFile(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArg(args, "filepath"))
	if err != nil {
		return "Error: " + err.Error()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("Error writing file: %v", err)
		}
	}
	if err := os.WriteFile(path, []byte(strArg(args, "content")), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}
	return fmt.Sprintf("Successfully wrote to %s", strArg(args, "filepath"))
}

func (r *Registry) listDirectory(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArgDefault(args, "path", r.workDir()))
	if err != nil {
		return "Error: " + err.Error()
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Sprintf("Error listing directory: %v", err)
	}
	if len(entries) == 0 {
		return "(Empty directory)"
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (r *Registry) deleteFile(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArg(args, "filepath"))
	if err != nil {
		return "Error: " + err.Error()
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Sprintf("Error: %s is not a file", strArg(args, "filepath"))
	}
	if err := os.Remove(path); err != nil {
		return fmt.Sprintf("Error deleting file: %v", err)
	}
	return fmt.Sprintf("Successfully deleted %s", strArg(args, "filepath"))
}

func (r *Registry) moveFile(_ context.Context, args map[string]any) string {
	src, err := r.safePath(strArg(args, "source"))
	if err != nil {
		return "Error: " + err.Error()
	}
	dst, err := r.safePath(strArg(args, "destination"))
	if err != nil {
		return "Error: " + err.Error()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Sprintf("Error moving file: %v", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Sprintf("Error moving file: %v", err)
	}
	return fmt.Sprintf("Moved %s to %s", strArg(args, "source"), strArg(args, "destination"))
}

func (r *Registry) copyFile(_ context.Context, args map[string]any) string {
	src, err := r.safePath(strArg(args, "source"))
	if err != nil {
		return "Error: " + err.Error()
	}
	dst, err := r.safePath(strArg(args, "destination"))
	if err != nil {
		return "Error: " + err.Error()
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Sprintf("Error copying file: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Sprintf("Error copying file: %v", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Sprintf("Error copying file: %v", err)
	}
	return fmt.Sprintf("Copied %s to %s", strArg(args, "source"), strArg(args, "destination"))
}

func (r *Registry) appendToFile(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArg(args, "filepath"))
	if err != nil {
		return "Error: " + err.Error()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Sprintf("Error appending to file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strArg(args, "content")); err != nil {
		return fmt.Sprintf("Error appending to file: %v", err)
	}
	return fmt.Sprintf("Appended to %s", strArg(args, "filepath"))
}

func (r *Registry) getFileInfo(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArg(args, "filepath"))
	if err != nil {
		return "Error: " + err.Error()
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Sprintf("Error getting file info: %v", err)
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("%s: %s, %d bytes, mode %s, modified %s",
		strArg(args, "filepath"), kind, info.Size(), info.Mode(), info.ModTime().Format(time.RFC3339))
}

func (r *Registry) runCommand(ctx context.Context, args map[string]any) string {
	cmd := exec.CommandContext(ctx, "sh", "-c", strArg(args, "command"))
	cmd.Dir = r.workDir()
	out, err := cmd.CombinedOutput()
	result := truncate(string(out), maxOutputBytes)
	if err != nil {
		return fmt.Sprintf("%s\nCommand failed: %v", result, err)
	}
	if result == "" {
		return "(no output)"
	}
	return result
}

func (r *Registry) runCode(ctx context.Context, args map[string]any) string {
	cmd := exec.CommandContext(ctx, "python3", "-c", strArg(args, "code"))
	cmd.Dir = r.workDir()
	out, err := cmd.CombinedOutput()
	result := truncate(string(out), maxOutputBytes)
	if err != nil {
		return fmt.Sprintf("%s\nExecution failed: %v", result, err)
	}
	if result == "" {
		return "(no output)"
	}
	return result
}

func (r *Registry) searchInFiles(ctx context.Context, args map[string]any) string {
	re, err := regexp.Compile(strArg(args, "pattern"))
	if err != nil {
		return fmt.Sprintf("Error: invalid pattern: %v", err)
	}
	root, err := r.safePath(strArgDefault(args, "path", r.workDir()))
	if err != nil {
		return "Error: " + err.Error()
	}
	return r.grep(ctx, re, root)
}

func (r *Registry) findReferences(ctx context.Context, args map[string]any) string {
	symbol := strArg(args, "pattern")
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
	if err != nil {
		return fmt.Sprintf("Error: invalid symbol: %v", err)
	}
	root, err := r.safePath(strArgDefault(args, "path", r.workDir()))
	if err != nil {
		return "Error: " + err.Error()
	}
	return r.grep(ctx, re, root)
}

func (r *Registry) grep(ctx context.Context, re *regexp.Regexp, root string) string {
	var hits []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(hits) >= maxSearchHits {
			return filepath.SkipAll
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(hits) >= maxSearchHits {
					break
				}
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return fmt.Sprintf("Error searching: %v", err)
	}
	if len(hits) == 0 {
		return "No matches found."
	}
	result := strings.Join(hits, "\n")
	if len(hits) >= maxSearchHits {
		result += fmt.Sprintf("\n... (stopped at %d matches)", maxSearchHits)
	}
	return result
}

func (r *Registry) getProjectStructure(_ context.Context, args map[string]any) string {
	root, err := r.safePath(strArgDefault(args, "path", r.workDir()))
	if err != nil {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	b.WriteString(filepath.Base(root) + "/\n")
	r.tree(&b, root, "", 1)
	return truncate(b.String(), maxOutputBytes)
}

func (r *Registry) tree(b *strings.Builder, dir, indent string, depth int) {
	if depth > maxTreeDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if skipDir(e.Name()) && e.IsDir() {
			continue
		}
		if e.IsDir() {
			fmt.Fprintf(b, "%s%s/\n", indent+"  ", e.Name())
			r.tree(b, filepath.Join(dir, e.Name()), indent+"  ", depth+1)
		} else {
			fmt.Fprintf(b, "%s%s\n", indent+"  ", e.Name())
		}
	}
}

var funcDeclRe = regexp.MustCompile(`(?m)^\s*(func |def |class |type \w+ (struct|interface))`)
var todoRe = regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX)\b`)

func (r *Registry) analyzeCode(_ context.Context, args map[string]any) string {
	path, err := r.safePath(strArg(args, "filepath"))
	if err != nil {
		return "Error: " + err.Error()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("Error analyzing file: %v", err)
	}

	content := string(data)
	lines := strings.Count(content, "\n") + 1
	blank := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			blank++
		}
	}
	decls := len(funcDeclRe.FindAllString(content, -1))
	todos := len(todoRe.FindAllString(content, -1))

	return fmt.Sprintf("%s: %d lines (%d blank), %d declarations, %d TODO markers",
		strArg(args, "filepath"), lines, blank, decls, todos)
}

func (r *Registry) saveMemory(_ context.Context, args map[string]any) string {
	if r.memory == nil {
		return "Error: persistent memory is not available"
	}
	key := strArg(args, "key")
	if err := r.memory.Save(key, strArg(args, "value")); err != nil {
		return fmt.Sprintf("Error saving memory: %v", err)
	}
	return fmt.Sprintf("Saved memory under key %q", key)
}

// recallMemory searches both the keyed memory and the shared context notes,
// so anything saved through save_memory or add_to_context comes back through
// the same tool.
func (r *Registry) recallMemory(_ context.Context, args map[string]any) string {
	if r.memory == nil {
		return "Error: persistent memory is not available"
	}
	query := strArg(args, "query")

	entries, err := r.memory.Recall(query)
	if err != nil {
		return fmt.Sprintf("Error recalling memory: %v", err)
	}
	notes, err := r.memory.RecentContext(maxContextNotes)
	if err != nil {
		return fmt.Sprintf("Error recalling context: %v", err)
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Key, e.Value)
	}
	lowered := strings.ToLower(query)
	for _, n := range notes {
		if lowered == "" || strings.Contains(strings.ToLower(n.Content), lowered) {
			fmt.Fprintf(&b, "Context note (%s): %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Content)
		}
	}
	if b.Len() == 0 {
		return "No matching memories."
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Registry) addToContext(_ context.Context, args map[string]any) string {
	if r.memory == nil {
		return "Error: persistent memory is not available"
	}
	if err := r.memory.AddContext(strArg(args, "content")); err != nil {
		return fmt.Sprintf("Error adding context: %v", err)
	}
	return "Added to shared context."
}

func (r *Registry) webSearch(_ context.Context, args map[string]any) string {
	return fmt.Sprintf("Web search is not configured; no results for %q.", strArg(args, "query"))
}

func (r *Registry) fetchURL(ctx context.Context, args map[string]any) string {
	url := strArg(args, "url")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("Error fetching URL: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching URL: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err)
	}
	return fmt.Sprintf("%s\n\n%s", resp.Status, string(body))
}

func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", "__pycache__", ".venv":
		return true
	}
	return false
}

// isText rejects files with NUL bytes in the first KB, a cheap binary check.
func isText(data []byte) bool {
	n := len(data)
	if n > 1024 {
		n = 1024
	}
	for _, b := range data[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
