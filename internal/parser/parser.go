// Package parser is the structural analyzer: it derives symbols,
// imports, and call references purely from parsed source, using
// tree-sitter grammars per language. Semantic information (types,
// cross-file resolution) is the LSP side's job; this side never needs a
// running server and never fails on unresolved names.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Symbol is one extracted definition.
type Symbol struct {
	Name      string
	Kind      string // function, method, class, interface, struct, enum, type, variable, field, module
	Line      int    // 1-based
	Column    int    // 0-based
	EndLine   int
	EndColumn int
	Exported  bool
}

// Import is one import/include/use site.
type Import struct {
	Path string
	Line int
}

// Call is one call-expression reference to a named callee. Qualifier,
// when present, is the receiver/module expression to the left of the
// callee (`fmt` in `fmt.Println`, `self` in `self.area()`); the
// resolver uses it to distinguish imported-package calls from method
// calls on local values.
type Call struct {
	Name      string
	Qualifier string
	Line      int
	Column    int
}

// Result is the structural view of one file.
type Result struct {
	Language string
	Symbols  []Symbol
	Imports  []Import
	Calls    []Call
}

// languageEntry binds one grammar to its extensions and extraction
// query.
type languageEntry struct {
	tag    string
	exts   []string
	lang   *tree_sitter.Language
	query  *tree_sitter.Query
	parser *tree_sitter.Parser
}

// Parser holds one tree-sitter parser and compiled query per language.
// A Parser is safe for concurrent Extract calls: per-language parsers
// are guarded by a lock since tree-sitter parsers are single-threaded.
type Parser struct {
	mu      sync.Mutex
	byExt   map[string]*languageEntry
	entries []*languageEntry
}

// New constructs a Parser with every supported grammar registered.
func New() *Parser {
	p := &Parser{byExt: make(map[string]*languageEntry)}
	p.registerLanguages()
	return p
}

// register installs one grammar. A query that fails to compile leaves
// the language registered for parsing but without extraction; that is a
// programming error surfaced loudly in tests rather than hidden.
func (p *Parser) register(tag string, exts []string, lang *tree_sitter.Language, queryStr string) {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		return
	}
	query, _ := tree_sitter.NewQuery(lang, queryStr)
	entry := &languageEntry{tag: tag, exts: exts, lang: lang, query: query, parser: parser}
	p.entries = append(p.entries, entry)
	for _, ext := range exts {
		p.byExt[ext] = entry
	}
}

// SupportedLanguages returns the registered language tags.
func (p *Parser) SupportedLanguages() []string {
	tags := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		tags = append(tags, e.tag)
	}
	return tags
}

// LanguageForPath returns the language tag for path's extension, or "".
func (p *Parser) LanguageForPath(path string) string {
	if e, ok := p.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return e.tag
	}
	return ""
}

// Extract parses content and returns its structural view. Plain
// JavaScript takes a fast path through go-fast first, falling back to
// tree-sitter for syntax it does not support (ES modules, JSX).
func (p *Parser) Extract(ctx context.Context, path string, content []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	entry, ok := p.byExt[ext]
	if !ok {
		return Result{}, fmt.Errorf("parser: unsupported extension %q", ext)
	}

	if entry.tag == "javascript" {
		if res, err := extractJSFast(content); err == nil {
			res.Language = entry.tag
			return res, nil
		}
	}

	p.mu.Lock()
	tree := entry.parser.Parse(content, nil)
	p.mu.Unlock()
	if tree == nil {
		return Result{}, fmt.Errorf("parser: unable to parse %s", path)
	}
	defer tree.Close()

	result := Result{Language: entry.tag}
	if entry.query == nil {
		return result, nil
	}
	p.runQuery(entry, tree, content, &result)
	return result, nil
}

// runQuery walks the query matches and fills result. Each match's
// ".name" captures are collected first so the main capture can resolve
// its symbol name without re-walking the node.
func (p *Parser) runQuery(entry *languageEntry, tree *tree_sitter.Tree, content []byte, result *Result) {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	matches := qc.Matches(entry.query, tree.RootNode(), content)

	captureNames := entry.query.CaptureNames()
	names := make(map[string]string, 4)

	for {
		match := matches.Next()
		if match == nil {
			return
		}

		for k := range names {
			delete(names, k)
		}
		for _, c := range match.Captures {
			cn := captureNames[c.Index]
			if strings.Contains(cn, ".") {
				names[cn] = nodeText(&c.Node, content)
			}
		}

		for _, c := range match.Captures {
			node := c.Node
			switch cn := captureNames[c.Index]; cn {
			case "function", "method", "constructor":
				result.Symbols = append(result.Symbols, p.symbolFrom(&node, names, cn, methodKind(cn), entry.tag))
			case "class", "struct", "interface", "enum", "type", "trait", "record", "module", "namespace":
				result.Symbols = append(result.Symbols, p.symbolFrom(&node, names, cn, typeKind(cn), entry.tag))
			case "variable", "field", "property", "constant", "delegate", "event", "annotation":
				result.Symbols = append(result.Symbols, p.symbolFrom(&node, names, cn, valueKind(cn), entry.tag))
			case "import", "using", "package", "include":
				if imp, ok := importFrom(&node, names, content); ok {
					result.Imports = append(result.Imports, imp)
				}
			case "call":
				if name, ok := names["call.name"]; ok && name != "" {
					start := node.StartPosition()
					result.Calls = append(result.Calls, Call{
						Name:      name,
						Qualifier: names["call.qualifier"],
						Line:      int(start.Row) + 1,
						Column:    int(start.Column),
					})
				}
			}
		}
	}
}

// methodKind normalizes constructor captures into methods.
func methodKind(capture string) string {
	if capture == "constructor" {
		return "method"
	}
	return capture
}

// typeKind folds grammar-specific type captures into the shared kind
// vocabulary: traits behave as interfaces, records as classes, and
// namespaces as modules.
func typeKind(capture string) string {
	switch capture {
	case "trait":
		return "interface"
	case "record":
		return "class"
	case "namespace":
		return "module"
	default:
		return capture
	}
}

func valueKind(capture string) string {
	switch capture {
	case "delegate", "annotation":
		return "type"
	case "event":
		return "field"
	default:
		return capture
	}
}

// symbolFrom builds a Symbol from the main capture node and the match's
// collected ".name" captures.
func (p *Parser) symbolFrom(node *tree_sitter.Node, names map[string]string, capture, kind, language string) Symbol {
	name := names[capture+".name"]
	if name == "" {
		// Anonymous construct (func literal, arrow function): named by
		// position so it is still distinguishable.
		start := node.StartPosition()
		name = fmt.Sprintf("anonymous@%d:%d", start.Row+1, start.Column)
	}
	start := node.StartPosition()
	end := node.EndPosition()
	return Symbol{
		Name:      name,
		Kind:      kind,
		Line:      int(start.Row) + 1,
		Column:    int(start.Column),
		EndLine:   int(end.Row) + 1,
		EndColumn: int(end.Column),
		Exported:  isExported(name, language),
	}
}

// isExported applies the language's convention for public visibility.
// Languages with keyword-based visibility default to exported; the
// structural side has no modifier context in the capture.
func isExported(name, language string) bool {
	if name == "" {
		return false
	}
	switch language {
	case "go":
		r := name[0]
		return r >= 'A' && r <= 'Z'
	case "python":
		return !strings.HasPrefix(name, "_")
	default:
		return true
	}
}

// importFrom resolves the import path from a path/source sub-capture
// when the query provides one, else from the whole node's text.
func importFrom(node *tree_sitter.Node, names map[string]string, content []byte) (Import, bool) {
	path := names["import.path"]
	if path == "" {
		path = names["import.source"]
	}
	if path == "" {
		path = names["using.name"]
	}
	if path == "" {
		path = nodeText(node, content)
	}
	path = strings.Trim(strings.TrimSpace(path), `"'`)
	if path == "" {
		return Import{}, false
	}
	return Import{Path: path, Line: int(node.StartPosition().Row) + 1}, true
}

func nodeText(node *tree_sitter.Node, content []byte) string {
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(content) || start > end {
		return ""
	}
	return string(content[start:end])
}
