// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package codemap extracts definition tags from source files with
// tree-sitter and renders them as the indented signature listings that give
// the model a cheap structural view of files outside full context.
package codemap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ErrUnsupportedLanguage is returned for files no language spec covers.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Tag is one definition found in a source file.
type Tag struct {
	Scope     string // Dotted enclosing definition names; "" at top level
	Kind      string // "function", "method", "class", "type", ...
	Name      string
	Line      int    // 1-indexed
	Signature string // Parameter and result text, e.g. "(a, b int) error"
}

// kindQuery pairs a tag kind with the tree-sitter query capturing its names.
type kindQuery struct {
	kind  string
	query string
}

// langSpec holds everything needed to tag one language's files.
type langSpec struct {
	lang *sitter.Language
	// containers are the node types whose names form the scope of nested
	// definitions.
	containers map[string]bool
	kinds      []kindQuery
}

var supportedLangs = map[string]*langSpec{
	".go": {
		lang:       golang.GetLanguage(),
		containers: map[string]bool{},
		kinds: []kindQuery{
			{"function", `(function_declaration name: (identifier) @name)`},
			{"method", `(method_declaration name: (field_identifier) @name)`},
			{"type", `(type_declaration (type_spec name: (type_identifier) @name))`},
		},
	},
	".py": {
		lang: python.GetLanguage(),
		containers: map[string]bool{
			"function_definition": true,
			"class_definition":    true,
		},
		kinds: []kindQuery{
			{"function", `(function_definition name: (identifier) @name)`},
			{"class", `(class_definition name: (identifier) @name)`},
		},
	},
	".js": {
		lang: javascript.GetLanguage(),
		containers: map[string]bool{
			"class_declaration":    true,
			"function_declaration": true,
		},
		kinds: []kindQuery{
			{"function", `(function_declaration name: (identifier) @name)`},
			{"class", `(class_declaration name: (identifier) @name)`},
			{"method", `(method_definition name: (property_identifier) @name)`},
		},
	},
	".ts": {
		lang: typescript.GetLanguage(),
		containers: map[string]bool{
			"class_declaration":    true,
			"function_declaration": true,
		},
		kinds: []kindQuery{
			{"function", `(function_declaration name: (identifier) @name)`},
			{"class", `(class_declaration name: (identifier) @name)`},
			{"method", `(method_definition name: (property_identifier) @name)`},
			{"interface", `(interface_declaration name: (type_identifier) @name)`},
		},
	},
}

// Supported reports whether path's extension has a language spec.
func Supported(path string) bool {
	_, ok := supportedLangs[filepath.Ext(path)]
	return ok
}

type cacheEntry struct {
	modTime time.Time
	tags    []Tag
}

// Stats counts extractor work, mostly for tests and debugging.
type Stats struct {
	Parses    int
	CacheHits int
}

// Extractor tags source files, caching per file by modification time.
type Extractor struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
	stats Stats
}

func NewExtractor() *Extractor {
	return &Extractor{cache: make(map[string]cacheEntry)}
}

// Stats returns a copy of the work counters.
func (e *Extractor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// FileTags extracts the definition tags of one file, sorted by line.
// Returns ErrUnsupportedLanguage for extensions without a spec.
func (e *Extractor) FileTags(ctx context.Context, absPath string) ([]Tag, error) {
	spec, ok := supportedLangs[filepath.Ext(absPath)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", absPath, ErrUnsupportedLanguage)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("tagging %s: %w", absPath, err)
	}

	e.mu.Lock()
	if cached, ok := e.cache[absPath]; ok && cached.modTime.Equal(info.ModTime()) {
		e.stats.CacheHits++
		tags := cached.tags
		e.mu.Unlock()
		return tags, nil
	}
	e.mu.Unlock()

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("tagging %s: %w", absPath, err)
	}

	tags, err := parseTags(ctx, content, spec)
	if err != nil {
		return nil, fmt.Errorf("tagging %s: %w", absPath, err)
	}

	e.mu.Lock()
	e.stats.Parses++
	e.cache[absPath] = cacheEntry{modTime: info.ModTime(), tags: tags}
	e.mu.Unlock()
	return tags, nil
}

// parseTags parses content and runs each kind query the language defines.
func parseTags(ctx context.Context, content []byte, spec *langSpec) ([]Tag, error) {
	root, err := sitter.ParseCtx(ctx, content, spec.lang)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("no parse tree")
	}

	var tags []Tag
	for _, kq := range spec.kinds {
		q, err := sitter.NewQuery([]byte(kq.query), spec.lang)
		if err != nil {
			return nil, err
		}
		qc := sitter.NewQueryCursor()
		qc.Exec(q, root)
		for {
			m, ok := qc.NextMatch()
			if !ok {
				break
			}
			for _, c := range m.Captures {
				name := c.Node.Content(content)
				if name == "" {
					continue
				}
				defNode := c.Node.Parent()
				tags = append(tags, Tag{
					Scope:     scopeOf(c.Node, content, spec),
					Kind:      kq.kind,
					Name:      name,
					Line:      int(c.Node.StartPoint().Row) + 1,
					Signature: signatureOf(defNode, content),
				})
			}
		}
		qc.Close()
	}

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Line != tags[j].Line {
			return tags[i].Line < tags[j].Line
		}
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

// scopeOf names the definitions enclosing a captured name: the receiver
// type for Go methods, the containing classes and functions elsewhere.
func scopeOf(nameNode *sitter.Node, content []byte, spec *langSpec) string {
	defNode := nameNode.Parent()
	if defNode == nil {
		return ""
	}
	if defNode.Type() == "method_declaration" {
		if recv := goReceiverType(defNode, content); recv != "" {
			return recv
		}
	}
	var parts []string
	for n := defNode.Parent(); n != nil; n = n.Parent() {
		if !spec.containers[n.Type()] {
			continue
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			continue
		}
		parts = append([]string{name.Content(content)}, parts...)
	}
	return strings.Join(parts, ".")
}

// goReceiverType extracts the bare receiver type from a method declaration,
// so methods nest under their type in the rendered map.
func goReceiverType(method *sitter.Node, content []byte) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := strings.Trim(recv.Content(content), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typ := fields[len(fields)-1]
	typ = strings.TrimPrefix(typ, "*")
	if i := strings.Index(typ, "["); i > 0 {
		typ = typ[:i]
	}
	return typ
}

// signatureOf renders the parameter and result text of a definition node.
func signatureOf(defNode *sitter.Node, content []byte) string {
	if defNode == nil {
		return ""
	}
	var parts []string
	if p := defNode.ChildByFieldName("parameters"); p != nil {
		parts = append(parts, p.Content(content))
	}
	if r := defNode.ChildByFieldName("result"); r != nil {
		parts = append(parts, r.Content(content))
	}
	sig := strings.Join(parts, " ")
	if len(sig) > 100 {
		sig = sig[:97] + "..."
	}
	return sig
}
