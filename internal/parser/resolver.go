package parser

import (
	"path"
	"strings"
)

// Resolution confidences. Local definitions are certain; a call
// qualified by an imported module name is near-certain but the target
// lives in another file this parser never opened; a method call on a
// local receiver names the right member but not the defining type; a
// bare unresolved name is a guess kept above the default relationship
// floor so it still surfaces.
const (
	confidenceLocal    = 1.0
	confidenceImport   = 0.9
	confidenceReceiver = 0.7
	confidenceUnknown  = 0.6
)

// CallTarget is one resolved call reference: the target's UID (or a
// tagged placeholder when the target lives outside this file) plus the
// resolution confidence.
type CallTarget struct {
	UID        string
	Confidence float64
}

// Resolver links a file's call references in layers: local definitions
// first, then the file's import bindings, then graded placeholders.
// Scope is deliberately a single file — whole-workspace linking needs a
// file registry and module graph, and the semantic (LSP) side already
// provides exactly that resolution when it is available.
type Resolver struct {
	language string
	locals   map[string]string // symbol name -> UID
	imports  map[string]string // local binding name -> import path
}

// NewResolver builds a Resolver over one file's structural view. uids
// maps each extracted symbol name to its UID, in extraction order with
// first-definition-wins for duplicate names.
func NewResolver(language string, res Result, uids map[string]string) *Resolver {
	r := &Resolver{
		language: language,
		locals:   uids,
		imports:  make(map[string]string, len(res.Imports)),
	}
	for _, imp := range res.Imports {
		if binding := importBinding(language, imp.Path); binding != "" {
			r.imports[binding] = imp.Path
		}
	}
	return r
}

// Resolve links one call reference.
func (r *Resolver) Resolve(c Call) CallTarget {
	if c.Qualifier != "" {
		if importPath, ok := r.imports[c.Qualifier]; ok {
			return CallTarget{UID: "import:" + importPath + "#" + c.Name, Confidence: confidenceImport}
		}
		// Qualified by a local value or type: a method call whose
		// defining type this file cannot see.
		return CallTarget{UID: "method:" + c.Qualifier + "." + c.Name, Confidence: confidenceReceiver}
	}
	if uid, ok := r.locals[c.Name]; ok {
		return CallTarget{UID: uid, Confidence: confidenceLocal}
	}
	if importPath, ok := r.imports[c.Name]; ok {
		// A directly imported callable (JS default import, Python
		// from-import re-exposed under its own name).
		return CallTarget{UID: "import:" + importPath, Confidence: confidenceImport}
	}
	return CallTarget{UID: "unresolved:" + c.Name, Confidence: confidenceUnknown}
}

// importBinding derives the local name an import introduces, per the
// language's convention.
func importBinding(language, importPath string) string {
	switch language {
	case "go":
		// the last path segment is the package name in the common case
		return path.Base(importPath)
	case "javascript", "typescript":
		base := path.Base(strings.TrimPrefix(importPath, "./"))
		return strings.TrimSuffix(base, path.Ext(base))
	case "python":
		return pythonImportBinding(importPath)
	case "rust":
		return rustUseBinding(importPath)
	default:
		return path.Base(importPath)
	}
}

// pythonImportBinding extracts the bound name from a whole import
// statement ("import os", "import numpy as np",
// "from os.path import join").
func pythonImportBinding(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) < 2 {
		return ""
	}
	// trailing "as X" wins regardless of statement form
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "as" {
			return fields[i+1]
		}
	}
	if fields[0] == "from" && len(fields) >= 4 && fields[2] == "import" {
		return strings.Split(fields[3], ",")[0]
	}
	if fields[0] == "import" {
		// "import os.path" binds the top-level module name
		return strings.Split(fields[1], ".")[0]
	}
	return ""
}

// rustUseBinding extracts the bound name from a use declaration
// ("use std::fmt;", "use crate::cache::Store as Backing;").
func rustUseBinding(decl string) string {
	decl = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(decl), "use")), ";")
	if idx := strings.Index(decl, " as "); idx >= 0 {
		return strings.TrimSpace(decl[idx+4:])
	}
	if strings.ContainsAny(decl, "{*") {
		// grouped or glob imports bind many names; no single binding
		return ""
	}
	segments := strings.Split(decl, "::")
	return strings.TrimSpace(segments[len(segments)-1])
}
