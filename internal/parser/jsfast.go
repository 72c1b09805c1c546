package parser

import (
	"github.com/t14raptor/go-fast/ast"
	gofast "github.com/t14raptor/go-fast/parser"
)

// extractJSFast parses plain JavaScript with go-fast, which is
// considerably faster than a tree-sitter pass for the common case.
// go-fast does not handle ES modules or JSX; any parse error sends the
// caller to the tree-sitter path instead.
func extractJSFast(content []byte) (Result, error) {
	src := string(content)
	program, err := gofast.ParseFile(src)
	if err != nil {
		return Result{}, err
	}

	lines := newLineIndex(src)
	result := Result{Language: "javascript"}
	for _, stmt := range program.Body {
		visitJSStatement(stmt.Stmt, lines, &result)
	}
	return result, nil
}

// lineIndex converts byte offsets into 1-based line numbers.
type lineIndex struct {
	starts []int
}

func newLineIndex(src string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

func (li *lineIndex) lineOf(offset int) int {
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

func visitJSStatement(stmt ast.Stmt, lines *lineIndex, result *Result) {
	if stmt == nil {
		return
	}
	switch s := stmt.(type) {
	case *ast.FunctionDeclaration:
		if s.Function != nil && s.Function.Name != nil {
			result.Symbols = append(result.Symbols, Symbol{
				Name:     s.Function.Name.Name,
				Kind:     "function",
				Line:     lines.lineOf(int(s.Function.Function)),
				Exported: true,
			})
			if s.Function.Body != nil {
				for _, bodyStmt := range s.Function.Body.List {
					visitJSStatement(bodyStmt.Stmt, lines, result)
				}
			}
		}
	case *ast.ClassDeclaration:
		if s.Class != nil && s.Class.Name != nil {
			result.Symbols = append(result.Symbols, Symbol{
				Name:     s.Class.Name.Name,
				Kind:     "class",
				Line:     lines.lineOf(int(s.Class.Class)),
				Exported: true,
			})
			for _, element := range s.Class.Body {
				if m, ok := element.Element.(*ast.MethodDefinition); ok && m.Key != nil && m.Key.Expr != nil {
					if name := jsExpressionName(m.Key.Expr); name != "" {
						result.Symbols = append(result.Symbols, Symbol{
							Name:     name,
							Kind:     "method",
							Line:     lines.lineOf(int(m.Idx)),
							Exported: true,
						})
					}
				}
			}
		}
	case *ast.VariableDeclaration:
		for _, decl := range s.List {
			if decl.Target == nil || decl.Target.Target == nil {
				continue
			}
			ident, ok := decl.Target.Target.(*ast.Identifier)
			if !ok {
				continue
			}
			kind := "variable"
			if decl.Initializer != nil && decl.Initializer.Expr != nil {
				switch decl.Initializer.Expr.(type) {
				case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral:
					kind = "function"
				}
			}
			result.Symbols = append(result.Symbols, Symbol{
				Name:     ident.Name,
				Kind:     kind,
				Line:     lines.lineOf(int(s.Idx)),
				Exported: true,
			})
		}
	case *ast.BlockStatement:
		for _, bodyStmt := range s.List {
			visitJSStatement(bodyStmt.Stmt, lines, result)
		}
	}
}

func jsExpressionName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name
	case *ast.StringLiteral:
		return e.Value
	default:
		return ""
	}
}
