package report

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

type parsedFile struct {
	fset *token.FileSet
	file *ast.File
	err  error
}

var (
	parseMu    sync.Mutex
	parseCache = map[string]*parsedFile{}
)

// Label derives a display label for the step passed to a call of method
// that spans origin's line. A function literal whose body is a single
// return or expression statement yields that expression; a named function
// yields its name. Anything else falls back to "file.go:line".
//
// When several calls to method fit the line equally well, as in a chain
// written on one line, nth picks among them in source order.
func Label(origin Origin, method string, nth int) string {
	if origin.File == "" {
		return origin.Short()
	}
	pf := parse(origin.File)
	if pf.err != nil {
		return origin.Short()
	}

	call := enclosingCall(pf, origin.Line, method, nth)
	if call == nil || len(call.Args) == 0 {
		return origin.Short()
	}
	if text := describeStep(pf.fset, call.Args[len(call.Args)-1]); text != "" {
		return text
	}
	return origin.Short()
}

func parse(path string) *parsedFile {
	parseMu.Lock()
	defer parseMu.Unlock()
	if pf, ok := parseCache[path]; ok {
		return pf
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	pf := &parsedFile{fset: fset, file: f, err: err}
	parseCache[path] = pf
	return pf
}

// enclosingCall finds the narrowest calls to method whose source span
// contains line and returns the nth of them in source order.
func enclosingCall(pf *parsedFile, line int, method string, nth int) *ast.CallExpr {
	var (
		best     []*ast.CallExpr
		bestSpan = -1
	)
	ast.Inspect(pf.file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || calleeName(call) != method {
			return true
		}
		start := pf.fset.Position(call.Pos()).Line
		end := pf.fset.Position(call.End()).Line
		if line < start || line > end {
			return true
		}
		switch span := end - start; {
		case best == nil || span < bestSpan:
			best, bestSpan = []*ast.CallExpr{call}, span
		case span == bestSpan:
			best = append(best, call)
		}
		return true
	})
	if len(best) == 0 {
		return nil
	}
	// The outer call of a chain starts where the inner one does, so order
	// by the position of the method name instead.
	sort.SliceStable(best, func(i, j int) bool {
		return calleePos(best[i]) < calleePos(best[j])
	})
	if nth < 0 || nth >= len(best) {
		nth = len(best) - 1
	}
	return best[nth]
}

func calleeName(call *ast.CallExpr) string {
	switch fn := call.Fun.(type) {
	case *ast.SelectorExpr:
		return fn.Sel.Name
	case *ast.Ident:
		return fn.Name
	}
	return ""
}

func calleePos(call *ast.CallExpr) token.Pos {
	if sel, ok := call.Fun.(*ast.SelectorExpr); ok {
		return sel.Sel.Pos()
	}
	return call.Fun.Pos()
}

func describeStep(fset *token.FileSet, arg ast.Expr) string {
	lit, ok := arg.(*ast.FuncLit)
	if !ok {
		return printNode(fset, arg)
	}
	if lit.Body == nil || len(lit.Body.List) != 1 {
		return ""
	}
	switch stmt := lit.Body.List[0].(type) {
	case *ast.ReturnStmt:
		if len(stmt.Results) == 1 {
			return printNode(fset, stmt.Results[0])
		}
	case *ast.ExprStmt:
		return printNode(fset, stmt.X)
	}
	return ""
}

func printNode(fset *token.FileSet, n ast.Node) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, n); err != nil {
		return ""
	}
	return norm.NFC.String(strings.Join(strings.Fields(buf.String()), " "))
}
