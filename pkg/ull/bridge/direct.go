package bridge

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// FunctionSignature is the Go-native replacement for inspect.Signature: a
// function's parameter and return type strings as written in source, plus
// its doc comment. Good enough for the Compliance Verifier's "does this
// function look like what the contract describes" check without requiring
// a full build.
type FunctionSignature struct {
	Name       string
	Params     []string
	Returns    []string
	Doc        string
	Unexported bool
}

// DirectBridge is the same-language bridge for Go workspaces. Go cannot
// import arbitrary foreign code into its own process at runtime, so rather
// than loading and calling the target package, DirectBridge statically
// parses it with go/parser and go/ast and answers Invoke by reporting that
// static inspection, not execution, is all this bridge can offer.
//
// ADC-IMPLEMENTS: <ull-feature-01>
type DirectBridge struct {
	packageDir string
	functions  map[string]FunctionSignature
}

// NewDirectBridge parses every .go file directly inside packageDir (no
// recursion into subpackages) and indexes its exported function
// declarations.
func NewDirectBridge(packageDir string) (*DirectBridge, error) {
	entries, err := os.ReadDir(packageDir)
	if err != nil {
		return nil, fmt.Errorf("ull: direct bridge: reading %s: %w", packageDir, err)
	}

	fset := token.NewFileSet()
	functions := make(map[string]FunctionSignature)

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(packageDir, e.Name())
		file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("ull: direct bridge: parsing %s: %w", path, err)
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil {
				continue
			}
			sig := FunctionSignature{
				Name:       fn.Name.Name,
				Unexported: !fn.Name.IsExported(),
				Params:     fieldListTypes(fset, fn.Type.Params),
				Returns:    fieldListTypes(fset, fn.Type.Results),
			}
			if fn.Doc != nil {
				sig.Doc = strings.TrimSpace(fn.Doc.Text())
			}
			functions[fn.Name.Name] = sig
		}
	}

	if len(functions) == 0 {
		return nil, fmt.Errorf("ull: direct bridge: no function declarations found in %s", packageDir)
	}

	return &DirectBridge{packageDir: packageDir, functions: functions}, nil
}

func fieldListTypes(fset *token.FileSet, fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var out []string
	for _, f := range fields.List {
		typeStr := exprString(fset, f.Type)
		if len(f.Names) == 0 {
			out = append(out, typeStr)
			continue
		}
		for range f.Names {
			out = append(out, typeStr)
		}
	}
	return out
}

func exprString(fset *token.FileSet, expr ast.Expr) string {
	var sb strings.Builder
	start := fset.Position(expr.Pos()).Offset
	end := fset.Position(expr.End()).Offset
	if start < 0 || end < start {
		return fmt.Sprintf("%T", expr)
	}
	// go/printer would be the thorough route; for the short type expressions
	// contracts describe (string, []byte, *Foo, context.Context) a direct
	// source slice round-trips cleanly and avoids a second parse pass.
	data, err := os.ReadFile(fset.Position(expr.Pos()).Filename)
	if err != nil {
		return sb.String()
	}
	if end > len(data) {
		return sb.String()
	}
	return string(data[start:end])
}

// Invoke cannot execute a loaded function: DirectBridge is static
// inspection only. It always fails, naming the introspection methods a
// caller should use instead.
func (b *DirectBridge) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	return nil, fmt.Errorf("ull: direct bridge: %s is not callable through static inspection; use Signature/HasFunction", method)
}

// HasFunction reports whether method was found as an exported top-level
// function declaration.
func (b *DirectBridge) HasFunction(method string) bool {
	sig, ok := b.functions[method]
	return ok && !sig.Unexported
}

// FunctionNames lists every exported function name discovered.
func (b *DirectBridge) FunctionNames() []string {
	out := make([]string, 0, len(b.functions))
	for name, sig := range b.functions {
		if !sig.Unexported {
			out = append(out, name)
		}
	}
	return out
}

// Signature returns the parsed signature for a function name, used by the
// Compliance Verifier's signature-match step.
func (b *DirectBridge) Signature(method string) (FunctionSignature, bool) {
	sig, ok := b.functions[method]
	return sig, ok
}

// Close is a no-op: DirectBridge holds no resources beyond the parsed AST.
func (b *DirectBridge) Close() error { return nil }
