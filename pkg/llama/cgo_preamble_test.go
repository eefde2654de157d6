package llama

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"
)

// The comment directly above import "C" is compiled as C, so it may only hold
// preprocessor lines. The files are parsed as source so this runs without cgo.
func TestCgoPreamblesAreC(t *testing.T) {
	for _, name := range []string{"llama_cgo.go", "backend_cgo.go", "trampoline_cgo.go"} {
		f, err := parser.ParseFile(token.NewFileSet(), name, nil, parser.ParseComments|parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		doc, found := cgoPreamble(f)
		if !found {
			t.Fatalf("%s: no import \"C\"", name)
		}
		if doc == nil {
			t.Fatalf("%s: import \"C\" has no preamble", name)
		}
		for _, line := range strings.Split(doc.Text(), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				t.Fatalf("%s: non-C line in cgo preamble: %q", name, line)
			}
		}
	}
}

func cgoPreamble(f *ast.File) (*ast.CommentGroup, bool) {
	for _, d := range f.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			continue
		}
		for _, s := range gd.Specs {
			is := s.(*ast.ImportSpec)
			if is.Path.Value != `"C"` {
				continue
			}
			if is.Doc != nil {
				return is.Doc, true
			}
			return gd.Doc, true
		}
	}
	return nil, false
}
