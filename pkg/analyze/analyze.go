// Package analyze answers questions about Python token streams: what gets
// imported, which builtins are used, which names are keyword arguments.
// Everything works on raw tokens rather than a parse tree, so syntactically
// odd but tokenizable code still analyzes fine.
package analyze

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/walteh/minipy/pkg/pytoken"
)

var (
	// ShebangLine matches a shebang at the start of a line.
	ShebangLine = regexp.MustCompile(`\A#!.*`)
	// CodingLine matches a PEP 263 encoding declaration.
	CodingLine = pytoken.CodingPattern
)

// KeywordArgs maps each function name defined in tokens to the keyword
// arguments its signature declares.
func KeywordArgs(tokens pytoken.Stream) map[string][]string {
	keywordArgs := map[string][]string{}
	functionName := ""
	insideFunction := false
	for i, tok := range tokens {
		if tok.Kind == pytoken.Newline {
			insideFunction = false
		}
		if tok.Kind != pytoken.Name {
			continue
		}
		if tok.Text == "def" {
			functionName = tokens.At(i + 1).Text
			insideFunction = true
			keywordArgs[functionName] = []string{}
		} else if insideFunction && tokens.At(i+1).Text == "=" {
			keywordArgs[functionName] = append(keywordArgs[functionName], tok.Text)
		}
	}
	return keywordArgs
}

// Imports returns every module name imported in tokens, in order of first
// appearance. Imports using 'as' or 'from' are skipped, and each component
// of a dotted import is reported on its own.
func Imports(tokens pytoken.Stream) []string {
	var imported []string
	importLine := false
	fromImport := false
	for i, tok := range tokens {
		switch {
		case tok.Kind == pytoken.Newline:
			importLine = false
			fromImport = false
		case tok.Text == "import":
			importLine = true
		case tok.Text == "from":
			fromImport = true
		case importLine:
			if tok.Kind == pytoken.Name && tokens.At(i+1).Text != "as" {
				if !fromImport && !IsReserved(tok.Text) && !contains(imported, tok.Text) {
					imported = append(imported, tok.Text)
				}
			}
		}
	}
	return imported
}

// GlobalImports returns modules imported at module scope, skipping imports
// that live inside functions, methods, or classes. Dotted imports come back
// joined ("os.path"), and 'as'/'from' imports are skipped like in Imports.
func GlobalImports(tokens pytoken.Stream) []string {
	var imported []string
	importLine := false
	fromImport := false
	parentModule := ""
	functionCount := 0
	indentation := 0
	for i, tok := range tokens {
		switch tok.Kind {
		case pytoken.Indent:
			indentation++
		case pytoken.Dedent:
			indentation--
		case pytoken.Newline:
			importLine = false
			fromImport = false
		case pytoken.Name:
			if tok.Text == "def" || tok.Text == "class" {
				functionCount++
			}
			if indentation == functionCount-1 {
				functionCount--
			} else if functionCount >= indentation {
				switch {
				case tok.Text == "import":
					importLine = true
				case tok.Text == "from":
					fromImport = true
				case importLine:
					if tokens.At(i+1).Text == "as" {
						break
					}
					if fromImport || IsReserved(tok.Text) || contains(imported, tok.Text) {
						break
					}
					if tokens.At(i+1).Text == "." {
						parentModule = tok.Text + "."
					} else if parentModule != "" {
						imported = append(imported, parentModule+tok.Text)
						parentModule = ""
					} else {
						imported = append(imported, tok.Text)
					}
				}
			}
		}
	}
	return imported
}

// MethodCalls returns object method calls like "f.write", excluding calls
// on the module names listed in modules.
func MethodCalls(tokens pytoken.Stream, modules []string) []string {
	var out []string
	for i, tok := range tokens {
		if tok.Kind != pytoken.Name || tokens.At(i+1).Text != "(" {
			continue
		}
		if tokens.At(i-1).Text != "." {
			continue
		}
		owner := tokens.At(i - 2).Text
		switch owner {
		case `""`, "''", "]", ")", "}":
			continue
		}
		if contains(modules, owner) {
			continue
		}
		call := owner + "." + tok.Text
		if !contains(out, call) {
			out = append(out, call)
		}
	}
	return out
}

// UsedBuiltins returns the builtins referenced in tokens. Attribute
// lookups (obj.open), assignments that shadow a builtin (open = ...), and
// dunder names are skipped.
func UsedBuiltins(tokens pytoken.Stream) []string {
	var out []string
	for i, tok := range tokens {
		if !IsBuiltin(tok.Text) || strings.HasPrefix(tok.Text, "__") {
			continue
		}
		if tokens.At(i-1).Text == "." || tokens.At(i+1).Text == "=" {
			continue
		}
		if !contains(out, tok.Text) {
			out = append(out, tok.Text)
		}
	}
	return out
}

// ImportMethods returns attribute accesses on globally imported modules,
// like "re.compile" or "sys.argv".
func ImportMethods(tokens pytoken.Stream) []string {
	globalImports := GlobalImports(tokens)
	var out []string
	for _, item := range globalImports {
		for i, tok := range tokens {
			if tok.Text != item {
				continue
			}
			if tokens.At(i+1).Text == "." {
				method := tok.Text + "." + tokens.At(i+2).Text
				if !contains(out, method) {
					out = append(out, method)
				}
			}
		}
	}
	return out
}

// LocalModules walks path recursively and returns the dotted module names
// of the .py files found there that tokens does not already import.
func LocalModules(fsys afero.Fs, tokens pytoken.Stream, path string) []string {
	modules := Imports(tokens)
	var local []string
	if ok, _ := afero.IsDir(fsys, path); !ok {
		return local
	}
	parent := ""
	// Unreadable entries are skipped rather than failing the whole scan.
	_ = afero.Walk(fsys, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if parent == "" {
				parent = filepath.Base(p)
			}
			return nil
		}
		if !strings.HasSuffix(p, ".py") {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(p), ".py")
		tree := ""
		if parent != "" {
			if parts := strings.Split(filepath.Dir(p), parent); len(parts) > 1 {
				tree = strings.TrimLeft(strings.ReplaceAll(parts[1], "/", "."), ".")
			}
		}
		module := name
		if tree != "" {
			module = tree + "." + name
		}
		if !contains(modules, module) {
			local = append(local, module)
		}
		return nil
	})
	return local
}

// Shebang returns the shebang line (newline included) if the source starts
// with one, otherwise the empty string. Only the first four tokens are
// checked since a shebang can only ever live on line one.
func Shebang(tokens pytoken.Stream) string {
	limit := 4
	if len(tokens) < limit {
		limit = len(tokens)
	}
	for _, tok := range tokens[:limit] {
		if ShebangLine.MatchString(tok.Line) {
			return tok.Line
		}
	}
	return ""
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
