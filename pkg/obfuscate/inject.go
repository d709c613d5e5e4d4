package obfuscate

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/minipy/pkg/analyze"
	"github.com/walteh/minipy/pkg/pytoken"
)

// RemapNames produces one "replacement=original" assignment line per name,
// reusing the session table's replacement when it already has one.
func (s *Session) RemapNames(names []string) string {
	var out strings.Builder
	for _, name := range names {
		replacement, ok := s.Table[name]
		if !ok {
			replacement = s.Generator.Next()
		}
		out.WriteString(replacement)
		out.WriteString("=")
		out.WriteString(name)
		out.WriteString("\n")
	}
	return out.String()
}

// InsertInNextLine tokenizes source and splices the whole mini-sequence
// into tokens just after the first NL or NEWLINE at or past index.
func InsertInNextLine(tokens *pytoken.Stream, index int, source string) error {
	insert, err := pytoken.Tokenize(source)
	if err != nil {
		return errors.Errorf("tokenizing inserted line: %w", err)
	}
	for i := index; i < len(*tokens); i++ {
		if kind := (*tokens)[i].Kind; kind == pytoken.NL || kind == pytoken.Newline {
			tokens.Insert(i+1, insert...)
			break
		}
	}
	return nil
}

// ObfuscateBuiltins aliases every builtin the file uses: an
// "<replacement>=<builtin>" assignment is inserted near the top of the
// file, after any shebang and encoding lines, and every use of the builtin
// becomes the bare alias. One assignment line buys shorter text at each
// repeated use.
func (s *Session) ObfuscateBuiltins(ctx context.Context, module string, tokens *pytoken.Stream) error {
	used := analyze.UsedBuiltins(*tokens)
	assignments := s.RemapNames(used)
	var replacements []string
	for _, line := range strings.Split(assignments, "\n") {
		name, _, _ := strings.Cut(line, "=")
		replacements = append(replacements, name)
	}
	zerolog.Ctx(ctx).Debug().
		Str("module", module).
		Int("builtins", len(used)).
		Msg("aliasing used builtins")
	for i, builtin := range used {
		s.Table[builtin] = replacements[i]
	}
	for i, builtin := range used {
		s.replaceObfuscatables(module, *tokens, rewriteUnique, builtin, replacements[i])
	}
	// The shebang and encoding declaration always sit within the first
	// four tokens; the assignments go in after them.
	skip := 0
	matchedShebang := false
	matchedEncoding := false
	for i := 0; i < 4 && i < len(*tokens); i++ {
		line := (*tokens)[i].Line
		if analyze.ShebangLine.MatchString(line) {
			if !matchedShebang {
				matchedShebang = true
				skip++
			}
		} else if analyze.CodingLine.MatchString(line) {
			if !matchedEncoding {
				matchedEncoding = true
				skip++
			}
		}
	}
	return InsertInNextLine(tokens, skip, assignments)
}

// ObfuscateImportMethods aliases the used methods of globally-imported
// modules: each "module.method" access collapses to a bare replacement
// name, with the aliasing assignment inserted right after the import
// statement that brought the module in. In a multi-file run a module that
// is local to the project gets an alias pointing at its own obfuscated
// name, since the method's original name will not survive that module's
// own rewrite.
func (s *Session) ObfuscateImportMethods(ctx context.Context, module string, tokens *pytoken.Stream) error {
	localImports := analyze.LocalModules(s.Fs, *tokens, s.WorkDir)
	methods := analyze.ImportMethods(*tokens)
	zerolog.Ctx(ctx).Debug().
		Str("module", module).
		Int("methods", len(methods)).
		Msg("aliasing import methods")
	replacementFor := map[string]string{}
	for _, method := range methods {
		replacement, ok := s.Table[method]
		if !ok {
			replacement = s.Generator.Next()
		}
		replacementFor[method] = replacement
		s.Table[method] = replacement
	}
	for _, method := range methods {
		owner, attr, _ := strings.Cut(method, ".")
		for index, tok := range *tokens {
			if tok.Kind != pytoken.Name || tok.Text != owner {
				continue
			}
			if tokens.At(index+1).Text != "." || tokens.At(index+2).Text != attr {
				continue
			}
			tok.Text = s.Table[method]
			tokens.At(index + 1).Text = ""
			tokens.At(index + 2).Text = ""
		}
	}
	for _, method := range methods {
		replacement := replacementFor[method]
		owner, _, _ := strings.Cut(method, ".")
		var indents []*pytoken.Token
		importLine := false
		index := 0
		// Iterate a snapshot: insertions grow the live stream mid-loop.
		snapshot := append(pytoken.Stream(nil), (*tokens)...)
		for _, tok := range snapshot {
			switch {
			case tok.Kind == pytoken.Newline:
				importLine = false
			case tok.Kind == pytoken.Indent:
				indents = append(indents, tok)
			case tok.Kind == pytoken.Dedent:
				if len(indents) > 0 {
					indents = indents[:len(indents)-1]
				}
			case tok.Text == "import":
				importLine = true
			case importLine && tok.Text == owner:
				line := replacement + "=" + method + "\n"
				if s.opts.MultiFile && contains(localImports, owner) {
					line = replacement + "=" + owner + "." + replacement + "\n"
				}
				for _, indent := range indents {
					line = indent.Text + line
					index++
				}
				if err := InsertInNextLine(tokens, index, line); err != nil {
					return err
				}
				index += 6
			}
			index++
		}
	}
	return nil
}
