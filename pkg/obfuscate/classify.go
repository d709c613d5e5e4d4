package obfuscate

import (
	"strings"
	"unicode/utf8"

	"github.com/walteh/minipy/pkg/analyze"
	"github.com/walteh/minipy/pkg/pytoken"
)

// classifyVariable decides whether tokens.At(index) is a variable name that
// can be safely renamed. Structural positions rule most tokens out: a name
// being imported, an attribute after a dot, a function's recorded keyword
// argument, or any name on a line that holds no assignment. A loop variable
// directly after for is eligible without the usual surrounding checks.
func classifyVariable(s *Session, tokens pytoken.Stream, index int, ignoreLength bool) Verdict {
	tok := tokens.At(index)
	prev := tokens.At(index - 1)
	next := tokens.At(index + 1)
	if tok.Text == "=" {
		return SkipLine()
	}
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if strings.HasPrefix(tok.Text, "__") {
		return Ignore()
	}
	if next.Text == "." && contains(s.importedModules, tok.Text) {
		return Ignore()
	}
	if prev.Text == "import" {
		return SkipLine()
	}
	if prev.Text == "." {
		return SkipNext()
	}
	if prev.Text == "for" && utf8.RuneCountInString(tok.Text) > 2 {
		return eligibleName(tok.Text)
	}
	if tok.Text == "for" {
		return Ignore()
	}
	if _, isFunction := s.keywordArgs[tok.Text]; isFunction {
		return Ignore()
	}
	switch tok.Text {
	case "def", "class", "if", "elif", "import":
		return SkipLine()
	}
	if prev.Kind != pytoken.Indent && next.Text != "=" {
		return SkipLine()
	}
	if !ignoreLength && utf8.RuneCountInString(tok.Text) < 3 {
		// Renaming a one- or two-character name saves nothing.
		return Ignore()
	}
	if analyze.IsReserved(tok.Text) {
		return Ignore()
	}
	return eligibleName(tok.Text)
}

// classifyClass: a name directly after class, dunders excluded.
func classifyClass(_ *Session, tokens pytoken.Stream, index int, _ bool) Verdict {
	tok := tokens.At(index)
	prev := tokens.At(index - 1)
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if strings.HasPrefix(tok.Text, "__") {
		return Ignore()
	}
	if prev.Text == "class" {
		return eligibleName(tok.Text)
	}
	return Ignore()
}

// classifyFunction: a name directly after def, dunders excluded.
func classifyFunction(_ *Session, tokens pytoken.Stream, index int, _ bool) Verdict {
	tok := tokens.At(index)
	prev := tokens.At(index - 1)
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if strings.HasPrefix(tok.Text, "__") {
		return Ignore()
	}
	if prev.Text == "def" {
		return eligibleName(tok.Text)
	}
	return Ignore()
}
