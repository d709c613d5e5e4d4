package obfuscate

import (
	"strings"

	"github.com/walteh/minipy/pkg/pytoken"
)

// rewriteState is the structural context the rewrite sweep carries:
// whether an = has been seen outside parens on this logical line, the
// paren nesting depth, and the name of the enclosing function (empty at
// module level). The sweep resets the first two at every NEWLINE.
type rewriteState struct {
	rightOfEqual   bool
	insideParens   int
	insideFunction string
}

// recordReplacement notes what replaced what and returns the replacement.
func recordReplacement(m map[string]string, original, replacement string) Verdict {
	m[replacement] = original
	return Eligible(replacement)
}

// rewriteVariable replaces an occurrence of name when its position is
// safe. Keyword arguments are the hazard: a name left of = inside parens
// is a caller-supplied keyword, and a name recorded as a keyword argument
// of the enclosing function must keep its public spelling.
func rewriteVariable(s *Session, tokens pytoken.Stream, index int, name, replacement string, st rewriteState) Verdict {
	tok := tokens.At(index)
	prev := tokens.At(index - 1)
	next := tokens.At(index + 1)
	if tok.Text == "import" {
		return SkipLine()
	}
	if next.Text == "." && contains(s.importedModules, tok.Text) {
		return Ignore()
	}
	switch tok.Text {
	case "=":
		return Verdict{kind: verdictRightOfEqual}
	case "(":
		return Verdict{kind: verdictOpenParen}
	case ")":
		return Verdict{kind: verdictCloseParen}
	case ",":
		return Verdict{kind: verdictComma}
	}
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if strings.HasPrefix(tok.Text, "__") {
		return Ignore()
	}
	if prev.Text == "def" {
		return SkipNext()
	}
	if tok.Text != name || prev.Text == "." {
		return Ignore()
	}
	if st.insideFunction != "" {
		if contains(s.keywordArgs[st.insideFunction], tok.Text) {
			return Ignore()
		}
		if st.insideParens == 0 || next.Text != "=" {
			return recordReplacement(s.VarReplacements, name, replacement)
		}
		return Ignore()
	}
	if !st.rightOfEqual {
		if st.insideParens == 0 || next.Text != "=" {
			return recordReplacement(s.VarReplacements, name, replacement)
		}
		return Ignore()
	}
	if st.insideParens == 0 {
		return recordReplacement(s.VarReplacements, name, replacement)
	}
	return Ignore()
}

// rewriteFunction replaces an occurrence of a function name. A dotted call
// is only renamed when its receiver is itself a replacement the session
// issued, so obj.method() follows obj through both classmethod and
// instance forms.
func rewriteFunction(s *Session, tokens pytoken.Stream, index int, name, replacement string, _ rewriteState) Verdict {
	tok := tokens.At(index)
	prev := tokens.At(index - 1)
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if strings.HasPrefix(tok.Text, "__") {
		return Ignore()
	}
	if tok.Text != name {
		return Ignore()
	}
	if prev.Text != "." {
		return recordReplacement(s.FuncReplacements, name, replacement)
	}
	receiver := tokens.At(index - 2).Text
	if _, ok := s.ClassReplacements[receiver]; ok {
		return recordReplacement(s.FuncReplacements, name, replacement)
	}
	if _, ok := s.VarReplacements[receiver]; ok {
		return recordReplacement(s.FuncReplacements, name, replacement)
	}
	return Ignore()
}

// rewriteClass replaces an occurrence of a class name outside attribute
// position.
func rewriteClass(s *Session, tokens pytoken.Stream, index int, name, replacement string, _ rewriteState) Verdict {
	tok := tokens.At(index)
	prev := tokens.At(index - 1)
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if strings.HasPrefix(tok.Text, "__") {
		return Ignore()
	}
	if prev.Text != "." && tok.Text == name {
		return recordReplacement(s.ClassReplacements, name, replacement)
	}
	return Ignore()
}

// rewriteUnique replaces any NAME token matching name, with no positional
// safety checks. Only use it for names that are unique enough that position
// cannot matter, like builtin aliases.
func rewriteUnique(s *Session, tokens pytoken.Stream, index int, name, replacement string, _ rewriteState) Verdict {
	tok := tokens.At(index)
	if tok.Kind != pytoken.Name {
		return Ignore()
	}
	if tok.Text == name {
		return recordReplacement(s.UniqueReplacements, name, replacement)
	}
	return Ignore()
}
