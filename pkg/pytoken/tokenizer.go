package pytoken

import (
	"strings"
	"unicode"

	"gitlab.com/tozd/go/errors"
)

// tabSize is the tab stop width used when measuring indentation levels,
// matching the tokenize module's default.
const tabSize = 8

// operators holds every operator and delimiter, longest first so that
// matching is greedy ("**=" before "**" before "*").
var operators = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"->", ":=", "<=", ">=", "==", "!=", "+=", "-=", "*=", "/=", "%=",
	"&=", "|=", "^=", "@=", "**", "//", ">>", "<<",
	"+", "-", "*", "/", "%", "@", "&", "|", "^", "~",
	"<", ">", "(", ")", "[", "]", "{", "}", ",", ":", ".", ";", "=",
}

var stringPrefixes = map[string]bool{
	"r": true, "b": true, "u": true, "f": true,
	"br": true, "rb": true, "fr": true, "rf": true,
}

// Tokenize scans Python source text into a Stream. The stream ends with
// any pending dedents followed by an end marker. Carriage returns are
// normalized away first, the same way reading the file in text mode would.
//
// Errors are returned for input the tokenize module itself would reject:
// unterminated strings, EOF inside a bracket pair or continuation, and
// inconsistent dedents. Passes downstream assume their input tokenized
// cleanly.
func Tokenize(source string) (Stream, error) {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")

	sc := &scanner{
		lines:   splitLines(source),
		indents: []int{0},
	}
	for _, l := range sc.lines {
		sc.runes = append(sc.runes, []rune(l))
	}
	return sc.run()
}

type scanner struct {
	lines   []string
	runes   [][]rune
	row     int // physical line index, 0-based
	col     int // rune offset within the current line
	depth   int // open bracket nesting
	indents []int
	toks    Stream
}

func splitLines(source string) []string {
	if source == "" {
		return nil
	}
	lines := strings.SplitAfter(source, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (sc *scanner) line() []rune {
	return sc.runes[sc.row]
}

func (sc *scanner) emit(kind Kind, text string, start, end Position, line string) {
	sc.toks = append(sc.toks, &Token{
		Kind:  kind,
		Text:  text,
		Start: start,
		End:   end,
		Line:  line,
	})
}

func (sc *scanner) run() (Stream, error) {
	continued := false
	for sc.row < len(sc.runes) {
		sc.col = 0
		if sc.depth == 0 && !continued {
			done, err := sc.startOfStatement()
			if err != nil {
				return nil, err
			}
			if done {
				sc.row++
				continue
			}
		}
		continued = false
		cont, err := sc.scanTokens()
		if err != nil {
			return nil, err
		}
		continued = cont
		sc.row++
	}
	if sc.depth > 0 || continued {
		return nil, errors.New("EOF in multi-line statement")
	}

	endRow := len(sc.runes) + 1
	if n := len(sc.lines); n > 0 {
		last := sc.lines[n-1]
		if !strings.HasSuffix(last, "\n") {
			trimmed := strings.TrimSpace(last)
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				// The file ends mid-statement without a newline, so the
				// logical line still needs closing.
				col := len([]rune(last))
				sc.emit(Newline, "", Position{n, col}, Position{n, col + 1}, "")
			}
		}
	}
	for len(sc.indents) > 1 {
		sc.indents = sc.indents[:len(sc.indents)-1]
		sc.emit(Dedent, "", Position{endRow, 0}, Position{endRow, 0}, "")
	}
	sc.emit(EndMarker, "", Position{endRow, 0}, Position{endRow, 0}, "")
	return sc.toks, nil
}

// startOfStatement measures leading whitespace on a fresh logical line and
// emits INDENT/DEDENT tokens as the level changes. Blank and comment-only
// lines are consumed entirely here (they never affect indentation) and
// reported via done.
func (sc *scanner) startOfStatement() (done bool, err error) {
	line := sc.line()
	row := sc.row + 1
	pos := 0
	column := 0
	for pos < len(line) {
		switch line[pos] {
		case ' ':
			column++
		case '\t':
			column = column/tabSize*tabSize + tabSize
		case '\f':
			column = 0
		default:
			goto measured
		}
		pos++
	}
measured:
	if pos == len(line) {
		// Whitespace-only final line with no newline.
		return true, nil
	}
	if line[pos] == '#' || line[pos] == '\n' {
		if line[pos] == '#' {
			text := strings.TrimRight(string(line[pos:]), "\n")
			end := pos + len([]rune(text))
			sc.emit(Comment, text, Position{row, pos}, Position{row, end}, sc.lines[sc.row])
			pos = end
		}
		sc.emit(NL, string(line[pos:]), Position{row, pos}, Position{row, len(line)}, sc.lines[sc.row])
		return true, nil
	}
	if column > sc.indents[len(sc.indents)-1] {
		sc.indents = append(sc.indents, column)
		sc.emit(Indent, string(line[:pos]), Position{row, 0}, Position{row, pos}, sc.lines[sc.row])
	}
	for column < sc.indents[len(sc.indents)-1] {
		if !containsInt(sc.indents, column) {
			return false, errors.Errorf("line %d: unindent does not match any outer indentation level", row)
		}
		sc.indents = sc.indents[:len(sc.indents)-1]
		sc.emit(Dedent, "", Position{row, pos}, Position{row, pos}, sc.lines[sc.row])
	}
	sc.col = pos
	return false, nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// scanTokens consumes the rest of the current physical line. Multi-line
// strings advance sc.row themselves. Returns continued=true when the line
// ends in a backslash continuation.
func (sc *scanner) scanTokens() (continued bool, err error) {
	for sc.col < len(sc.line()) {
		line := sc.line()
		row := sc.row + 1
		r := line[sc.col]
		switch {
		case r == ' ' || r == '\t' || r == '\f':
			sc.col++
		case r == '\n':
			kind := Newline
			if sc.depth > 0 {
				kind = NL
			}
			sc.emit(kind, "\n", Position{row, sc.col}, Position{row, sc.col + 1}, sc.lines[sc.row])
			sc.col++
			return false, nil
		case r == '#':
			text := strings.TrimRight(string(line[sc.col:]), "\n")
			end := sc.col + len([]rune(text))
			sc.emit(Comment, text, Position{row, sc.col}, Position{row, end}, sc.lines[sc.row])
			sc.col = end
		case r == '\\':
			if sc.col+1 == len(line) || line[sc.col+1] == '\n' {
				return true, nil
			}
			return false, errors.Errorf("line %d: unexpected character after line continuation", row)
		case isQuote(r) || sc.atStringPrefix():
			if err := sc.scanString(); err != nil {
				return false, err
			}
		case unicode.IsDigit(r) || (r == '.' && sc.col+1 < len(line) && unicode.IsDigit(line[sc.col+1])):
			sc.scanNumber()
		case isIdentStart(r):
			sc.scanName()
		default:
			op := sc.matchOperator()
			if op == "" {
				return false, errors.Errorf("line %d: invalid character %q", row, r)
			}
			switch op {
			case "(", "[", "{":
				sc.depth++
			case ")", "]", "}":
				sc.depth--
			}
			sc.emit(Op, op, Position{row, sc.col}, Position{row, sc.col + len(op)}, sc.lines[sc.row])
			sc.col += len(op)
		}
	}
	return false, nil
}

func isQuote(r rune) bool {
	return r == '\'' || r == '"'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentCont(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atStringPrefix reports whether the scanner sits on a one- or two-letter
// string prefix (r, b, u, f and their pairings) directly followed by a
// quote character.
func (sc *scanner) atStringPrefix() bool {
	line := sc.line()
	for n := 1; n <= 2; n++ {
		if sc.col+n >= len(line) || !isQuote(line[sc.col+n]) {
			continue
		}
		prefix := strings.ToLower(string(line[sc.col : sc.col+n]))
		if stringPrefixes[prefix] {
			return true
		}
	}
	return false
}

func (sc *scanner) matchOperator() string {
	line := sc.line()
	for _, op := range operators {
		runes := []rune(op)
		if sc.col+len(runes) > len(line) {
			continue
		}
		if string(line[sc.col:sc.col+len(runes)]) == op {
			return op
		}
	}
	return ""
}

func (sc *scanner) scanName() {
	line := sc.line()
	row := sc.row + 1
	start := sc.col
	for sc.col < len(line) && isIdentCont(line[sc.col]) {
		sc.col++
	}
	sc.emit(Name, string(line[start:sc.col]), Position{row, start}, Position{row, sc.col}, sc.lines[sc.row])
}

func (sc *scanner) scanNumber() {
	line := sc.line()
	row := sc.row + 1
	start := sc.col
	isDigitSep := func(r rune) bool { return unicode.IsDigit(r) || r == '_' }

	if line[sc.col] == '0' && sc.col+1 < len(line) && strings.ContainsRune("xXoObB", line[sc.col+1]) {
		sc.col += 2
		for sc.col < len(line) && (isHexDigit(line[sc.col]) || line[sc.col] == '_') {
			sc.col++
		}
	} else {
		for sc.col < len(line) && isDigitSep(line[sc.col]) {
			sc.col++
		}
		if sc.col < len(line) && line[sc.col] == '.' {
			sc.col++
			for sc.col < len(line) && isDigitSep(line[sc.col]) {
				sc.col++
			}
		}
		if sc.col < len(line) && (line[sc.col] == 'e' || line[sc.col] == 'E') {
			// Only an exponent when digits actually follow.
			j := sc.col + 1
			if j < len(line) && (line[j] == '+' || line[j] == '-') {
				j++
			}
			if j < len(line) && unicode.IsDigit(line[j]) {
				sc.col = j
				for sc.col < len(line) && isDigitSep(line[sc.col]) {
					sc.col++
				}
			}
		}
	}
	if sc.col < len(line) && (line[sc.col] == 'j' || line[sc.col] == 'J') {
		sc.col++
	}
	sc.emit(Number, string(line[start:sc.col]), Position{row, start}, Position{row, sc.col}, sc.lines[sc.row])
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// scanString consumes a string literal starting at the current position,
// prefix included. Triple-quoted strings and backslash-continued
// single-quoted strings may span physical lines; the emitted token's Line
// holds every spanned physical line, the way tokenize reports it.
func (sc *scanner) scanString() error {
	startRow := sc.row
	startCol := sc.col
	line := sc.line()

	var text []rune
	i := sc.col
	for !isQuote(line[i]) {
		text = append(text, line[i])
		i++
	}
	quote := line[i]
	triple := i+2 < len(line) && line[i+1] == quote && line[i+2] == quote

	if triple {
		text = append(text, quote, quote, quote)
		i += 3
	} else {
		text = append(text, quote)
		i++
	}

	for {
		if i >= len(line) {
			if !triple {
				return errors.Errorf("line %d: EOL while scanning string literal", sc.row+1)
			}
			if sc.row+1 >= len(sc.runes) {
				return errors.Errorf("line %d: EOF in multi-line string", startRow+1)
			}
			sc.row++
			line = sc.line()
			i = 0
			continue
		}
		r := line[i]
		switch {
		case r == '\\':
			if i+1 >= len(line) {
				return errors.Errorf("line %d: EOF in multi-line string", startRow+1)
			}
			next := line[i+1]
			if next == '\n' && !triple {
				// Escaped newline continues the literal on the next line.
				if sc.row+1 >= len(sc.runes) {
					return errors.Errorf("line %d: EOF in multi-line string", startRow+1)
				}
				text = append(text, '\\', '\n')
				sc.row++
				line = sc.line()
				i = 0
				continue
			}
			text = append(text, r, next)
			i += 2
		case r == '\n' && !triple:
			return errors.Errorf("line %d: EOL while scanning string literal", sc.row+1)
		case r == quote && triple:
			if i+2 < len(line) && line[i+1] == quote && line[i+2] == quote {
				text = append(text, quote, quote, quote)
				i += 3
				goto closed
			}
			text = append(text, r)
			i++
		case r == quote && !triple:
			text = append(text, r)
			i++
			goto closed
		default:
			text = append(text, r)
			i++
		}
	}

closed:
	lineText := sc.lines[startRow]
	if sc.row > startRow {
		lineText = strings.Join(sc.lines[startRow:sc.row+1], "")
	}
	sc.emit(String, string(text),
		Position{startRow + 1, startCol},
		Position{sc.row + 1, i},
		lineText)
	sc.col = i
	return nil
}
