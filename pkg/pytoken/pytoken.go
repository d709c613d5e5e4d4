// Package pytoken provides a Python tokenizer whose output mirrors the
// stream produced by CPython's tokenize module: the same token categories,
// the same (row, column) coordinates, and the same attached physical line
// text. Downstream passes edit the stream in place and rely on the exact
// NL/NEWLINE/INDENT/DEDENT bookkeeping CPython produces, so fidelity to
// that model matters more than lexical elegance here.
package pytoken

// Kind classifies a token the way the tokenize module does.
type Kind int

const (
	// EndMarker terminates every stream.
	EndMarker Kind = iota
	// Name is an identifier or keyword (keywords are not distinguished).
	Name
	// Number is any numeric literal.
	Number
	// String is any string literal, including prefixed and triple-quoted.
	String
	// Op is any operator or delimiter.
	Op
	// Comment is a '#' comment, excluding the trailing newline.
	Comment
	// Newline ends a logical line.
	Newline
	// NL is a newline that does not end a logical line: a blank line, a
	// comment-only line, or a line break inside an open bracket pair.
	NL
	// Indent marks an increase in indentation. Its text is the
	// indentation itself.
	Indent
	// Dedent marks a decrease in indentation. Its text is empty.
	Dedent
)

var kindNames = map[Kind]string{
	EndMarker: "ENDMARKER",
	Name:      "NAME",
	Number:    "NUMBER",
	String:    "STRING",
	Op:        "OP",
	Comment:   "COMMENT",
	Newline:   "NEWLINE",
	NL:        "NL",
	Indent:    "INDENT",
	Dedent:    "DEDENT",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Position is a point in the source. Row counts from 1, Col from 0,
// matching tokenize coordinates. Columns count runes, not bytes.
type Position struct {
	Row int
	Col int
}

// Token is one lexical unit. Text is mutable: passes delete a token by
// setting Text to the empty string, which keeps the positional bookkeeping
// of its neighbors intact. Line is the full physical line the token came
// from (all spanned lines for a multi-line string), used to spot shebangs
// and encoding declarations without re-reading the file.
type Token struct {
	Kind  Kind
	Text  string
	Start Position
	End   Position
	Line  string
}

// Stream is an ordered, index-addressable, mutable token sequence.
type Stream []*Token

// sentinel stands in for any out-of-range lookup so that classifier
// functions stay total near the edges of a stream.
var sentinel = Token{
	Kind:  NL,
	Text:  "\n",
	Start: Position{Row: 1, Col: 1},
	End:   Position{Row: 1, Col: 2},
	Line:  "#\n",
}

// At returns the token at index i, or a synthetic end-of-line token when i
// is out of range on either side. The sentinel is a copy each time, so
// callers may not mutate the stream through it.
func (s Stream) At(i int) *Token {
	if i < 0 || i >= len(s) {
		boundary := sentinel
		return &boundary
	}
	return s[i]
}

// Insert splices toks into the stream before index i. Inserted runs must be
// whole re-tokenized mini-sequences so the stream remains reassemblable.
func (s *Stream) Insert(i int, toks ...*Token) {
	out := make(Stream, 0, len(*s)+len(toks))
	out = append(out, (*s)[:i]...)
	out = append(out, toks...)
	out = append(out, (*s)[i:]...)
	*s = out
}

// Untokenize reconstructs source text from a stream, restoring horizontal
// whitespace from the recorded column positions. Tokens whose text was
// blanked contribute only their padding.
func Untokenize(tokens Stream) string {
	out := make([]byte, 0, 256)
	lastRow := -1
	lastCol := 0
	for _, tok := range tokens {
		if tok.Start.Row > lastRow {
			lastCol = 0
		}
		for n := tok.Start.Col - lastCol; n > 0; n-- {
			out = append(out, ' ')
		}
		out = append(out, tok.Text...)
		lastRow = tok.End.Row
		lastCol = tok.End.Col
	}
	return string(out)
}
