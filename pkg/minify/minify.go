// Package minify shrinks Python source without changing what it does.
// Most passes are source-to-source string transforms stitched together by
// Minify; the first two work directly on the token stream so that comments
// and docstrings can be blanked in place before reassembly.
package minify

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/walteh/minipy/pkg/analyze"
	"github.com/walteh/minipy/pkg/pytoken"
)

var (
	multilineQuotedString = regexp.MustCompile(`('''|""")`)
	notQuotedString       = regexp.MustCompile(`(".*'''.*"|'.*""".*')`)
	trailingNewlines      = regexp.MustCompile(`\n\n`)
	multilineIndicator    = regexp.MustCompile(`\\(\s*#.*)?\n`)
	// Matches bare def headers only. A def that already carries an inline
	// body must not match, or re-running the pass would stack another pass
	// statement onto it.
	emptyMethod = regexp.MustCompile(`^\s*def\s*.*\(.*\)\s*:\s*$`)
)

// Options controls the optional behaviors of Minify.
type Options struct {
	// Tabs indents with tabulators instead of single spaces.
	Tabs bool
}

// Minify runs the whole pass pipeline over tokens and returns the
// minified source. The token texts are modified along the way.
func Minify(ctx context.Context, tokens pytoken.Stream, opts Options) (string, error) {
	if err := RemoveComments(&tokens); err != nil {
		return "", err
	}
	RemoveDocstrings(tokens)
	result := pytoken.Untokenize(tokens)
	result = RemoveContinuations(result)
	result = FixEmptyMethods(result)
	result = JoinMultilinePairs(result, "()")
	result = JoinMultilinePairs(result, "[]")
	result = JoinMultilinePairs(result, "{}")
	result = RemoveBlankLines(result)
	result, err := ReduceOperators(result)
	if err != nil {
		return "", err
	}
	result, err = Dedent(result, opts.Tabs)
	if err != nil {
		return "", err
	}
	zerolog.Ctx(ctx).Debug().
		Int("tokens", len(tokens)).
		Int("bytes", len(result)).
		Msg("minified source")
	return result, nil
}

// RemoveComments blanks every comment token in place. A shebang or a PEP
// 263 coding declaration on the first lines is preserved by re-tokenizing
// it and splicing it back onto the front of the stream.
func RemoveComments(tokens *pytoken.Stream) error {
	preservedShebang := ""
	preservedEncoding := ""
	limit := 4
	if len(*tokens) < limit {
		limit = len(*tokens)
	}
	for _, tok := range (*tokens)[:limit] {
		if analyze.ShebangLine.MatchString(tok.Line) {
			preservedShebang = tok.Line
		} else if analyze.CodingLine.MatchString(tok.Line) {
			preservedEncoding = tok.Line
		}
	}
	for _, tok := range *tokens {
		if tok.Kind == pytoken.Comment {
			tok.Text = ""
		}
	}
	preserved := preservedShebang + preservedEncoding
	if preserved == "" {
		return nil
	}
	ptoks, err := pytoken.Tokenize(preserved)
	if err != nil {
		return err
	}
	ptoks = ptoks[:len(ptoks)-1] // drop the end marker
	for i := len(ptoks) - 1; i >= 0; i-- {
		tokens.Insert(0, ptoks[i])
	}
	return nil
}

// RemoveDocstrings blanks docstring tokens in place, along with the
// indentation and newline tokens that would otherwise leave an empty line
// behind. Strings that follow an INDENT are function or class docstrings;
// strings between an NL and a NEWLINE are module-level ones.
func RemoveDocstrings(tokens pytoken.Stream) {
	prevKind := pytoken.Kind(-1)
	for i, tok := range tokens {
		if tok.Kind == pytoken.String {
			if prevKind == pytoken.Indent {
				tok.Text = ""
				tokens.At(i - 1).Text = ""
				tokens.At(i - 2).Text = ""
			} else if prevKind == pytoken.NL && tokens.At(i+1).Kind == pytoken.Newline {
				tok.Text = ""
				tokens.At(i + 1).Text = ""
			}
		}
		prevKind = tok.Kind
	}
}

// RemoveContinuations deletes backslash line continuations, including ones
// with a trailing comment after the backslash.
func RemoveContinuations(source string) string {
	return multilineIndicator.ReplaceAllString(source, "")
}

// FixEmptyMethods turns functions that lost their entire body (docstring
// removal tends to do that) into one-liners ending in pass. A def is
// considered empty when the next non-blank line sits at the same or a
// shallower indentation.
func FixEmptyMethods(source string) string {
	defIndentation := 0
	output := ""
	justMatched := false
	previousLine := ""
	for _, line := range strings.Split(source, "\n") {
		stripped := strings.TrimSpace(line)
		if len(stripped) > 0 {
			switch {
			case justMatched:
				thisIndentation := len(strings.TrimRightFunc(line, unicode.IsSpace)) - len(stripped)
				if defIndentation >= thisIndentation {
					output += previousLine + " pass\n" + line + "\n"
				} else {
					output += previousLine + "\n" + line + "\n"
				}
				justMatched = false
			case emptyMethod.MatchString(line):
				defIndentation = len(line) - len(stripped)
				justMatched = true
				previousLine = line
			default:
				output += line + "\n"
			}
		} else {
			output += "\n"
		}
	}
	if justMatched {
		// The def was the last non-blank line in the file.
		output += previousLine + " pass\n"
	}
	return output
}

// RemoveBlankLines drops lines that contain nothing but whitespace.
func RemoveBlankLines(source string) string {
	var out strings.Builder
	for _, line := range strings.SplitAfter(source, "\n") {
		if strings.TrimSpace(line) != "" {
			out.WriteString(line)
		}
	}
	return out.String()
}

// ReduceOperators removes the spaces around operators, drops trailing
// commas before a closing bracket, and joins adjacent string literals
// ("foo" "bar") into a single triple-quoted one.
func ReduceOperators(source string) (string, error) {
	tokens, err := pytoken.Tokenize(source)
	if err != nil {
		return "", err
	}
	out := ""
	lastRow := -1
	lastCol := 0
	var prevTok *pytoken.Token
	joiningStrings := false
	newString := ""
	for _, tok := range tokens {
		if tok.Start.Row > lastRow {
			lastCol = 0
		}
		if tok.Start.Col > lastCol && tok.Kind != pytoken.NL && tok.Kind != pytoken.Newline {
			afterOp := prevTok != nil && prevTok.Kind == pytoken.Op
			// An operator mid-line loses the space before it, but one that
			// starts its own line, a decorator or an unpacking paren, keeps
			// its indentation.
			beforeOp := tok.Kind == pytoken.Op && prevTok != nil &&
				prevTok.Kind != pytoken.Newline && prevTok.Kind != pytoken.NL &&
				prevTok.Kind != pytoken.Indent && prevTok.Kind != pytoken.Dedent
			if !afterOp && !beforeOp {
				out += strings.Repeat(" ", tok.Start.Col-lastCol)
			}
		}
		if tok.Kind == pytoken.Op {
			switch tok.Text {
			case "}", ")", "]":
				if prevTok != nil && prevTok.Text == "," {
					out = strings.TrimRight(out, ",")
				}
			}
		}
		if tok.Kind == pytoken.String && prevTok != nil && prevTok.Kind == pytoken.String {
			// Join the literals; triple quotes keep this valid when the
			// originals mixed single and double quoting.
			stringType := string(tok.Text[0])
			prevStringType := string(prevTok.Text[0])
			out = strings.TrimRight(out, " ")
			if !joiningStrings {
				out = strings.TrimSuffix(out, prevTok.Text)
				newString = strings.Trim(prevTok.Text, prevStringType) +
					strings.Trim(tok.Text, stringType)
				joiningStrings = true
			} else {
				newString += strings.Trim(tok.Text, stringType)
			}
		} else {
			if joiningStrings {
				out += "'''" + newString + "'''"
				joiningStrings = false
			}
			out += tok.Text
		}
		prevTok = tok
		lastCol = tok.End.Col
		lastRow = tok.End.Row
	}
	return out, nil
}

// JoinMultilinePairs rewrites text so that a bracket pair opened and
// closed on different lines ends up on one line. pair names the bracket
// characters, "()" by default in Minify, with "[]" and "{}" covered by
// their own passes. Triple-quoted string regions pass through untouched.
func JoinMultilinePairs(text, pair string) string {
	opener := rune(pair[0])
	closer := rune(pair[1])

	insidePair := false
	insideQuotes := false
	insideDoubleQuotes := false
	insideSingleQuotes := false
	quotedString := false
	openers := 0
	closers := 0

	var output []rune
	appendLine := func(line string) {
		output = append(output, []rune(line)...)
		output = append(output, '\n')
	}
	for _, line := range strings.Split(text, "\n") {
		escaped := false
		multilineMatch := multilineQuotedString.MatchString(line)
		notQuotedMatch := notQuotedString.MatchString(line)
		switch {
		case multilineMatch && !notQuotedMatch && !quotedString:
			if strings.Count(line, `"""`) >= 2 || strings.Count(line, "'''") >= 2 {
				// Opened and closed on the same line, nothing to track.
				appendLine(line)
				quotedString = false
			} else {
				appendLine(line)
				quotedString = true
			}
		case quotedString && multilineMatch:
			appendLine(line)
			quotedString = false
		case !quotedString:
			if !strings.ContainsRune(line, opener) && !strings.ContainsRune(line, closer) && !insidePair {
				appendLine(line)
				continue
			}
			for _, ch := range line {
				switch {
				case ch == opener:
					if !escaped && !insideQuotes {
						openers++
						insidePair = true
					} else {
						escaped = false
					}
					output = append(output, ch)
				case ch == closer:
					if !escaped && !insideQuotes {
						if openers > 0 && openers == closers+1 {
							closers = 0
							openers = 0
							insidePair = false
						} else {
							closers++
						}
					} else {
						escaped = false
					}
					output = append(output, ch)
				case ch == '\\':
					escaped = !escaped
					output = append(output, ch)
				case ch == '"' && escaped:
					output = append(output, ch)
					escaped = false
				case ch == '\'' && escaped:
					output = append(output, ch)
					escaped = false
				case ch == '"' && insideQuotes:
					if !insideSingleQuotes {
						insideQuotes = false
						insideDoubleQuotes = false
					}
					output = append(output, ch)
				case ch == '\'' && insideQuotes:
					if !insideDoubleQuotes {
						insideQuotes = false
						insideSingleQuotes = false
					}
					output = append(output, ch)
				case ch == '"':
					insideQuotes = true
					insideDoubleQuotes = true
					output = append(output, ch)
				case ch == '\'':
					insideQuotes = true
					insideSingleQuotes = true
					output = append(output, ch)
				case ch == ' ' && insidePair && !insideQuotes:
					if len(output) > 0 && output[len(output)-1] != ' ' && output[len(output)-1] != opener {
						output = append(output, ch)
					}
				default:
					if escaped {
						escaped = false
					}
					output = append(output, ch)
				}
			}
			if !insidePair {
				output = append(output, '\n')
			}
		default:
			appendLine(line)
		}
	}
	return trailingNewlines.ReplaceAllString(string(output), "\n")
}

// Dedent shrinks every indentation level to a single character, either a
// space or a tab. Works because the tokenizer records levels, not widths,
// so one character per level round-trips to the same block structure.
func Dedent(source string, useTabs bool) (string, error) {
	indentChar := " "
	if useTabs {
		indentChar = "\t"
	}
	tokens, err := pytoken.Tokenize(source)
	if err != nil {
		return "", err
	}
	out := ""
	lastRow := -1
	lastCol := 0
	prevStartRow := 0
	indentationLevel := 0
	for _, tok := range tokens {
		if tok.Start.Row > lastRow {
			lastCol = 0
		}
		if tok.Kind == pytoken.Indent {
			indentationLevel++
			continue
		}
		if tok.Kind == pytoken.Dedent {
			indentationLevel--
			continue
		}
		switch {
		case tok.Start.Row > prevStartRow:
			// Commas and dots starting a line happen when a joined pair
			// got split oddly; indenting them would change the syntax.
			if tok.Text == "," || tok.Text == "." {
				out += tok.Text
			} else {
				out += strings.Repeat(indentChar, indentationLevel) + tok.Text
			}
		case tok.Start.Col > lastCol:
			out += indentChar + tok.Text
		default:
			out += tok.Text
		}
		prevStartRow = tok.Start.Row
		lastRow = tok.End.Row
		lastCol = tok.End.Col
	}
	return out, nil
}

// StripCommentsAndDocstrings is the one-shot variant: it returns source
// minus comments and docstrings without running the rest of the pipeline.
func StripCommentsAndDocstrings(source string) (string, error) {
	tokens, err := pytoken.Tokenize(source)
	if err != nil {
		return "", err
	}
	out := ""
	prevKind := pytoken.Indent
	lastRow := -1
	lastCol := 0
	for _, tok := range tokens {
		if tok.Start.Row > lastRow {
			lastCol = 0
		}
		if tok.Start.Col > lastCol {
			out += strings.Repeat(" ", tok.Start.Col-lastCol)
		}
		switch {
		case tok.Kind == pytoken.Comment:
			// Dropped.
		case tok.Kind == pytoken.String:
			if prevKind != pytoken.Indent && prevKind != pytoken.Newline && tok.Start.Col > 0 {
				out += tok.Text
			}
		default:
			out += tok.Text
		}
		prevKind = tok.Kind
		lastRow = tok.End.Row
		lastCol = tok.End.Col
	}
	return out, nil
}
