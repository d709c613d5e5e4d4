package pytoken_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/minipy/pkg/pytoken"
)

func summarize(toks pytoken.Stream) []string {
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		out = append(out, fmt.Sprintf("%s(%q)", tok.Kind, tok.Text))
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "simple_assignment",
			source: "x = 1\n",
			want: []string{
				`NAME("x")`, `OP("=")`, `NUMBER("1")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "function_with_body",
			source: "def f():\n    pass\n",
			want: []string{
				`NAME("def")`, `NAME("f")`, `OP("(")`, `OP(")")`, `OP(":")`, `NEWLINE("\n")`,
				`INDENT("    ")`, `NAME("pass")`, `NEWLINE("\n")`,
				`DEDENT("")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "comment_only_line_is_nl",
			source: "# hi\nx = 1\n",
			want: []string{
				`COMMENT("# hi")`, `NL("\n")`,
				`NAME("x")`, `OP("=")`, `NUMBER("1")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "trailing_comment_keeps_newline",
			source: "x = 1  # tail\n",
			want: []string{
				`NAME("x")`, `OP("=")`, `NUMBER("1")`, `COMMENT("# tail")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "blank_line_is_nl",
			source: "x = 1\n\ny = 2\n",
			want: []string{
				`NAME("x")`, `OP("=")`, `NUMBER("1")`, `NEWLINE("\n")`,
				`NL("\n")`,
				`NAME("y")`, `OP("=")`, `NUMBER("2")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "newline_inside_brackets_is_nl",
			source: "x = (1,\n2)\n",
			want: []string{
				`NAME("x")`, `OP("=")`, `OP("(")`, `NUMBER("1")`, `OP(",")`, `NL("\n")`,
				`NUMBER("2")`, `OP(")")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "backslash_continuation_emits_no_token",
			source: "x = 1 + \\\n2\n",
			want: []string{
				`NAME("x")`, `OP("=")`, `NUMBER("1")`, `OP("+")`,
				`NUMBER("2")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "keywords_are_plain_names",
			source: "if x:\n    return x\n",
			want: []string{
				`NAME("if")`, `NAME("x")`, `OP(":")`, `NEWLINE("\n")`,
				`INDENT("    ")`, `NAME("return")`, `NAME("x")`, `NEWLINE("\n")`,
				`DEDENT("")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "fstring_is_single_token",
			source: "y = f\"hi {x}\"\n",
			want: []string{
				`NAME("y")`, `OP("=")`, `STRING("f\"hi {x}\"")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "raw_bytes_prefix",
			source: "d = rb'\\x00'\n",
			want: []string{
				`NAME("d")`, `OP("=")`, `STRING("rb'\\x00'")`, `NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "numbers",
			source: "a = 0x_ff + .5 + 1_000 + 2e10 + 3j + 1.e5\n",
			want: []string{
				`NAME("a")`, `OP("=")`,
				`NUMBER("0x_ff")`, `OP("+")`, `NUMBER(".5")`, `OP("+")`, `NUMBER("1_000")`,
				`OP("+")`, `NUMBER("2e10")`, `OP("+")`, `NUMBER("3j")`, `OP("+")`, `NUMBER("1.e5")`,
				`NEWLINE("\n")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "walrus_and_arrow",
			source: "def f(x) -> int:\n    if (n := x):\n        pass\n",
			want: []string{
				`NAME("def")`, `NAME("f")`, `OP("(")`, `NAME("x")`, `OP(")")`, `OP("->")`, `NAME("int")`, `OP(":")`, `NEWLINE("\n")`,
				`INDENT("    ")`, `NAME("if")`, `OP("(")`, `NAME("n")`, `OP(":=")`, `NAME("x")`, `OP(")")`, `OP(":")`, `NEWLINE("\n")`,
				`INDENT("        ")`, `NAME("pass")`, `NEWLINE("\n")`,
				`DEDENT("")`, `DEDENT("")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "missing_final_newline_is_synthesized",
			source: "x = 1",
			want: []string{
				`NAME("x")`, `OP("=")`, `NUMBER("1")`, `NEWLINE("")`, `ENDMARKER("")`,
			},
		},
		{
			name:   "empty_source",
			source: "",
			want:   []string{`ENDMARKER("")`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks, err := pytoken.Tokenize(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, summarize(toks))
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	toks, err := pytoken.Tokenize("def f():\n    pass\n")
	require.NoError(t, err)

	// def NAME spans cols 0-3 on row 1.
	assert.Equal(t, pytoken.Position{Row: 1, Col: 0}, toks[0].Start)
	assert.Equal(t, pytoken.Position{Row: 1, Col: 3}, toks[0].End)
	assert.Equal(t, "def f():\n", toks[0].Line)

	// INDENT carries the whitespace and starts at col 0.
	indent := toks[6]
	require.Equal(t, pytoken.Indent, indent.Kind)
	assert.Equal(t, pytoken.Position{Row: 2, Col: 0}, indent.Start)
	assert.Equal(t, pytoken.Position{Row: 2, Col: 4}, indent.End)

	// DEDENT is empty and positioned past the last line.
	dedent := toks[9]
	require.Equal(t, pytoken.Dedent, dedent.Kind)
	assert.Equal(t, "", dedent.Text)
	assert.Equal(t, pytoken.Position{Row: 3, Col: 0}, dedent.Start)
}

func TestTokenizeMultilineString(t *testing.T) {
	toks, err := pytoken.Tokenize("x = '''a\nb'''\n")
	require.NoError(t, err)

	var str *pytoken.Token
	for _, tok := range toks {
		if tok.Kind == pytoken.String {
			str = tok
			break
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, "'''a\nb'''", str.Text)
	assert.Equal(t, pytoken.Position{Row: 1, Col: 4}, str.Start)
	assert.Equal(t, pytoken.Position{Row: 2, Col: 4}, str.End)
	// Line holds every physical line the literal spans.
	assert.Equal(t, "x = '''a\nb'''\n", str.Line)
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{
			name:    "unterminated_string",
			source:  "x = 'abc\n",
			wantErr: "EOL while scanning string literal",
		},
		{
			name:    "unterminated_triple_string",
			source:  "x = '''abc\n",
			wantErr: "EOF in multi-line string",
		},
		{
			name:    "eof_inside_brackets",
			source:  "x = (1,\n",
			wantErr: "EOF in multi-line statement",
		},
		{
			name:    "bad_dedent",
			source:  "if x:\n    a\n  b\n",
			wantErr: "unindent does not match any outer indentation level",
		},
		{
			name:    "invalid_character",
			source:  "x = 1 $ 2\n",
			wantErr: "invalid character",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pytoken.Tokenize(tt.source)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStreamAt(t *testing.T) {
	toks, err := pytoken.Tokenize("x = 1\n")
	require.NoError(t, err)

	assert.Equal(t, "x", toks.At(0).Text)
	assert.Equal(t, "=", toks.At(1).Text)

	// Out-of-range lookups in either direction return the sentinel.
	for _, i := range []int{-1, -100, len(toks), len(toks) + 50} {
		tok := toks.At(i)
		assert.Equal(t, pytoken.NL, tok.Kind)
		assert.Equal(t, "\n", tok.Text)
		assert.Equal(t, "#\n", tok.Line)
	}

	// The sentinel is a copy, so mutating it never leaks into later lookups.
	toks.At(-1).Text = "mutated"
	assert.Equal(t, "\n", toks.At(-1).Text)
}

func TestStreamInsert(t *testing.T) {
	toks, err := pytoken.Tokenize("x = 1\n")
	require.NoError(t, err)
	extra, err := pytoken.Tokenize("y = 2\n")
	require.NoError(t, err)

	before := len(toks)
	toks.Insert(0, extra[:2]...)
	require.Len(t, toks, before+2)
	assert.Equal(t, "y", toks.At(0).Text)
	assert.Equal(t, "=", toks.At(1).Text)
	assert.Equal(t, "x", toks.At(2).Text)
}

func TestUntokenizeRoundTrip(t *testing.T) {
	sources := []string{
		"x = 1\n",
		"def f():\n    pass\n",
		"# comment\nif a:\n    b = 'str'\n",
		"x = (1,\n     2)\n",
		"class A:\n    '''doc'''\n    def m(self):\n        return 1\n",
		"while True:\n    break\n",
	}
	for _, src := range sources {
		toks, err := pytoken.Tokenize(src)
		require.NoError(t, err, "source: %q", src)
		assert.Equal(t, src, pytoken.Untokenize(toks), "source: %q", src)
	}
}

func TestDecodeSource(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		want     string
		wantName string
	}{
		{
			name:     "plain_utf8",
			data:     []byte("x = 1\n"),
			want:     "x = 1\n",
			wantName: "utf-8",
		},
		{
			name:     "utf8_bom_stripped",
			data:     append([]byte{0xef, 0xbb, 0xbf}, []byte("x = 1\n")...),
			want:     "x = 1\n",
			wantName: "utf-8",
		},
		{
			name:     "latin1_declaration",
			data:     []byte("# -*- coding: latin-1 -*-\ns = '\xe9'\n"),
			want:     "# -*- coding: latin-1 -*-\ns = '\u00e9'\n",
			wantName: "latin-1",
		},
		{
			name:     "declaration_on_second_line",
			data:     []byte("#!/usr/bin/env python\n# coding=cp1252\ns = '\x93'\n"),
			want:     "#!/usr/bin/env python\n# coding=cp1252\ns = '\u201c'\n",
			wantName: "cp1252",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, enc, err := pytoken.DecodeSource(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantName, enc)
		})
	}

	t.Run("invalid_utf8", func(t *testing.T) {
		_, _, err := pytoken.DecodeSource([]byte{'x', 0xff, 0xfe})
		require.Error(t, err)
	})

	t.Run("unknown_codec", func(t *testing.T) {
		_, _, err := pytoken.DecodeSource([]byte("# coding: martian\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported source encoding")
	})
}

func TestEncodesNonASCII(t *testing.T) {
	assert.True(t, pytoken.EncodesNonASCII("utf-8"))
	assert.True(t, pytoken.EncodesNonASCII("UTF_8"))
	assert.True(t, pytoken.EncodesNonASCII("utf8"))
	assert.False(t, pytoken.EncodesNonASCII("ascii"))
	assert.False(t, pytoken.EncodesNonASCII("latin-1"))
	assert.False(t, pytoken.EncodesNonASCII("cp1252"))
}
