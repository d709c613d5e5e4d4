package obfuscate

import (
	"math/rand"
	"unicode"

	"golang.org/x/text/unicode/bidi"

	"github.com/walteh/minipy/pkg/analyze"
)

const (
	// nonlatinStart is the first code point considered for the non-Latin
	// pool, past the Latin and Cyrillic-adjacent blocks.
	nonlatinStart = 1580
	// nonlatinPoolSize caps how many letters the non-Latin pool collects.
	nonlatinPoolSize = 1000
)

// NameGenerator yields replacement identifiers: every name of the current
// length in sequence, then every name one character longer, and so on. The
// alphabet order comes from a seeded shuffle, so two generators built with
// the same seed and options emit identical sequences. Reserved words and
// builtin names are never yielded, and no name is ever yielded twice.
type NameGenerator struct {
	alphabet []rune
	length   int
	counter  int
	limit    int
	issued   map[string]struct{}
}

// NewNameGenerator builds a generator starting at names of identifierLength
// characters. With useNonlatin the alphabet is a pool of non-Latin letters
// mixing left-to-right and right-to-left scripts; otherwise it is the ASCII
// letters.
func NewNameGenerator(seed int64, identifierLength int, useNonlatin bool) *NameGenerator {
	if identifierLength < 1 {
		identifierLength = 1
	}
	rng := rand.New(rand.NewSource(seed))
	var alphabet []rune
	if useNonlatin {
		alphabet = nonlatinAlphabet(rng)
	} else {
		alphabet = asciiAlphabet()
	}
	rng.Shuffle(len(alphabet), func(i, j int) {
		alphabet[i], alphabet[j] = alphabet[j], alphabet[i]
	})
	g := &NameGenerator{
		alphabet: alphabet,
		length:   identifierLength,
		issued:   map[string]struct{}{},
	}
	g.limit = 1
	for i := 0; i < identifierLength; i++ {
		g.limit *= len(alphabet)
	}
	return g
}

// Next returns the next unique replacement identifier.
func (g *NameGenerator) Next() string {
	for {
		name := g.nameAt(g.counter)
		g.counter++
		if g.counter == g.limit {
			g.counter = 0
			g.length++
			g.limit *= len(g.alphabet)
		}
		if analyze.IsReserved(name) {
			continue
		}
		if _, taken := g.issued[name]; taken {
			continue
		}
		g.issued[name] = struct{}{}
		return name
	}
}

// nameAt expands n into base-len(alphabet) digits padded to the current
// identifier length, most significant digit first.
func (g *NameGenerator) nameAt(n int) string {
	digits := make([]rune, g.length)
	for i := g.length - 1; i >= 0; i-- {
		digits[i] = g.alphabet[n%len(g.alphabet)]
		n /= len(g.alphabet)
	}
	return string(digits)
}

// asciiAlphabet is a-z followed by A-Y.
func asciiAlphabet() []rune {
	letters := make([]rune, 0, 51)
	for r := 'a'; r <= 'z'; r++ {
		letters = append(letters, r)
	}
	for r := 'A'; r < 'Z'; r++ {
		letters = append(letters, r)
	}
	return letters
}

// nonlatinAlphabet draws random letters from the upper code-point ranges,
// keeping only those whose bidirectional class differs from the previously
// examined letter. The result is a pool that alternates between
// left-to-right and right-to-left scripts, which makes the rendered output
// especially disorienting.
func nonlatinAlphabet(rng *rand.Rand) []rune {
	span := int(unicode.MaxRune) - nonlatinStart + 1
	pool := make([]rune, 0, nonlatinPoolSize)
	lastRTL := false
	for len(pool) < nonlatinPoolSize {
		r := rune(nonlatinStart + rng.Intn(span))
		if !unicode.In(r, unicode.Ll, unicode.Lu, unicode.Lm, unicode.Lo) {
			continue
		}
		rtl := rightToLeft(r)
		if rtl != lastRTL {
			pool = append(pool, r)
		}
		lastRTL = rtl
	}
	return pool
}

func rightToLeft(r rune) bool {
	props, _ := bidi.LookupRune(r)
	class := props.Class()
	return class == bidi.R || class == bidi.AL
}
