package obfuscate_test

import (
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/minipy/pkg/analyze"
	"github.com/walteh/minipy/pkg/obfuscate"
)

func TestNameGeneratorDeterministic(t *testing.T) {
	a := obfuscate.NewNameGenerator(42, 1, false)
	b := obfuscate.NewNameGenerator(42, 1, false)
	for i := 0; i < 60; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestNameGeneratorUniqueAndLegal(t *testing.T) {
	g := obfuscate.NewNameGenerator(7, 1, false)
	seen := map[string]struct{}{}
	lastLen := 0
	for i := 0; i < 200; i++ {
		name := g.Next()
		_, dup := seen[name]
		require.False(t, dup, "draw %d repeated %q", i, name)
		seen[name] = struct{}{}
		require.False(t, analyze.IsReserved(name), "draw %d yielded reserved word %q", i, name)
		require.GreaterOrEqual(t, len(name), lastLen)
		lastLen = len(name)
	}
}

func TestNameGeneratorExhaustsLengthBeforeGrowing(t *testing.T) {
	g := obfuscate.NewNameGenerator(3, 1, false)
	// The alphabet is a-z plus A-Y: 51 single-character names.
	letters := map[string]struct{}{}
	for i := 0; i < 51; i++ {
		name := g.Next()
		require.Len(t, name, 1)
		letters[name] = struct{}{}
	}
	assert.Len(t, letters, 51)
	assert.NotContains(t, letters, "Z")
	assert.Len(t, g.Next(), 2)
}

func TestNameGeneratorStartingLength(t *testing.T) {
	g := obfuscate.NewNameGenerator(1, 2, false)
	assert.Len(t, g.Next(), 2)
}

func TestNameGeneratorNonlatin(t *testing.T) {
	g := obfuscate.NewNameGenerator(11, 1, true)
	h := obfuscate.NewNameGenerator(11, 1, true)
	for i := 0; i < 30; i++ {
		name := g.Next()
		assert.Equal(t, name, h.Next())
		for _, r := range name {
			assert.GreaterOrEqual(t, int(r), 1580)
			assert.True(t, unicode.IsLetter(r), "draw %d contains non-letter %q", i, r)
		}
	}
}
