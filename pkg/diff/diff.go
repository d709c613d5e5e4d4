// Package diff renders line diffs of source transformations for the --diff
// preview.
package diff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var (
	insertColor = color.New(color.FgGreen)
	deleteColor = color.New(color.FgRed)
)

// Render produces a line-oriented diff of original against transformed with
// +/- prefixes, colorized unless color output is disabled.
func Render(original, transformed string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(original, transformed)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := " "
		var paint *color.Color
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix, paint = "+", insertColor
		case diffmatchpatch.DiffDelete:
			prefix, paint = "-", deleteColor
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			text := prefix + strings.TrimSuffix(line, "\n")
			if paint != nil {
				text = paint.Sprint(text)
			}
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Preview renders a two-line file header followed by the body diff.
func Preview(path, original, transformed string) string {
	return fmt.Sprintf("--- %s\n+++ %s (transformed)\n%s",
		path, path, Render(original, transformed))
}
