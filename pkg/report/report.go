// Package report prints the size summaries shown after minification and
// packing.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/apparentlymart/go-textseg/v13/textseg"
	"github.com/fatih/color"
)

var (
	pathColor    = color.New(color.FgCyan)
	percentColor = color.New(color.FgGreen)
)

// Percent reports newSize as a percentage of originalSize, rounded to two
// decimals. A zero originalSize yields 0.
func Percent(newSize, originalSize int64) float64 {
	if originalSize == 0 {
		return 0
	}
	return math.Round(float64(newSize)/float64(originalSize)*100*100) / 100
}

// FormatPercent renders a percentage without trailing zeros.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Printer writes human-readable result lines. Color is applied unless the
// color package has disabled it for the destination.
type Printer struct {
	Out io.Writer
}

// File prints the per-file reduction line.
func (p *Printer) File(path string, originalSize, newSize int64) {
	fmt.Fprintf(p.Out, "%s (%d) reduced to %d bytes (%s%% of original size)\n",
		pathColor.Sprint(path), originalSize, newSize,
		percentColor.Sprint(FormatPercent(Percent(newSize, originalSize))))
}

// Overall prints the combined reduction across every processed file.
func (p *Printer) Overall(originalTotal, newTotal int64) {
	fmt.Fprintf(p.Out, "Overall size reduction: %s%% of original size\n",
		percentColor.Sprint(FormatPercent(Percent(newTotal, originalTotal))))
}

// Zip prints the summary for an executable zip, listing the modules that
// were bundled with the script.
func (p *Printer) Zip(scriptPath, dest string, originalSize, packedSize int64, modules []string) {
	fmt.Fprintf(p.Out, "%s saved as compressed executable zip: %s\n",
		pathColor.Sprint(scriptPath), pathColor.Sprint(dest))
	fmt.Fprintf(p.Out, "The following modules were automatically included (as automagic dependencies):\n\n")
	for _, module := range modules {
		fmt.Fprintf(p.Out, "\t%s\n", module)
	}
	fmt.Fprintf(p.Out, "\nOverall size reduction: %s%% of original size\n",
		percentColor.Sprint(FormatPercent(Percent(packedSize, originalSize))))
}

// LongestLineWidth measures the widest line of source in grapheme clusters.
// Grapheme counts keep combining sequences honest; the replacement pool can
// emit names that take several code points per visible character.
func LongestLineWidth(source string) int {
	widest := 0
	for _, line := range strings.Split(source, "\n") {
		n, err := textseg.TokenCount([]byte(line), textseg.ScanGraphemeClusters)
		if err != nil {
			n = utf8.RuneCountInString(line)
		}
		if n > widest {
			widest = n
		}
	}
	return widest
}
