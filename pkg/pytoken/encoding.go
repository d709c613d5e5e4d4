package pytoken

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// CodingPattern matches a PEP 263 encoding declaration at the start of a
// line, capturing the codec name.
var CodingPattern = regexp.MustCompile(`\A.*coding[:=]\s*([-\w.]+)`)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// codecAliases covers the Python codec names that do not resolve through
// the IANA index directly.
var codecAliases = map[string]encoding.Encoding{
	"latin-1":      charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso8859-1":    charmap.ISO8859_1,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
}

// DecodeSource converts raw file bytes to UTF-8 text, honoring a UTF-8 BOM
// and any PEP 263 coding declaration on the first two lines. It returns the
// decoded text and the codec name that was applied ("utf-8" when nothing
// was declared).
func DecodeSource(data []byte) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		if !utf8.Valid(data) {
			return "", "", errors.New("source has a utf-8 BOM but is not valid utf-8")
		}
		return string(data), "utf-8", nil
	}

	name := declaredEncoding(data)
	if name == "" {
		name = "utf-8"
	}
	normalized := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	switch normalized {
	case "utf-8", "utf8", "ascii", "us-ascii":
		if !utf8.Valid(data) {
			return "", "", errors.Errorf("source declared as %s is not valid utf-8", name)
		}
		return string(data), name, nil
	}

	enc := codecAliases[normalized]
	if enc == nil {
		var err error
		enc, err = ianaindex.IANA.Encoding(normalized)
		if err != nil || enc == nil {
			return "", "", errors.Errorf("unsupported source encoding %q", name)
		}
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", errors.Errorf("decoding source as %s: %w", name, err)
	}
	return string(decoded), name, nil
}

// EncodesNonASCII reports whether text written under the given codec name
// can carry identifiers outside ASCII. A coding declaration survives into
// the rewritten file, so only the UTF-8 family qualifies.
func EncodesNonASCII(name string) bool {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

// declaredEncoding scans the first two physical lines for a coding
// declaration, the region PEP 263 gives it meaning in.
func declaredEncoding(data []byte) string {
	rest := data
	for i := 0; i < 2 && len(rest) > 0; i++ {
		line := rest
		if idx := bytes.IndexByte(rest, '\n'); idx >= 0 {
			line = rest[:idx]
			rest = rest[idx+1:]
		} else {
			rest = nil
		}
		if m := CodingPattern.FindSubmatch(line); m != nil {
			return string(m[1])
		}
	}
	return ""
}
