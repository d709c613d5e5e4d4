// Package verify checks that transformed source is still syntactically
// valid Python. Aggressive minification has enough sharp edges that a
// cheap parse of the result catches most of the ways a pass can go wrong.
package verify

import (
	"strings"

	"github.com/go-python/gpython/parser"
	"github.com/go-python/gpython/py"
	"gitlab.com/tozd/go/errors"
)

// Check parses src as a Python 3 module, returning the syntax error if it
// no longer parses. name only labels the error.
func Check(name, src string) error {
	if _, err := parser.Parse(strings.NewReader(src), name, py.ExecMode); err != nil {
		return errors.Errorf("verifying %s: %w", name, err)
	}
	return nil
}
