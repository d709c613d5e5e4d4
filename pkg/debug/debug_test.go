package debug_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walteh/minipy/pkg/debug"
)

func TestConsoleLoggerSuppressesDebugByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := debug.NewConsoleLogger(&buf, false)

	logger.Debug().Msg("tokenizer details")
	assert.Empty(t, buf.String())

	logger.Info().Str("file", "app.py").Msg("processing")
	assert.Contains(t, buf.String(), "processing")
	assert.Contains(t, buf.String(), "app.py")
}

func TestConsoleLoggerVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := debug.NewConsoleLogger(&buf, true)

	logger.Debug().Msg("tokenizer details")
	assert.Contains(t, buf.String(), "tokenizer details")
	// Caller annotation points at this test file.
	assert.Contains(t, buf.String(), "debug_test.go")
}
