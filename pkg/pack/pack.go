// Package pack wraps processed Python source in self-extracting forms. The
// stream packers emit a two-line stub that decompresses and execs a base64
// payload, and ZipPack builds an executable zip archive holding the script
// together with the sibling modules of its directory.
package pack

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/minipy/pkg/analyze"
)

// splitShebang peels a shebang line off source so it can stay readable in
// front of the stub. A shebang ending in a bare "python" is upgraded to
// "python3", since the stub's exec form only runs there.
func splitShebang(source string) (string, string) {
	firstLine, rest, _ := strings.Cut(source, "\n")
	if !analyze.ShebangLine.MatchString(firstLine) {
		return "", source
	}
	if trimmed := strings.TrimRight(firstLine, " \t\r"); strings.HasSuffix(trimmed, "python") {
		firstLine = trimmed + "3"
	}
	return firstLine + "\n", rest
}

// stub renders the self-extracting wrapper. The named module must expose
// decompress() for whatever bytes the caller compressed.
func stub(module string, compressed []byte) string {
	encoded := base64.StdEncoding.EncodeToString(compressed)
	return "import " + module + ", base64\n" +
		"exec(" + module + ".decompress(base64.b64decode('" + encoded + "')))\n"
}

// Bz2Pack compresses source into a stub that inflates through the bz2
// module. Any shebang line stays in front of the stub uncompressed.
func Bz2Pack(source string) (string, error) {
	shebang, body := splitShebang(source)
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return "", errors.Errorf("creating bzip2 writer: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return "", errors.Errorf("compressing source: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", errors.Errorf("flushing bzip2 stream: %w", err)
	}
	return shebang + stub("bz2", buf.Bytes()), nil
}

// GzPack compresses source into a stub that inflates through the zlib
// module. The name is historical; the stream really is zlib format, which
// is what zlib.decompress on the other end expects.
func GzPack(source string) (string, error) {
	shebang, body := splitShebang(source)
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return "", errors.Errorf("creating zlib writer: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return "", errors.Errorf("compressing source: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", errors.Errorf("flushing zlib stream: %w", err)
	}
	return shebang + stub("zlib", buf.Bytes()), nil
}

// LzmaPack compresses source into a stub that inflates through the lzma
// module. The payload is an xz container, which lzma.decompress detects on
// its own.
func LzmaPack(source string) (string, error) {
	shebang, body := splitShebang(source)
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return "", errors.Errorf("creating xz writer: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return "", errors.Errorf("compressing source: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", errors.Errorf("flushing xz stream: %w", err)
	}
	return shebang + stub("lzma", buf.Bytes()), nil
}

// Prepend inserts line at the start of the file at path, preserving the
// file's mode. A missing trailing newline on line is added.
func Prepend(fsys afero.Fs, line, path string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	info, err := fsys.Stat(path)
	if err != nil {
		return errors.Errorf("stating %s: %w", path, err)
	}
	content, err := afero.ReadFile(fsys, path)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}
	if err := afero.WriteFile(fsys, path, append([]byte(line), content...), info.Mode()); err != nil {
		return errors.Errorf("rewriting %s: %w", path, err)
	}
	return nil
}
