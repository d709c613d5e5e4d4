package pack

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"

	"github.com/walteh/minipy/pkg/analyze"
	"github.com/walteh/minipy/pkg/minify"
	"github.com/walteh/minipy/pkg/obfuscate"
	"github.com/walteh/minipy/pkg/pytoken"
)

// ZipOptions configures ZipPack.
type ZipOptions struct {
	// Dest is the path of the .pyz archive to write.
	Dest string
	// NoMinify packs the sources as-is.
	NoMinify  bool
	Minify    minify.Options
	Obfuscate obfuscate.Options
}

// ZipResult describes the archive ZipPack wrote.
type ZipResult struct {
	Dest string
	// OriginalSize is the combined size of every packed source file.
	OriginalSize int64
	// PackedSize is the size of the finished archive.
	PackedSize int64
	// IncludedModules lists the sibling module files bundled alongside the
	// script, as relative .py paths.
	IncludedModules []string
}

// ZipPack writes the script at scriptPath and the other modules of its
// directory into an executable zip at opts.Dest. A shebang line in front of
// the archive makes the kernel hand it to Python, which runs the bundled
// __main__.py. Every packed file goes through minification and, when
// enabled, obfuscation with one shared session so names stay consistent
// across the bundle.
func ZipPack(ctx context.Context, fsys afero.Fs, scriptPath string, opts ZipOptions) (res *ZipResult, err error) {
	info, err := fsys.Stat(scriptPath)
	if err != nil {
		return nil, errors.Errorf("stating %s: %w", scriptPath, err)
	}
	cumulative := info.Size()

	source, encoding, primary, err := readTokens(fsys, scriptPath)
	if err != nil {
		return nil, err
	}
	if err := checkNonlatinEncoding(scriptPath, encoding, opts); err != nil {
		return nil, err
	}

	// The archive only executes when the kernel can hand it to an
	// interpreter, so a script with no shebang gets a conservative one.
	shebang := analyze.Shebang(primary)
	if shebang == "" {
		shebang = "#!/usr/bin/env python"
	}
	if trimmed := strings.TrimRight(shebang, " \t\r\n"); strings.HasSuffix(trimmed, "python") {
		shebang = trimmed + "3\n"
	}
	if !strings.HasSuffix(shebang, "\n") {
		shebang += "\n"
	}

	dir := filepath.Dir(scriptPath)
	var session *obfuscate.Session
	if opts.Obfuscate.Enabled() {
		o := opts.Obfuscate
		o.MultiFile = true
		session = obfuscate.NewSession(o)
		session.Fs = fsys
		session.WorkDir = dir
	}

	primaryName := filepath.Base(scriptPath)
	primaryModule := strings.TrimSuffix(primaryName, filepath.Ext(primaryName))
	localModules := analyze.LocalModules(fsys, primary, dir)

	processed, err := process(ctx, session, primaryModule, source, primary, opts)
	if err != nil {
		return nil, errors.Errorf("packing %s: %w", scriptPath, err)
	}

	f, err := fsys.OpenFile(opts.Dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return nil, errors.Errorf("creating %s: %w", opts.Dest, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	// The open mode only applies when the file is new.
	if err := fsys.Chmod(opts.Dest, 0755); err != nil {
		return nil, errors.Errorf("marking %s executable: %w", opts.Dest, err)
	}
	if _, err := io.WriteString(f, shebang); err != nil {
		return nil, errors.Errorf("writing shebang to %s: %w", opts.Dest, err)
	}
	cw := &countingWriter{w: f, n: int64(len(shebang))}
	zw := zip.NewWriter(cw)
	zw.SetOffset(int64(len(shebang)))

	// An existing __main__.py wins; otherwise the script itself has to
	// take that name or the archive would not execute.
	mainPy := filepath.Join(dir, "__main__.py")
	if ok, _ := afero.Exists(fsys, mainPy); ok && primaryName != "__main__.py" {
		existing, err := afero.ReadFile(fsys, mainPy)
		if err != nil {
			return nil, errors.Errorf("reading %s: %w", mainPy, err)
		}
		if err := writeEntry(zw, "__main__.py", string(existing)); err != nil {
			return nil, err
		}
		if err := writeEntry(zw, primaryName, processed); err != nil {
			return nil, err
		}
	} else {
		if err := writeEntry(zw, "__main__.py", processed); err != nil {
			return nil, err
		}
	}

	var included []string
	for i := 0; i < len(localModules); i++ {
		module := localModules[i]
		moduleFile := strings.ReplaceAll(module, ".", "/") + ".py"
		full := filepath.Join(dir, moduleFile)
		minfo, err := fsys.Stat(full)
		if err != nil {
			return nil, errors.Errorf("stating bundled module %s: %w", full, err)
		}
		cumulative += minfo.Size()
		included = append(included, moduleFile)

		moduleSource, moduleEncoding, moduleTokens, err := readTokens(fsys, full)
		if err != nil {
			return nil, err
		}
		if err := checkNonlatinEncoding(full, moduleEncoding, opts); err != nil {
			return nil, err
		}
		// A bundled module can pull in modules of its own; they join the
		// end of the list and extend this loop.
		for _, more := range analyze.LocalModules(fsys, moduleTokens, dir) {
			if !containsString(localModules, more) {
				localModules = append(localModules, more)
			}
		}
		processed, err := process(ctx, session, module, moduleSource, moduleTokens, opts)
		if err != nil {
			return nil, errors.Errorf("packing bundled module %s: %w", full, err)
		}
		if err := writeEntry(zw, moduleFile, processed); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Errorf("finishing archive: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("dest", opts.Dest).
		Int("modules", len(included)).
		Int64("bytes", cw.n).
		Msg("wrote executable zip")

	return &ZipResult{
		Dest:            opts.Dest,
		OriginalSize:    cumulative,
		PackedSize:      cw.n,
		IncludedModules: included,
	}, nil
}

// readTokens loads and tokenizes one source file, honoring its declared
// encoding.
func readTokens(fsys afero.Fs, path string) (string, string, pytoken.Stream, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", "", nil, errors.Errorf("reading %s: %w", path, err)
	}
	source, encoding, err := pytoken.DecodeSource(raw)
	if err != nil {
		return "", "", nil, errors.Errorf("decoding %s: %w", path, err)
	}
	tokens, err := pytoken.Tokenize(source)
	if err != nil {
		return "", "", nil, errors.Errorf("tokenizing %s: %w", path, err)
	}
	return source, encoding, tokens, nil
}

// checkNonlatinEncoding rejects a file whose declared coding could not hold
// the generated replacement names.
func checkNonlatinEncoding(path, encoding string, opts ZipOptions) error {
	if opts.Obfuscate.Enabled() && opts.Obfuscate.UseNonlatin && !pytoken.EncodesNonASCII(encoding) {
		return errors.Errorf("%s declares coding %s, which cannot hold nonlatin replacement names", path, encoding)
	}
	return nil
}

// process runs one file through minification and obfuscation according to
// opts. tokens must be the tokenization of source; both are consumed.
func process(ctx context.Context, session *obfuscate.Session, module, source string, tokens pytoken.Stream, opts ZipOptions) (string, error) {
	text := source
	if !opts.NoMinify {
		minified, err := minify.Minify(ctx, tokens, opts.Minify)
		if err != nil {
			return "", errors.Errorf("minifying: %w", err)
		}
		text = minified
		tokens, err = pytoken.Tokenize(text)
		if err != nil {
			return "", errors.Errorf("retokenizing minified source: %w", err)
		}
	}
	if session != nil {
		if err := session.Obfuscate(ctx, module, &tokens); err != nil {
			return "", errors.Errorf("obfuscating: %w", err)
		}
		text = pytoken.Untokenize(tokens)
	}
	return text, nil
}

func writeEntry(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.Errorf("adding %s to archive: %w", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return errors.Errorf("writing %s into archive: %w", name, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
