package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/minipy/pkg/config"
	"github.com/walteh/minipy/pkg/debug"
	"github.com/walteh/minipy/pkg/diff"
	"github.com/walteh/minipy/pkg/minify"
	"github.com/walteh/minipy/pkg/obfuscate"
	"github.com/walteh/minipy/pkg/pack"
	"github.com/walteh/minipy/pkg/pytoken"
	"github.com/walteh/minipy/pkg/report"
	"github.com/walteh/minipy/pkg/verify"
)

const trailer = "# Created by minipy (https://github.com/walteh/minipy)\n"

func (me *Handler) Run(ctx context.Context, cmd *cobra.Command, args []string) error {
	logger := debug.NewConsoleLogger(cmd.ErrOrStderr(), me.debug)
	ctx = logger.WithContext(ctx)

	fsys := afero.NewOsFs()
	files, err := expandArgs(fsys, args)
	if err != nil {
		return err
	}

	cfg, err := me.loadConfig(ctx, fsys, files[0])
	if err != nil {
		return err
	}
	me.applyConfig(cmd, cfg)
	if !cmd.Flags().Changed("use-tabs") && (cfg == nil || cfg.UseTabs == nil) {
		ecPath := files[0]
		if me.outfile != "" {
			ecPath = me.outfile
		}
		me.useTabs = config.TabsFromEditorconfig(ecPath)
	}
	me.seedSet = me.seedSet || cmd.Flags().Changed("seed")

	// Nonlatin names only make sense when obfuscating, so asking for them
	// turns obfuscation on.
	if me.nonlatin {
		me.obfuscateAll = true
	}
	if !me.seedSet {
		id := uuid.New()
		me.seed = int64(binary.BigEndian.Uint64(id[:8]))
		zerolog.Ctx(ctx).Debug().Int64("seed", me.seed).Msg("derived obfuscation seed")
	}

	obfOpts := obfuscate.Options{
		All:               me.obfuscateAll,
		Classes:           me.obfClasses,
		Functions:         me.obfFunctions,
		Variables:         me.obfVariables,
		ImportMethods:     me.obfImportMethods,
		Builtins:          me.obfBuiltins,
		ReplacementLength: me.replacementLength,
		UseNonlatin:       me.nonlatin,
		Seed:              me.seed,
	}

	if me.pyz != "" {
		if len(files) > 1 {
			return errors.New("the --pyz option only works with one python file at a time (dependencies are automagically included in the resulting .pyz)")
		}
		return me.runZip(ctx, cmd, fsys, files[0], obfOpts)
	}

	prependText := ""
	if me.prependPath != "" {
		data, err := afero.ReadFile(fsys, me.prependPath)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", me.prependPath).Msg("could not read prepend file")
		} else {
			prependText = string(data)
		}
	}

	var session *obfuscate.Session
	if obfOpts.Enabled() {
		o := obfOpts
		o.MultiFile = len(files) > 1
		session = obfuscate.NewSession(o)
		session.Fs = fsys
		zerolog.Ctx(ctx).Debug().Str("session", session.ID).Int64("seed", me.seed).Msg("obfuscation session started")
	}

	if len(files) == 1 {
		return me.runSingle(ctx, cmd, fsys, files[0], session, prependText)
	}
	return me.runBatch(ctx, cmd, fsys, files, session, prependText)
}

// expandArgs resolves doublestar patterns against the filesystem so quoted
// globs like 'src/**/*.py' work the same under every shell.
func expandArgs(fsys afero.Fs, args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			files = append(files, arg)
			continue
		}
		pattern := filepath.ToSlash(arg)
		rooted := strings.HasPrefix(pattern, "/")
		iofs := afero.NewIOFS(fsys)
		if rooted {
			pattern = strings.TrimPrefix(pattern, "/")
			iofs = afero.NewIOFS(afero.NewBasePathFs(fsys, "/"))
		}
		matches, err := doublestar.Glob(iofs, pattern)
		if err != nil {
			return nil, errors.Errorf("bad file pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no files match %q", arg)
		}
		for _, m := range matches {
			if rooted {
				m = "/" + m
			}
			files = append(files, filepath.FromSlash(m))
		}
	}
	return files, nil
}

// transform runs one source file through the full pipeline and returns the
// text to write: minified, obfuscated, optionally verified and compressed,
// with the trailer comment appended.
func (me *Handler) transform(ctx context.Context, fsys afero.Fs, path string, session *obfuscate.Session) (string, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return "", errors.Errorf("reading %s: %w", path, err)
	}
	source, encoding, err := pytoken.DecodeSource(raw)
	if err != nil {
		return "", errors.Errorf("decoding %s: %w", path, err)
	}
	if me.nonlatin && !pytoken.EncodesNonASCII(encoding) {
		return "", errors.Errorf("%s declares coding %s, which cannot hold nonlatin replacement names", path, encoding)
	}
	zerolog.Ctx(ctx).Debug().Str("file", path).Str("encoding", encoding).Msg("processing")

	tokens, err := pytoken.Tokenize(source)
	if err != nil {
		return "", errors.Errorf("tokenizing %s: %w", path, err)
	}
	result := source
	if !me.noMinify {
		result, err = minify.Minify(ctx, tokens, minify.Options{Tabs: me.useTabs})
		if err != nil {
			return "", errors.Errorf("minifying %s: %w", path, err)
		}
		tokens, err = pytoken.Tokenize(result)
		if err != nil {
			return "", errors.Errorf("retokenizing %s: %w", path, err)
		}
	}
	if session != nil {
		session.WorkDir = filepath.Dir(path)
		base := filepath.Base(path)
		module := strings.TrimSuffix(base, filepath.Ext(base))
		if err := session.Obfuscate(ctx, module, &tokens); err != nil {
			return "", errors.Errorf("obfuscating %s: %w", path, err)
		}
		result = pytoken.Untokenize(tokens)
	}
	if me.verifyOutput {
		if err := verify.Check(filepath.Base(path), result); err != nil {
			return "", err
		}
	}
	result, err = me.compress(result)
	if err != nil {
		return "", errors.Errorf("compressing %s: %w", path, err)
	}
	result += trailer
	if me.debug {
		zerolog.Ctx(ctx).Debug().
			Str("file", path).
			Int("longest_line_width", report.LongestLineWidth(result)).
			Msg("transformed")
	}
	return result, nil
}

func (me *Handler) compress(source string) (string, error) {
	switch {
	case me.bzip2:
		return pack.Bz2Pack(source)
	case me.gzip:
		return pack.GzPack(source)
	case me.lzma:
		return pack.LzmaPack(source)
	}
	return source, nil
}

func (me *Handler) runSingle(ctx context.Context, cmd *cobra.Command, fsys afero.Fs, path string, session *obfuscate.Session, prependText string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return errors.Errorf("stating %s: %w", path, err)
	}
	result, err := me.transform(ctx, fsys, path, session)
	if err != nil {
		return err
	}
	result = prependText + result

	if me.diffOnly {
		return me.printDiff(cmd, fsys, path, result)
	}
	if me.outfile == "" {
		fmt.Fprint(cmd.OutOrStdout(), result)
		printer := &report.Printer{Out: cmd.ErrOrStderr()}
		printer.File(path, info.Size(), int64(len(result)))
		return nil
	}
	if err := afero.WriteFile(fsys, me.outfile, []byte(result), 0644); err != nil {
		return errors.Errorf("writing %s: %w", me.outfile, err)
	}
	written, err := fsys.Stat(me.outfile)
	if err != nil {
		return errors.Errorf("stating %s: %w", me.outfile, err)
	}
	printer := &report.Printer{Out: cmd.OutOrStdout()}
	printer.File(path, info.Size(), written.Size())
	return nil
}

func (me *Handler) runBatch(ctx context.Context, cmd *cobra.Command, fsys afero.Fs, files []string, session *obfuscate.Session, prependText string) error {
	if !me.diffOnly {
		if err := fsys.MkdirAll(me.destdir, 0755); err != nil {
			return errors.Errorf("creating %s: %w", me.destdir, err)
		}
	}
	printer := &report.Printer{Out: cmd.OutOrStdout()}
	var batchErr *multierror.Error
	var cumulativeSize, cumulativeNew int64
	for _, path := range files {
		// The shared session makes files order-dependent, so cancellation
		// only takes effect between files.
		if err := ctx.Err(); err != nil {
			batchErr = multierror.Append(batchErr, err)
			break
		}
		info, err := fsys.Stat(path)
		if err != nil {
			batchErr = multierror.Append(batchErr, errors.Errorf("stating %s: %w", path, err))
			continue
		}
		result, err := me.transform(ctx, fsys, path, session)
		if err != nil {
			batchErr = multierror.Append(batchErr, err)
			continue
		}
		result = prependText + result
		if me.diffOnly {
			if err := me.printDiff(cmd, fsys, path, result); err != nil {
				batchErr = multierror.Append(batchErr, err)
			}
			continue
		}
		dest := filepath.Join(me.destdir, filepath.Base(path))
		if err := afero.WriteFile(fsys, dest, []byte(result), 0644); err != nil {
			batchErr = multierror.Append(batchErr, errors.Errorf("writing %s: %w", dest, err))
			continue
		}
		written, err := fsys.Stat(dest)
		if err != nil {
			batchErr = multierror.Append(batchErr, errors.Errorf("stating %s: %w", dest, err))
			continue
		}
		cumulativeSize += info.Size()
		cumulativeNew += written.Size()
		printer.File(path, info.Size(), written.Size())
	}
	if !me.diffOnly && cumulativeSize > 0 {
		printer.Overall(cumulativeSize, cumulativeNew)
	}
	return batchErr.ErrorOrNil()
}

func (me *Handler) runZip(ctx context.Context, cmd *cobra.Command, fsys afero.Fs, path string, obfOpts obfuscate.Options) error {
	res, err := pack.ZipPack(ctx, fsys, path, pack.ZipOptions{
		Dest:      me.pyz,
		NoMinify:  me.noMinify,
		Minify:    minify.Options{Tabs: me.useTabs},
		Obfuscate: obfOpts,
	})
	if err != nil {
		return errors.Errorf("packing %s: %w", path, err)
	}
	printer := &report.Printer{Out: cmd.OutOrStdout()}
	printer.Zip(path, res.Dest, res.OriginalSize, res.PackedSize, res.IncludedModules)
	return nil
}

// printDiff shows what the transformation would write instead of writing it.
func (me *Handler) printDiff(cmd *cobra.Command, fsys afero.Fs, path, transformed string) error {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), diff.Preview(path, string(raw), transformed))
	return nil
}
