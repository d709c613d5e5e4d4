package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/minipy/pkg/config"
)

func main() {
	if err := run(); err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

type Handler struct {
	outfile           string
	destdir           string
	noMinify          bool
	useTabs           bool
	bzip2             bool
	gzip              bool
	lzma              bool
	pyz               string
	obfuscateAll      bool
	obfClasses        bool
	obfFunctions      bool
	obfVariables      bool
	obfImportMethods  bool
	obfBuiltins       bool
	replacementLength int
	nonlatin          bool
	prependPath       string
	seed              int64
	seedSet           bool
	verifyOutput      bool
	diffOnly          bool
	configPath        string
	debug             bool
}

func run() error {
	rootCmd := newRootCommand()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}

func newRootCommand() *cobra.Command {
	me := &Handler{}

	rootCmd := &cobra.Command{
		Use:   "minipy [flags] <file>...",
		Short: "Minify and obfuscate Python source",
		Args:  cobra.MinimumNArgs(1),
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)

	rootCmd.Flags().StringVarP(&me.outfile, "outfile", "o", "", "save output to the given file")
	rootCmd.Flags().StringVarP(&me.destdir, "destdir", "d", "./minified", "save output to the given directory (used with multiple files, created if not present)")
	rootCmd.Flags().BoolVar(&me.noMinify, "nominify", false, "don't bother minifying (only used with --pyz)")
	rootCmd.Flags().BoolVar(&me.useTabs, "use-tabs", false, "use tabs for indentation instead of spaces")
	rootCmd.Flags().BoolVar(&me.bzip2, "bzip2", false, "bzip2-compress the result into a self-executing python script")
	rootCmd.Flags().BoolVar(&me.gzip, "gzip", false, "gzip-compress the result into a self-executing python script")
	rootCmd.Flags().BoolVar(&me.lzma, "lzma", false, "lzma-compress the result into a self-executing python script")
	rootCmd.Flags().StringVar(&me.pyz, "pyz", "", "zip-compress the result into a self-executing python script, bundling local imports")
	rootCmd.Flags().BoolVarP(&me.obfuscateAll, "obfuscate", "O", false, "obfuscate all function/method names, variables, and classes")
	rootCmd.Flags().BoolVar(&me.obfClasses, "obfuscate-classes", false, "obfuscate class names")
	rootCmd.Flags().BoolVar(&me.obfFunctions, "obfuscate-functions", false, "obfuscate function and method names")
	rootCmd.Flags().BoolVar(&me.obfVariables, "obfuscate-variables", false, "obfuscate variable names")
	rootCmd.Flags().BoolVar(&me.obfImportMethods, "obfuscate-import-methods", false, "obfuscate globally-imported module methods (e.g. 'Ag=re.compile')")
	rootCmd.Flags().BoolVar(&me.obfBuiltins, "obfuscate-builtins", false, "obfuscate built-ins (i.e. True, False, object, Exception, etc)")
	rootCmd.Flags().IntVar(&me.replacementLength, "replacement-length", 1, "length of the random names used when obfuscating identifiers")
	rootCmd.Flags().BoolVar(&me.nonlatin, "nonlatin", false, "use non-latin (unicode) characters in obfuscation (implies --obfuscate)")
	rootCmd.Flags().StringVar(&me.prependPath, "prepend", "", "prepend the text in this file to the top of each output, e.g. a copyright notice")
	rootCmd.Flags().Int64Var(&me.seed, "seed", 0, "seed for deterministic obfuscation (default: random)")
	rootCmd.Flags().BoolVar(&me.verifyOutput, "verify", false, "parse the transformed output and fail on syntax errors")
	rootCmd.Flags().BoolVar(&me.diffOnly, "diff", false, "print a diff of the transformation instead of writing files")
	rootCmd.Flags().StringVar(&me.configPath, "config", "", "path to a .minipy.hcl config file (default: discovered from the first input's directory upward)")
	rootCmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), cmd, args)
	}

	return rootCmd
}

// loadConfig finds and parses the project config file. Absent config is not
// an error; me.configPath set on the command line must exist.
func (me *Handler) loadConfig(ctx context.Context, fsys afero.Fs, firstFile string) (*config.File, error) {
	path := me.configPath
	if path == "" {
		dir, err := filepath.Abs(filepath.Dir(firstFile))
		if err != nil {
			dir = filepath.Dir(firstFile)
		}
		path = config.Discover(fsys, dir)
		if path == "" {
			return nil, nil
		}
	}
	cfg, err := config.Load(fsys, path)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Debug().Str("config", path).Msg("applying config file")
	return cfg, nil
}

// applyConfig copies settings from the config file into the handler, except
// where the matching flag was given explicitly.
func (me *Handler) applyConfig(cmd *cobra.Command, cfg *config.File) {
	if cfg == nil {
		return
	}
	flags := cmd.Flags()
	if cfg.Destdir != nil && !flags.Changed("destdir") {
		me.destdir = *cfg.Destdir
	}
	if cfg.NoMinify != nil && !flags.Changed("nominify") {
		me.noMinify = *cfg.NoMinify
	}
	if cfg.UseTabs != nil && !flags.Changed("use-tabs") {
		me.useTabs = *cfg.UseTabs
	}
	if cfg.Obfuscate != nil && !flags.Changed("obfuscate") {
		me.obfuscateAll = *cfg.Obfuscate
	}
	if cfg.ObfuscateClasses != nil && !flags.Changed("obfuscate-classes") {
		me.obfClasses = *cfg.ObfuscateClasses
	}
	if cfg.ObfuscateFunctions != nil && !flags.Changed("obfuscate-functions") {
		me.obfFunctions = *cfg.ObfuscateFunctions
	}
	if cfg.ObfuscateVariables != nil && !flags.Changed("obfuscate-variables") {
		me.obfVariables = *cfg.ObfuscateVariables
	}
	if cfg.ObfuscateImportMethods != nil && !flags.Changed("obfuscate-import-methods") {
		me.obfImportMethods = *cfg.ObfuscateImportMethods
	}
	if cfg.ObfuscateBuiltins != nil && !flags.Changed("obfuscate-builtins") {
		me.obfBuiltins = *cfg.ObfuscateBuiltins
	}
	if cfg.ReplacementLength != nil && !flags.Changed("replacement-length") {
		me.replacementLength = *cfg.ReplacementLength
	}
	if cfg.Nonlatin != nil && !flags.Changed("nonlatin") {
		me.nonlatin = *cfg.Nonlatin
	}
	if cfg.Prepend != nil && !flags.Changed("prepend") {
		me.prependPath = *cfg.Prepend
	}
	if cfg.Seed != nil && !flags.Changed("seed") {
		me.seed = *cfg.Seed
		me.seedSet = true
	}
	if cfg.Verify != nil && !flags.Changed("verify") {
		me.verifyOutput = *cfg.Verify
	}
}
