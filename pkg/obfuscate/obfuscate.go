// Package obfuscate renames identifiers in Python token streams to short
// generated equivalents. Each identifier category (variables, functions,
// classes, import methods, builtins) runs as a two-stage process: a classify
// sweep collects the names that are safe to rename, then a rewrite sweep
// replaces each one everywhere its position-specific safety predicate
// allows. All state lives in an explicit Session so independent runs never
// share replacements.
package obfuscate

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/walteh/minipy/pkg/analyze"
	"github.com/walteh/minipy/pkg/pytoken"
)

// Options selects which identifier categories get obfuscated and how
// replacement names are generated.
type Options struct {
	// All obfuscates variables, functions, classes, import methods, and
	// builtins together.
	All           bool
	Classes       bool
	Functions     bool
	Variables     bool
	ImportMethods bool
	Builtins      bool

	// ReplacementLength is the starting length of generated names.
	ReplacementLength int
	// UseNonlatin draws replacement names from non-Latin scripts and, with
	// All, renames even one- and two-character variables.
	UseNonlatin bool
	// Seed fixes the generator's shuffle so runs are reproducible.
	Seed int64
	// MultiFile marks a run whose local modules are obfuscated alongside
	// the files that import them, which changes how import-method aliases
	// are written.
	MultiFile bool
}

// Enabled reports whether any obfuscation category is switched on.
func (o Options) Enabled() bool {
	return o.All || o.Classes || o.Functions || o.Variables || o.ImportMethods || o.Builtins
}

// Session carries the state one obfuscation run accumulates across files:
// the name generator, the cross-file replacement table, and per-category
// records of what replaced what. Files sharing a session converge on the
// same replacement for the same qualified name.
type Session struct {
	// ID tags log lines from this run.
	ID string
	// Fs and WorkDir are where local modules are looked up when rewriting
	// import methods.
	Fs      afero.Fs
	WorkDir string
	// Generator produces replacement identifiers.
	Generator *NameGenerator
	// Table maps "<module>.<original>" (and, for import methods and
	// builtins, the bare original) to its replacement.
	Table map[string]string

	// VarReplacements, FuncReplacements, ClassReplacements, and
	// UniqueReplacements map each issued replacement back to the name it
	// replaced. The function rewriter consults the variable and class maps
	// to rename method calls on already-renamed receivers.
	VarReplacements    map[string]string
	FuncReplacements   map[string]string
	ClassReplacements  map[string]string
	UniqueReplacements map[string]string

	opts Options

	// Facts refreshed by FindObfuscatables and read by the rewrite stage.
	keywordArgs     map[string][]string
	importedModules []string
}

// NewSession builds the session for one run. The zero Options value
// disables every category.
func NewSession(opts Options) *Session {
	if opts.ReplacementLength < 1 {
		opts.ReplacementLength = 1
	}
	return &Session{
		ID:                 uuid.New().String(),
		Fs:                 afero.NewOsFs(),
		WorkDir:            ".",
		Generator:          NewNameGenerator(opts.Seed, opts.ReplacementLength, opts.UseNonlatin),
		Table:              map[string]string{},
		VarReplacements:    map[string]string{},
		FuncReplacements:   map[string]string{},
		ClassReplacements:  map[string]string{},
		UniqueReplacements: map[string]string{},
		opts:               opts,
		keywordArgs:        map[string][]string{},
	}
}

// Verdict is a classifier's or rewriter's decision about one token
// position.
type Verdict struct {
	kind verdictKind
	name string
}

type verdictKind int

const (
	verdictIgnore verdictKind = iota
	verdictEligible
	verdictSkipLine
	verdictSkipNext
	verdictOpenParen
	verdictCloseParen
	verdictComma
	verdictRightOfEqual
)

// Ignore leaves the token alone.
func Ignore() Verdict { return Verdict{} }

// Eligible marks name as safe to rename; during rewriting it carries the
// replacement text to write.
func Eligible(name string) Verdict { return Verdict{kind: verdictEligible, name: name} }

// SkipLine tells the sweep to ignore the rest of the logical line.
func SkipLine() Verdict { return Verdict{kind: verdictSkipLine} }

// SkipNext tells the sweep to ignore the following token.
func SkipNext() Verdict { return Verdict{kind: verdictSkipNext} }

// eligibleName wraps Eligible but treats a blanked token as no result, the
// way the sweeps expect.
func eligibleName(name string) Verdict {
	if name == "" {
		return Ignore()
	}
	return Eligible(name)
}

// Category selects which kind of identifier a sweep works on.
type Category int

const (
	// Variables are plain assigned names.
	Variables Category = iota
	// Functions are names bound by def.
	Functions
	// Classes are names bound by class.
	Classes
)

type classifyFunc func(s *Session, tokens pytoken.Stream, index int, ignoreLength bool) Verdict

type rewriteFunc func(s *Session, tokens pytoken.Stream, index int, name, replacement string, st rewriteState) Verdict

func (c Category) classifier() classifyFunc {
	switch c {
	case Functions:
		return classifyFunction
	case Classes:
		return classifyClass
	default:
		return classifyVariable
	}
}

func (c Category) rewriter() rewriteFunc {
	switch c {
	case Functions:
		return rewriteFunction
	case Classes:
		return rewriteClass
	default:
		return rewriteVariable
	}
}

// sweepState names the classify sweep's position in its skip machine.
type sweepState int

const (
	sweepNormal sweepState = iota
	sweepSkippingLine
	sweepSkippingNext
)

// FindObfuscatables returns the ordered, de-duplicated identifiers of the
// given category that are safe to rename. With ignoreLength even one- and
// two-character variables are collected. The sweep also refreshes the
// session's keyword-argument and import facts, which the rewrite stage
// reads, so it must run before ReplaceObfuscatables on a fresh stream.
func (s *Session) FindObfuscatables(tokens pytoken.Stream, cat Category, ignoreLength bool) []string {
	s.keywordArgs = analyze.KeywordArgs(tokens)
	s.importedModules = analyze.Imports(tokens)
	classify := cat.classifier()
	state := sweepNormal
	var found []string
	for index, tok := range tokens {
		if tok.Kind == pytoken.Newline && state == sweepSkippingLine {
			state = sweepNormal
		}
		if state == sweepSkippingLine {
			continue
		}
		v := classify(s, tokens, index, ignoreLength)
		switch {
		case v.kind == verdictIgnore:
			if state == sweepSkippingNext {
				state = sweepNormal
			}
		case state == sweepSkippingNext:
			state = sweepNormal
		case v.kind == verdictSkipLine:
			state = sweepSkippingLine
		case v.kind == verdictSkipNext:
			state = sweepSkippingNext
		case v.kind == verdictEligible:
			if !contains(found, v.name) {
				found = append(found, v.name)
			}
		}
	}
	return found
}

// ReplaceObfuscatables renames every safe occurrence of name in tokens,
// using the replacement the session table already holds for it or a fresh
// one from the generator. A generated name is consumed per call even when
// the table wins, so the generator never revisits it.
func (s *Session) ReplaceObfuscatables(module string, tokens pytoken.Stream, cat Category, name string) {
	s.replaceObfuscatables(module, tokens, cat.rewriter(), name, s.Generator.Next())
}

func (s *Session) replaceObfuscatables(module string, tokens pytoken.Stream, rewrite rewriteFunc, name, replacement string) {
	skipLine := false
	skipNext := false
	st := rewriteState{}
	indent := 0
	functionIndent := 0
	for index, tok := range tokens {
		switch tok.Kind {
		case pytoken.Newline:
			skipLine = false
			st.rightOfEqual = false
			st.insideParens = 0
		case pytoken.Indent:
			indent++
		case pytoken.Dedent:
			indent--
			if st.insideFunction != "" && functionIndent == indent {
				functionIndent = 0
				st.insideFunction = ""
			}
		}
		if tok.Text == "def" {
			functionIndent = indent
			st.insideFunction = tokens.At(index + 1).Text
		}
		v := rewrite(s, tokens, index, name, replacement, st)
		if v.kind == verdictIgnore {
			skipNext = false
			continue
		}
		switch {
		case skipNext:
			skipNext = false
		case skipLine:
		case v.kind == verdictSkipLine:
			skipLine = true
		case v.kind == verdictSkipNext:
			skipNext = true
		case v.kind == verdictOpenParen:
			st.rightOfEqual = false
			st.insideParens++
		case v.kind == verdictCloseParen:
			st.insideParens--
		case v.kind == verdictComma:
			st.rightOfEqual = false
		case v.kind == verdictRightOfEqual:
			// Only an = outside parens starts an assignment's right-hand
			// side; inside parens it marks a keyword argument.
			if st.insideParens == 0 {
				st.rightOfEqual = true
			}
		case v.kind == verdictEligible:
			combined := module + "." + tok.Text
			if existing, ok := s.Table[combined]; ok {
				tok.Text = existing
			} else {
				s.Table[combined] = v.name
				tok.Text = v.name
			}
		}
	}
}

// Obfuscate runs every enabled category over tokens, which belong to the
// named module. All files of one run must go through the same session so
// replacements stay consistent across them.
func (s *Session) Obfuscate(ctx context.Context, module string, tokens *pytoken.Stream) error {
	logger := zerolog.Ctx(ctx)
	if s.opts.All {
		variables := s.FindObfuscatables(*tokens, Variables, s.opts.UseNonlatin)
		classes := s.FindObfuscatables(*tokens, Classes, false)
		functions := s.FindObfuscatables(*tokens, Functions, false)
		logger.Debug().
			Str("session", s.ID).
			Str("module", module).
			Int("variables", len(variables)).
			Int("functions", len(functions)).
			Int("classes", len(classes)).
			Msg("obfuscating all categories")
		for _, variable := range variables {
			s.ReplaceObfuscatables(module, *tokens, Variables, variable)
		}
		for _, function := range functions {
			s.ReplaceObfuscatables(module, *tokens, Functions, function)
		}
		for _, class := range classes {
			s.ReplaceObfuscatables(module, *tokens, Classes, class)
		}
		if err := s.ObfuscateImportMethods(ctx, module, tokens); err != nil {
			return err
		}
		return s.ObfuscateBuiltins(ctx, module, tokens)
	}
	if s.opts.Classes {
		for _, class := range s.FindObfuscatables(*tokens, Classes, false) {
			s.ReplaceObfuscatables(module, *tokens, Classes, class)
		}
	}
	if s.opts.Functions {
		for _, function := range s.FindObfuscatables(*tokens, Functions, false) {
			s.ReplaceObfuscatables(module, *tokens, Functions, function)
		}
	}
	if s.opts.Variables {
		for _, variable := range s.FindObfuscatables(*tokens, Variables, false) {
			s.ReplaceObfuscatables(module, *tokens, Variables, variable)
		}
	}
	if s.opts.ImportMethods {
		if err := s.ObfuscateImportMethods(ctx, module, tokens); err != nil {
			return err
		}
	}
	if s.opts.Builtins {
		if err := s.ObfuscateBuiltins(ctx, module, tokens); err != nil {
			return err
		}
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
