// Package config loads project settings for the minipy command. Settings
// come from a .minipy.hcl file discovered near the processed sources, with
// editorconfig supplying the indentation default.
package config

import (
	"path/filepath"

	"github.com/editorconfig/editorconfig-core-go/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// Name is the config file looked up in the script's directory and its
// parents.
const Name = ".minipy.hcl"

// File mirrors the command-line flags. Fields are pointers so an absent
// attribute stays distinguishable from an explicit zero; flags set on the
// command line always win over the file.
type File struct {
	Destdir                *string `hcl:"destdir,optional"`
	NoMinify               *bool   `hcl:"nominify,optional"`
	UseTabs                *bool   `hcl:"use_tabs,optional"`
	Obfuscate              *bool   `hcl:"obfuscate,optional"`
	ObfuscateClasses       *bool   `hcl:"obfuscate_classes,optional"`
	ObfuscateFunctions     *bool   `hcl:"obfuscate_functions,optional"`
	ObfuscateVariables     *bool   `hcl:"obfuscate_variables,optional"`
	ObfuscateImportMethods *bool   `hcl:"obfuscate_import_methods,optional"`
	ObfuscateBuiltins      *bool   `hcl:"obfuscate_builtins,optional"`
	ReplacementLength      *int    `hcl:"replacement_length,optional"`
	Nonlatin               *bool   `hcl:"nonlatin,optional"`
	Prepend                *string `hcl:"prepend,optional"`
	Seed                   *int64  `hcl:"seed,optional"`
	Verify                 *bool   `hcl:"verify,optional"`
}

// Load parses the HCL config file at path.
func Load(fsys afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing %s: %s", path, diags.Error())
	}

	var out File
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &out); diags.HasErrors() {
		return nil, errors.Errorf("decoding %s: %s", path, diags.Error())
	}
	return &out, nil
}

// Discover walks from dir toward the root looking for a config file and
// returns its path, or the empty string when no directory on the way up
// holds one.
func Discover(fsys afero.Fs, dir string) string {
	for {
		candidate := filepath.Join(dir, Name)
		if ok, _ := afero.Exists(fsys, candidate); ok {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// TabsFromEditorconfig reports whether the editorconfig rules applying to
// path ask for tab indentation. The lookup reads .editorconfig files from
// the host filesystem; lookup errors and absent rules both mean spaces.
func TabsFromEditorconfig(path string) bool {
	def, err := editorconfig.GetDefinitionForFilename(path)
	if err != nil {
		return false
	}
	return def.IndentStyle == editorconfig.IndentStyleTab
}
