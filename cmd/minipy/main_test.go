package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandArgs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	for _, path := range []string{"src/a.py", "src/b.py", "src/sub/c.py", "src/notes.txt"} {
		require.NoError(t, afero.WriteFile(fsys, path, []byte("pass\n"), 0644))
	}

	t.Run("literal_args_pass_through", func(t *testing.T) {
		files, err := expandArgs(fsys, []string{"src/a.py", "missing.py"})
		require.NoError(t, err)
		assert.Equal(t, []string{"src/a.py", "missing.py"}, files)
	})

	t.Run("star_matches_one_directory", func(t *testing.T) {
		files, err := expandArgs(fsys, []string{"src/*.py"})
		require.NoError(t, err)
		assert.Equal(t, []string{"src/a.py", "src/b.py"}, files)
	})

	t.Run("doublestar_recurses", func(t *testing.T) {
		files, err := expandArgs(fsys, []string{"src/**/*.py"})
		require.NoError(t, err)
		assert.Contains(t, files, filepath.Join("src", "sub", "c.py"))
		assert.Contains(t, files, filepath.Join("src", "a.py"))
	})

	t.Run("unmatched_pattern_errors", func(t *testing.T) {
		_, err := expandArgs(fsys, []string{"src/*.rb"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "src/*.rb")
	})
}

func runMinipy(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestSingleFileToStdout(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(src, []byte("def f():\n    '''only a docstring'''\n"), 0644))

	out, errOut, err := runMinipy(t, src)
	require.NoError(t, err)

	assert.Equal(t, "def f():pass\n"+trailer, out)
	assert.Contains(t, errOut, "reduced to")
}

func TestSingleFileToOutfile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	dst := filepath.Join(dir, "app.min.py")
	require.NoError(t, os.WriteFile(src, []byte("x = 1\nprint(x)\n"), 0644))

	out, _, err := runMinipy(t, "-o", dst, src)
	require.NoError(t, err)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "x=1\nprint(x)\n"+trailer, string(content))
	assert.Contains(t, out, "% of original size")
}

func TestBatchWritesIntoDestdir(t *testing.T) {
	dir := t.TempDir()
	destdir := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("y = 2\n"), 0644))

	out, _, err := runMinipy(t, "-d", destdir,
		filepath.Join(dir, "a.py"), filepath.Join(dir, "b.py"))
	require.NoError(t, err)

	a, err := os.ReadFile(filepath.Join(destdir, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x=1\n"+trailer, string(a))
	b, err := os.ReadFile(filepath.Join(destdir, "b.py"))
	require.NoError(t, err)
	assert.Equal(t, "y=2\n"+trailer, string(b))

	assert.Equal(t, 2, strings.Count(out, "reduced to"))
	assert.Contains(t, out, "Overall size reduction:")
}

func TestObfuscateRenamesAcrossTheFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(src, []byte("result = 5\nprint(result)\n"), 0644))

	out, _, err := runMinipy(t, "-O", "--seed", "3", src)
	require.NoError(t, err)

	assert.NotContains(t, out, "result")
	assert.Contains(t, out, "=print\n")
}

func TestNonlatinRejectsNarrowEncoding(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(src, []byte("# -*- coding: latin-1 -*-\nresult = 5\n"), 0644))

	_, _, err := runMinipy(t, "--nonlatin", "--seed", "3", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latin-1")
}

func TestPyzRejectsMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("y = 2\n"), 0644))

	_, _, err := runMinipy(t, "--pyz", filepath.Join(dir, "out.pyz"),
		filepath.Join(dir, "a.py"), filepath.Join(dir, "b.py"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--pyz")
}

func TestPyzWritesExecutableArchive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	dst := filepath.Join(dir, "app.pyz")
	require.NoError(t, os.WriteFile(src, []byte("x = 1\nprint(x)\n"), 0644))

	out, _, err := runMinipy(t, "--pyz", dst, src)
	require.NoError(t, err)

	assert.Contains(t, out, "saved as compressed executable zip")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("#!/usr/bin/env python3\n")))
}

func TestConfigFileSetsDestdir(t *testing.T) {
	dir := t.TempDir()
	destdir := filepath.Join(dir, "fromcfg")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".minipy.hcl"),
		[]byte(fmt.Sprintf("destdir = %q\n", destdir)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("y = 2\n"), 0644))

	_, _, err := runMinipy(t, filepath.Join(dir, "a.py"), filepath.Join(dir, "b.py"))
	require.NoError(t, err)

	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(destdir, name))
		return err == nil
	}
	assert.True(t, exists("a.py"))
	assert.True(t, exists("b.py"))
}

func TestFlagBeatsConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".minipy.hcl"),
		[]byte(fmt.Sprintf("destdir = %q\n", filepath.Join(dir, "fromcfg"))), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.py"), []byte("y = 2\n"), 0644))
	fromFlag := filepath.Join(dir, "fromflag")

	_, _, err := runMinipy(t, "-d", fromFlag,
		filepath.Join(dir, "a.py"), filepath.Join(dir, "b.py"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(fromFlag, "a.py"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "fromcfg"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiffPreviewWritesNothing(t *testing.T) {
	was := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = was })

	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	dst := filepath.Join(dir, "app.min.py")
	require.NoError(t, os.WriteFile(src, []byte("x = 1\n"), 0644))

	out, _, err := runMinipy(t, "--diff", "-o", dst, src)
	require.NoError(t, err)

	assert.Contains(t, out, "--- "+src)
	assert.Contains(t, out, "-x = 1")
	assert.Contains(t, out, "+x=1")
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestPrependInsertsHeaderText(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "app.py")
	notice := filepath.Join(dir, "notice.txt")
	require.NoError(t, os.WriteFile(src, []byte("x = 1\n"), 0644))
	require.NoError(t, os.WriteFile(notice, []byte("# Copyright 2026 Example Corp\n"), 0644))

	out, _, err := runMinipy(t, "--prepend", notice, src)
	require.NoError(t, err)

	assert.Equal(t, "# Copyright 2026 Example Corp\nx=1\n"+trailer, out)
}
