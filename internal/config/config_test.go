// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sycomix/mentat/pkg/types"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, warnings := Load(viper.New(), "")
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, types.FormatBlock, cfg.Format)
	assert.Zero(t, cfg.MaximumContext)
	assert.Empty(t, cfg.FileExcludeGlobList)
	assert.Equal(t, "colored", cfg.InputStyle)
	assert.True(t, cfg.UseEmbeddedPrompts)
}

func TestLoadPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, filepath.Join(home, ".mentat"),
		`{"model": "user-model", "input-style": "plain"}`)

	gitRoot := t.TempDir()
	writeConfig(t, gitRoot, `{"model": "project-model"}`)

	cfg, warnings := Load(viper.New(), gitRoot)
	assert.Empty(t, warnings)
	// Project layer beats user layer; untouched user keys survive.
	assert.Equal(t, "project-model", cfg.Model)
	assert.Equal(t, "plain", cfg.InputStyle)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MENTAT_MODEL", "env-model")
	t.Setenv("MENTAT_MAXIMUM_CONTEXT", "9000")

	cfg, warnings := Load(viper.New(), "")
	assert.Empty(t, warnings)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, 9000, cfg.MaximumContext)
}

func TestLoadInvalidJSONWarnsAndSkipsLayer(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, filepath.Join(home, ".mentat"), `{not json`)

	cfg, warnings := Load(viper.New(), "")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "invalid json")
	assert.Equal(t, DefaultModel, cfg.Model)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, filepath.Join(home, ".mentat"),
		`{"format": "telepathy", "maximum-context": -5, "input-style": "neon"}`)

	cfg, warnings := Load(viper.New(), "")
	assert.Len(t, warnings, 3)
	assert.Equal(t, types.FormatBlock, cfg.Format)
	assert.Zero(t, cfg.MaximumContext)
	assert.Equal(t, DefaultInputStyle, cfg.InputStyle)
}

func TestLoadFlagsBeatEverything(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, filepath.Join(home, ".mentat"), `{"model": "user-model"}`)

	v := viper.New()
	v.Set("model", "flag-model") // what a bound, changed flag looks like

	cfg, warnings := Load(v, "")
	assert.Empty(t, warnings)
	assert.Equal(t, "flag-model", cfg.Model)
}

func TestLoadExtraFileBeatsProjectLayer(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	gitRoot := t.TempDir()
	writeConfig(t, gitRoot, `{"model": "project-model"}`)

	override := filepath.Join(t.TempDir(), "override.json")
	require.NoError(t, os.WriteFile(override, []byte(`{"model": "override-model"}`), 0o644))

	cfg, warnings := Load(viper.New(), gitRoot, override)
	assert.Empty(t, warnings)
	assert.Equal(t, "override-model", cfg.Model)
}

func TestLoadMissingExtraFileWarns(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, warnings := Load(viper.New(), "", filepath.Join(t.TempDir(), "absent.json"))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "does not exist")
	assert.Equal(t, DefaultModel, cfg.Model)
}
