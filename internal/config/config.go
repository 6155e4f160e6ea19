// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config loads the layered session configuration. Precedence, lowest
// to highest: built-in defaults, the user file ~/.mentat/.mentat_config.json,
// the project file <git root>/.mentat_config.json, MENTAT_* environment
// variables, and command-line flags bound by the CLI. Bad layers and bad
// values produce warnings and are ignored, never fatal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/sycomix/mentat/pkg/types"
)

// FileName is the config file name looked up in both the user directory and
// the project root.
const FileName = ".mentat_config.json"

const (
	DefaultModel      = "gpt-4o"
	DefaultInputStyle = "colored"
)

// Config is the typed view the rest of the tool reads. Commands and the
// session never touch viper directly.
type Config struct {
	Model               string
	Format              types.PatchFormat
	MaximumContext      int // 0 means derive from the model's context size
	FileExcludeGlobList []string
	InputStyle          string // "colored" or "plain"
	UseEmbeddedPrompts  bool
}

// UserDir returns the per-user mentat directory (~/.mentat).
func UserDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".mentat"), nil
}

// UserConfigPath returns the user config file path, for messages that tell
// the operator where to set an option.
func UserConfigPath() string {
	dir, err := UserDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, FileName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("format", string(types.FormatBlock))
	v.SetDefault("maximum-context", 0)
	v.SetDefault("file-exclude-glob-list", []string{})
	v.SetDefault("input-style", DefaultInputStyle)
	v.SetDefault("use-embedded-prompts", true)
}

// mergeFile layers one JSON config file into v. A missing file is fine;
// an unreadable one produces a warning and is skipped.
func mergeFile(v *viper.Viper, path, layer string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Sprintf("%s %s contains invalid json; ignoring %s configuration file",
			layer, filepath.Base(path), strings.ToLower(layer))
	}
	return ""
}

// Load reads every layer into v and returns the validated Config plus any
// warnings. Flags must already be bound to v by the caller; gitRoot locates
// the project file and may be empty. Extra files layer over the user and
// project files, and unlike those a named file that is missing warns.
func Load(v *viper.Viper, gitRoot string, extraFiles ...string) (*Config, []string) {
	var warnings []string
	setDefaults(v)

	if userDir, err := UserDir(); err == nil {
		if w := mergeFile(v, filepath.Join(userDir, FileName), "User"); w != "" {
			warnings = append(warnings, w)
		}
	}
	if gitRoot != "" {
		if w := mergeFile(v, filepath.Join(gitRoot, FileName), "Git project"); w != "" {
			warnings = append(warnings, w)
		}
	}
	for _, path := range extraFiles {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			warnings = append(warnings, fmt.Sprintf("config file %s does not exist", path))
			continue
		}
		if w := mergeFile(v, path, "Override"); w != "" {
			warnings = append(warnings, w)
		}
	}

	v.SetEnvPrefix("MENTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Model:               v.GetString("model"),
		Format:              types.PatchFormat(v.GetString("format")),
		MaximumContext:      v.GetInt("maximum-context"),
		FileExcludeGlobList: v.GetStringSlice("file-exclude-glob-list"),
		InputStyle:          v.GetString("input-style"),
		UseEmbeddedPrompts:  v.GetBool("use-embedded-prompts"),
	}

	if !cfg.Format.Valid() {
		warnings = append(warnings, fmt.Sprintf(
			"invalid format %q; using %q", cfg.Format, types.FormatBlock))
		cfg.Format = types.FormatBlock
	}
	if cfg.MaximumContext < 0 {
		warnings = append(warnings, fmt.Sprintf(
			"maximum-context %d is negative; ignoring it", cfg.MaximumContext))
		cfg.MaximumContext = 0
	}
	if cfg.InputStyle != "colored" && cfg.InputStyle != "plain" {
		warnings = append(warnings, fmt.Sprintf(
			"invalid input-style %q; using %q", cfg.InputStyle, DefaultInputStyle))
		cfg.InputStyle = DefaultInputStyle
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return cfg, warnings
}
