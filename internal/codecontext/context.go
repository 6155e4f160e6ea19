// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package codecontext decides which files accompany the prompt and
// assembles the code message the model sees: diff references, each
// included file at its detail level, and code-map entries for the rest of
// the repository when the token budget allows.
package codecontext

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/sycomix/mentat/internal/codemap"
	"github.com/sycomix/mentat/internal/config"
	"github.com/sycomix/mentat/internal/diffcontext"
	"github.com/sycomix/mentat/internal/filemanager"
	"github.com/sycomix/mentat/internal/gitops"
	"github.com/sycomix/mentat/internal/llm"
	"github.com/sycomix/mentat/internal/patch"
)

var (
	headerColor  = color.New(color.FgCyan)
	dirColor     = color.New(color.FgBlue)
	changedColor = color.New(color.FgGreen)
	autoColor    = color.New(color.FgBlue)
)

// Deps are the collaborators the context reads through.
type Deps struct {
	Config    *config.Config
	Repo      *gitops.Repo
	Files     *filemanager.Manager
	Diff      *diffcontext.DiffContext
	Extractor *codemap.Extractor
	Log       *zap.Logger
}

// Settings fix the session's inclusion behavior.
type Settings struct {
	Paths        []string
	ExcludePaths []string
	NoCodeMap    bool
	// LineNumbers numbers content lines in code messages, for dialects
	// that address edits by line.
	LineNumbers bool
}

// Context tracks the included files and assembles the code message.
// It is not safe for concurrent use.
type Context struct {
	deps     Deps
	settings Settings

	include map[string]*Feature // abs path → feature

	// last assembled message and the features that went into it
	msgChecksum string
	msg         string
	features    []*Feature
}

// New builds the context and seeds it with the session's path arguments.
// The returned warnings name arguments that could not be included.
func New(deps Deps, settings Settings) (*Context, []string) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	c := &Context{
		deps:     deps,
		settings: settings,
		include:  make(map[string]*Feature),
	}

	invalid := c.includePaths(settings.Paths, settings.ExcludePaths)
	var warnings []string
	if len(invalid) > 0 {
		warnings = append(warnings,
			"The following paths are invalid and will not be included in context: "+
				strings.Join(invalid, ", "))
	}
	return c, warnings
}

// IncludeFile adds one path argument (file, directory, glob, or
// path:intervals) to the context and returns the paths that could not be
// included.
func (c *Context) IncludeFile(path string) []string {
	return c.includePaths([]string{path}, nil)
}

// ExcludeFile drops a file, a directory's files, or a glob's matches from
// the context.
func (c *Context) ExcludeFile(path string) {
	abs := c.abs(path)
	if _, ok := c.include[abs]; ok {
		delete(c.include, abs)
		return
	}

	prefix := abs + string(os.PathSeparator)
	for p := range c.include {
		if strings.HasPrefix(p, prefix) {
			delete(c.include, p)
		}
	}

	if strings.ContainsAny(path, "*?[") {
		for p := range c.include {
			if match, err := doublestar.Match(filepath.ToSlash(path), filepath.ToSlash(c.rel(p))); err == nil && match {
				delete(c.include, p)
			}
		}
	}
}

// IncludedPaths returns the absolute paths currently in context, sorted.
func (c *Context) IncludedPaths() []string {
	paths := make([]string, 0, len(c.include))
	for p := range c.include {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// IncludedRefs returns the root-relative include references, sorted. The
// terminal uses them for completion and the context display.
func (c *Context) IncludedRefs() []string {
	refs := make([]string, 0, len(c.include))
	for _, f := range c.include {
		ref := c.rel(f.Path)
		if f.Level == LevelInterval && len(f.Intervals) > 0 {
			parts := make([]string, len(f.Intervals))
			for i, iv := range f.Intervals {
				parts[i] = fmt.Sprintf("%d-%d", iv.Start, iv.End)
			}
			ref += ":" + strings.Join(parts, ",")
		}
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// CodeMessage assembles the code section of the prompt. maxTokens bounds
// the auto code-map entries added after the included files; with
// maxTokens <= 0 only the included files are rendered and counted. The
// rendering is memoized until the files or settings feeding it change.
func (c *Context) CodeMessage(ctx context.Context, model string, maxTokens int) (string, error) {
	checksum := c.messageChecksum(model, maxTokens)
	if c.msgChecksum == checksum {
		return c.msg, nil
	}

	c.deps.Diff.Refresh()
	diffFiles, err := c.deps.Diff.Files()
	if err != nil {
		return "", err
	}

	var message []string
	if len(diffFiles) > 0 {
		message = append(message,
			"Diff References:",
			` "-" = `+c.deps.Diff.Name(),
			` "+" = Active Changes`,
			"")
	}
	message = append(message, "Code Files:", "")

	features := c.includeFeatures()
	for _, f := range features {
		lines, err := c.featureMessage(ctx, f)
		if err != nil {
			return "", err
		}
		message = append(message, lines...)
	}
	c.features = features

	if !c.settings.NoCodeMap && maxTokens > 0 {
		budget := maxTokens - llm.CountTokens(strings.Join(message, "\n"), model)
		auto := c.autoFeatures(ctx, model, budget)
		for _, f := range auto {
			lines, err := c.featureMessage(ctx, f)
			if err != nil {
				continue
			}
			message = append(message, lines...)
		}
		c.features = append(c.features, auto...)
	}

	c.msg = strings.Join(message, "\n")
	c.msgChecksum = checksum
	return c.msg, nil
}

// DisplayFeatures summarizes the auto-selected map entries in the last
// assembled code message, grouped by detail level.
func (c *Context) DisplayFeatures() []string {
	counts := make(map[Level]int)
	for _, f := range c.features {
		if !f.UserIncluded {
			counts[f.Level]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	lines := []string{autoColor.Sprint("Auto-Selected Features:")}
	for _, level := range []Level{LevelCode, LevelInterval, LevelCmapFull, LevelCmap, LevelFileName} {
		if n := counts[level]; n > 0 {
			lines = append(lines, autoColor.Sprintf("  %d %s", n, level.Description()))
		}
	}
	return lines
}

// DisplayContext renders the context summary for the operator: the
// directory, the diff target, and the included file tree with changed
// files starred.
func (c *Context) DisplayContext() []string {
	root := c.deps.Repo.Root()
	lines := []string{headerColor.Sprint("Code Context:")}
	lines = append(lines, "Directory: "+root)

	if summary := c.deps.Diff.DisplayContext(c.readRel); summary != "" {
		lines = append(lines, "Diff:"+summary)
	}

	if len(c.include) == 0 {
		lines = append(lines, "Included files: None")
		return lines
	}

	lines = append(lines, "Included files:")
	lines = append(lines, dirColor.Sprint(filepath.Base(root)))

	var rels []string
	for p := range c.include {
		rels = append(rels, c.rel(p))
	}
	changed := make(map[string]bool)
	if files, err := c.deps.Diff.Files(); err == nil {
		for _, rel := range files {
			changed[filepath.ToSlash(rel)] = true
		}
	}
	lines = append(lines, RenderPathTree(BuildPathTree(rels), changed)...)
	return lines
}

// includePaths expands include and exclude arguments and records the
// surviving text files. It returns the arguments and files that could not
// be included.
func (c *Context) includePaths(paths, excludePaths []string) []string {
	expanded, invalid := c.expandPaths(paths)
	excludeExpanded, _ := c.expandPaths(excludePaths)

	excluded := make(map[string]bool)
	direct, fromDirs, _ := c.absFiles(excludeExpanded, false)
	for p := range direct {
		excluded[p] = true
	}
	for p := range fromDirs {
		excluded[p] = true
	}

	globExcluded := c.configGlobExcluded()

	directFeatures, dirFeatures, notText := c.absFiles(expanded, true)
	invalid = append(invalid, notText...)

	// Config glob excludes apply only to files picked up from directories.
	for p := range globExcluded {
		delete(dirFeatures, p)
	}
	for p, f := range dirFeatures {
		directFeatures[p] = f
	}

	for p, f := range directFeatures {
		if !excluded[p] {
			c.include[p] = f
		}
	}
	return invalid
}

// expandPaths resolves globs and interval suffixes in path arguments,
// returning absolute paths plus the arguments that matched nothing.
func (c *Context) expandPaths(paths []string) ([]string, []string) {
	var expanded, invalid []string
	for _, path := range paths {
		abs := c.abs(path)
		if matches, err := doublestar.FilepathGlob(abs); err == nil && len(matches) > 0 {
			expanded = append(expanded, matches...)
			continue
		}
		idx := strings.LastIndex(abs, ":")
		if idx >= 0 {
			base := abs[:idx]
			if _, err := os.Stat(base); err == nil && ParseIntervals(abs[idx+1:]) != nil {
				expanded = append(expanded, abs)
				continue
			}
		}
		invalid = append(invalid, path)
	}
	return expanded, invalid
}

// absFiles turns expanded paths into features: files directly, directories
// by walking their non-gitignored contents. checkForText filters files
// that do not read as UTF-8 and reports them.
func (c *Context) absFiles(paths []string, checkForText bool) (direct, fromDirs map[string]*Feature, invalid []string) {
	direct = make(map[string]*Feature)
	fromDirs = make(map[string]*Feature)

	for _, path := range paths {
		f := NewFeature(path)
		info, err := os.Stat(f.Path)
		switch {
		case err != nil:
			continue
		case !info.IsDir():
			if checkForText && !isTextEncoded(f.Path) {
				c.deps.Log.Info("file is not text encoded", zap.String("path", f.Path))
				invalid = append(invalid, f.Path)
				continue
			}
			f.UserIncluded = true
			direct[f.Path] = f
		default:
			for _, abs := range c.dirFiles(f.Path) {
				if checkForText && !isTextEncoded(abs) {
					continue
				}
				fromDirs[abs] = &Feature{
					Path:         abs,
					Intervals:    []Interval{wholeFile},
					Level:        LevelCode,
					UserIncluded: true,
				}
			}
		}
	}
	return direct, fromDirs, invalid
}

// dirFiles lists the repository's non-ignored files under dir.
func (c *Context) dirFiles(dir string) []string {
	rels, err := c.deps.Repo.ListFiles()
	if err != nil {
		c.deps.Log.Warn("listing repository files", zap.Error(err))
		return nil
	}
	root := c.deps.Repo.Root()
	var files []string
	for _, rel := range rels {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if abs == dir || strings.HasPrefix(abs, dir+string(os.PathSeparator)) {
			files = append(files, abs)
		}
	}
	return files
}

// configGlobExcluded resolves the config's exclude globs against the
// repository's files.
func (c *Context) configGlobExcluded() map[string]bool {
	excluded := make(map[string]bool)
	if len(c.deps.Config.FileExcludeGlobList) == 0 {
		return excluded
	}
	rels, err := c.deps.Repo.ListFiles()
	if err != nil {
		return excluded
	}
	root := c.deps.Repo.Root()
	for _, pattern := range c.deps.Config.FileExcludeGlobList {
		for _, rel := range rels {
			if match, err := doublestar.Match(pattern, filepath.ToSlash(rel)); err == nil && match {
				excluded[filepath.Join(root, filepath.FromSlash(rel))] = true
			}
		}
	}
	return excluded
}

// includeFeatures returns the included features sorted by path.
func (c *Context) includeFeatures() []*Feature {
	features := make([]*Feature, 0, len(c.include))
	for _, f := range c.include {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Path < features[j].Path })
	return features
}

// autoFeatures builds code-map features for repository files outside the
// included set, at the highest detail level whose rendering fits budget.
func (c *Context) autoFeatures(ctx context.Context, model string, budget int) []*Feature {
	if budget <= 0 {
		return nil
	}
	rels, err := c.deps.Repo.ListFiles()
	if err != nil {
		c.deps.Log.Warn("listing repository files", zap.Error(err))
		return nil
	}
	root := c.deps.Repo.Root()
	var candidates []string
	for _, rel := range rels {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if _, ok := c.include[abs]; !ok {
			candidates = append(candidates, abs)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, level := range []Level{LevelCmapFull, LevelCmap, LevelFileName} {
		features := make([]*Feature, len(candidates))
		var lines []string
		for i, abs := range candidates {
			features[i] = &Feature{Path: abs, Intervals: []Interval{wholeFile}, Level: level}
			msg, err := c.featureMessage(ctx, features[i])
			if err != nil {
				continue
			}
			lines = append(lines, msg...)
		}
		if llm.CountTokens(strings.Join(lines, "\n"), model) <= budget {
			return features
		}
	}
	return nil
}

// featureMessage renders one feature, reusing the cached rendering while
// the underlying file and settings are unchanged.
func (c *Context) featureMessage(ctx context.Context, f *Feature) ([]string, error) {
	checksum := c.featureChecksum(f)
	if f.message != nil && checksum == f.checksum {
		return f.message, nil
	}

	lines, err := c.renderFeature(ctx, f)
	if err != nil {
		return nil, err
	}
	f.checksum = checksum
	f.message = lines
	return lines, nil
}

func (c *Context) featureChecksum(f *Feature) string {
	fileChecksum := c.deps.Files.Checksum(f.Path)
	return patch.Checksum([]string{fileChecksum + f.Level.Key() + c.deps.Diff.Target()})
}

func (c *Context) renderFeature(ctx context.Context, f *Feature) ([]string, error) {
	rel := c.rel(f.Path)
	message := []string{filepath.ToSlash(rel)}

	var fileLines []string
	switch f.Level {
	case LevelCode, LevelInterval:
		lines, err := c.deps.Files.ReadFile(f.Path)
		if err != nil {
			return nil, err
		}
		fileLines = lines
		for i, line := range lines {
			if !f.ContainsLine(i + 1) {
				continue
			}
			if c.settings.LineNumbers {
				message = append(message, strconv.Itoa(i+1)+":"+line)
			} else {
				message = append(message, line)
			}
		}
	case LevelCmapFull, LevelCmap:
		if tags, err := c.deps.Extractor.FileTags(ctx, f.Path); err == nil {
			message = append(message, codemap.FileMap(tags, f.Level == LevelCmapFull)...)
		}
	}
	message = append(message, "")

	if !c.diffAffects(rel) {
		return message, nil
	}
	if fileLines == nil {
		if lines, ok := c.deps.Files.Lines(f.Path); ok {
			fileLines = lines
		}
	}
	if f.Level == LevelCode {
		annotated, err := c.deps.Diff.AnnotateFileMessage(rel, fileLines, message)
		if err != nil {
			return nil, err
		}
		return annotated, nil
	}
	annotations, err := c.deps.Diff.Annotations(rel, fileLines)
	if err != nil {
		return nil, err
	}
	for _, a := range annotations {
		for _, line := range a.Removed {
			message = append(message, "-"+line)
		}
		for _, line := range a.Added {
			message = append(message, "+"+line)
		}
	}
	return message, nil
}

// diffAffects reports whether rel differs from the diff target.
func (c *Context) diffAffects(rel string) bool {
	files, err := c.deps.Diff.Files()
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, f := range files {
		if filepath.ToSlash(f) == rel {
			return true
		}
	}
	return false
}

// messageChecksum keys the memoized code message on everything that feeds
// it: the model and budget, the diff target, the settings, and each
// included file's content.
func (c *Context) messageChecksum(model string, maxTokens int) string {
	parts := []string{
		model,
		strconv.Itoa(maxTokens),
		c.deps.Diff.Target(),
		strconv.FormatBool(c.settings.NoCodeMap),
		strconv.FormatBool(c.settings.LineNumbers),
	}
	for _, f := range c.includeFeatures() {
		parts = append(parts, f.Ref(), c.featureChecksum(f))
	}
	return patch.Checksum(parts)
}

func (c *Context) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.deps.Repo.Root(), path)
}

func (c *Context) rel(path string) string {
	rel, err := filepath.Rel(c.deps.Repo.Root(), path)
	if err != nil {
		return path
	}
	return rel
}

func (c *Context) readRel(rel string) []string {
	data, err := os.ReadFile(filepath.Join(c.deps.Repo.Root(), filepath.FromSlash(rel)))
	if err != nil {
		return nil
	}
	return strings.Split(string(data), "\n")
}

// isTextEncoded reports whether the file reads as UTF-8 text.
func isTextEncoded(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return utf8.Valid(data)
}
