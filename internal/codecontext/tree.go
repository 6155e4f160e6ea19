// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package codecontext

import (
	"path/filepath"
	"sort"
	"strings"
)

// BuildPathTree nests root-relative paths into a directory tree.
func BuildPathTree(relPaths []string) map[string]any {
	tree := make(map[string]any)
	for _, rel := range relPaths {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		level := tree
		for _, part := range parts {
			child, ok := level[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				level[part] = child
			}
			level = child
		}
	}
	return tree
}

// RenderPathTree renders the tree with box-drawing connectors.
// Directories are colored, changed files are starred.
func RenderPathTree(tree map[string]any, changed map[string]bool) []string {
	return renderTree(tree, changed, "", "")
}

func renderTree(tree map[string]any, changed map[string]bool, curPath, prefix string) []string {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for i, key := range keys {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(keys)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		cur := key
		if curPath != "" {
			cur = curPath + "/" + key
		}
		child, _ := tree[key].(map[string]any)

		label := key
		if changed[cur] {
			label = "* " + key
		}
		switch {
		case len(child) > 0:
			label = dirColor.Sprint(label)
		case changed[cur]:
			label = changedColor.Sprint(label)
		}

		out = append(out, prefix+connector+label)
		if len(child) > 0 {
			out = append(out, renderTree(child, changed, cur, childPrefix)...)
		}
	}
	return out
}
