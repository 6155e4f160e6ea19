// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package codemap

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

// FileMap renders one file's tags as the nested listing sent to the model.
// Rows sort lexicographically as (scope, kind, name) tuples, and elements
// shared with the previous row render once, deeper elements tab-indented
// beneath them. With includeSignatures the name carries its parameter text.
func FileMap(tags []Tag, includeSignatures bool) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	rows := make([][]string, 0, len(tags))
	for _, tag := range tags {
		name := tag.Name
		if includeSignatures && tag.Signature != "" {
			name += " " + tag.Signature
		}
		var row []string
		if tag.Scope != "" {
			row = append(row, tag.Scope)
		}
		row = append(row, tag.Kind, name)
		key := strings.Join(row, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return lessRow(rows[i], rows[j]) })

	var out []string
	var last []string
	for _, row := range rows {
		common := 0
		for i := 0; i < len(last); i++ {
			if i >= len(row) || last[i] != row[i] {
				common = i
				break
			}
		}
		if common >= len(row) {
			continue
		}
		indent := strings.Repeat("\t", common)
		for _, item := range row[common:] {
			out = append(out, indent+item)
			indent += "\t"
		}
		last = row
	}
	return out
}

func lessRow(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// MapMessage renders the code map section for a set of files: each file's
// repo-relative path in posix form, followed by its indented tags and a
// blank line. Unsupported and unparseable files appear as bare paths.
func (e *Extractor) MapMessage(ctx context.Context, gitRoot string, paths []string, includeSignatures bool) []string {
	ordered := append([]string(nil), paths...)
	sort.Strings(ordered)

	var message []string
	for _, p := range ordered {
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(gitRoot, p)
		}
		rel, err := filepath.Rel(gitRoot, abs)
		if err != nil {
			rel = p
		}
		message = append(message, filepath.ToSlash(rel))
		if tags, err := e.FileTags(ctx, abs); err == nil {
			message = append(message, FileMap(tags, includeSignatures)...)
		}
		message = append(message, "")
	}
	return message
}
