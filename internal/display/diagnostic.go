// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// RenderAnchorFailure explains a hunk whose original lines were not found:
// the search lines the model wrote, and the most similar region of the
// current file with its line range. The similarity is diagnostic only and
// never drives application.
func RenderAnchorFailure(displayPath string, search, buffer []string) string {
	parts := []string{
		fmt.Sprintf("Could not find the original lines in %s. The model wrote:", displayPath),
		gutterBlock(search, "-", removedColor, 2, nil),
	}
	start, region, sim := closestRegion(buffer, search)
	if len(region) > 0 {
		width := len(strconv.Itoa(len(buffer)+1)) + 1
		parts = append(parts,
			fmt.Sprintf("Closest match, lines %d-%d (%.0f%% similar):",
				start+1, start+len(region), sim*100),
			numberedBlock(buffer, start, start+len(region), width),
		)
	}
	var out []string
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, "\n")
}

// closestRegion slides a window of len(search) lines over buffer and
// returns the most similar region with its 0-indexed start line.
func closestRegion(buffer, search []string) (start int, region []string, sim float64) {
	if len(search) == 0 || len(buffer) == 0 {
		return 0, nil, 0
	}
	window := len(search)
	if window > len(buffer) {
		window = len(buffer)
	}
	searchText := strings.Join(search, "\n")

	var bestSim float64
	bestStart := -1
	for i := 0; i+window <= len(buffer); i++ {
		s := similarity(strings.Join(buffer[i:i+window], "\n"), searchText)
		if s > bestSim {
			bestSim = s
			bestStart = i
		}
	}
	if bestStart < 0 {
		return 0, nil, 0
	}
	return bestStart, buffer[bestStart : bestStart+window], bestSim
}

// similarity is the Levenshtein ratio between two strings, 0.0 to 1.0.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(distance)/float64(maxLen)
}
