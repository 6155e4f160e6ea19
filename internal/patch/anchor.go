// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package patch

// NotFound is returned by Locate when the search run does not occur in the
// buffer.
const NotFound = -1

// Locate finds the lowest index i such that buffer[i:i+len(search)] equals
// search line for line. Matching is exact: no whitespace normalization and
// no fuzzy fallback, so a hit is always a verbatim anchor for the hunk that
// produced the search lines. An empty search matches at index 0; callers
// treat a hunk with no context lines as an insertion at the top of the
// file.
func Locate(buffer, search []string) int {
	if len(search) == 0 {
		return 0
	}
	for i := 0; i+len(search) <= len(buffer); i++ {
		matched := true
		for j := range search {
			if buffer[i+j] != search[j] {
				matched = false
				break
			}
		}
		if matched {
			return i
		}
	}
	return NotFound
}
