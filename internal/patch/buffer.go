// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Checksum returns a hex sha256 over the buffer's lines joined with
// newlines, identical to hashing the file text the buffer was read from.
// Equal checksums mean line-for-line equal buffers; the token doubles as a
// cache key for layers that memoize per-content work.
func Checksum(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two buffers hold identical lines. It is the
// staleness primitive: the buffer read at parse time is compared against a
// fresh read immediately before writing.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
