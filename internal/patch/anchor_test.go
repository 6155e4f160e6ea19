// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		name   string
		buffer []string
		search []string
		want   int
	}{
		{
			name:   "exact match in middle",
			buffer: []string{"a", "b", "c", "d"},
			search: []string{"b", "c"},
			want:   1,
		},
		{
			name:   "match at start",
			buffer: []string{"a", "b", "c"},
			search: []string{"a"},
			want:   0,
		},
		{
			name:   "match at end",
			buffer: []string{"a", "b", "c"},
			search: []string{"b", "c"},
			want:   1,
		},
		{
			name:   "lowest index wins among duplicates",
			buffer: []string{"x", "dup", "y", "dup", "z"},
			search: []string{"dup"},
			want:   1,
		},
		{
			name:   "duplicate run picks first occurrence",
			buffer: []string{"a", "b", "a", "b", "c"},
			search: []string{"a", "b"},
			want:   0,
		},
		{
			name:   "no match",
			buffer: []string{"a", "b", "c"},
			search: []string{"q"},
			want:   NotFound,
		},
		{
			name:   "whitespace differences do not match",
			buffer: []string{"  indented"},
			search: []string{"indented"},
			want:   NotFound,
		},
		{
			name:   "partial run does not match",
			buffer: []string{"a", "b", "c"},
			search: []string{"b", "q"},
			want:   NotFound,
		},
		{
			name:   "search longer than buffer",
			buffer: []string{"a"},
			search: []string{"a", "b"},
			want:   NotFound,
		},
		{
			name:   "empty search anchors at top",
			buffer: []string{"a", "b"},
			search: nil,
			want:   0,
		},
		{
			name:   "empty buffer with search",
			buffer: nil,
			search: []string{"a"},
			want:   NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Locate(tt.buffer, tt.search))
		})
	}
}
