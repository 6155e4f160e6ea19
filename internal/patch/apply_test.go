// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sycomix/mentat/pkg/types"
)

func TestApplyReplacements(t *testing.T) {
	tests := []struct {
		name         string
		buffer       []string
		replacements []types.Replacement
		want         []string
	}{
		{
			name:   "single replacement",
			buffer: []string{"a", "b", "c"},
			replacements: []types.Replacement{
				{StartingLine: 1, EndingLine: 2, NewLines: []string{"B"}},
			},
			want: []string{"a", "B", "c"},
		},
		{
			name:         "empty replacement list returns buffer unchanged",
			buffer:       []string{"a", "b", "c"},
			replacements: nil,
			want:         []string{"a", "b", "c"},
		},
		{
			name:   "pure deletion",
			buffer: []string{"a", "b", "c"},
			replacements: []types.Replacement{
				{StartingLine: 0, EndingLine: 2, NewLines: nil},
			},
			want: []string{"c"},
		},
		{
			name:   "pure insertion at top",
			buffer: []string{"a", "b"},
			replacements: []types.Replacement{
				{StartingLine: 0, EndingLine: 0, NewLines: []string{"new"}},
			},
			want: []string{"new", "a", "b"},
		},
		{
			name:   "insertion at end of file",
			buffer: []string{"a", "b"},
			replacements: []types.Replacement{
				{StartingLine: 2, EndingLine: 2, NewLines: []string{"c"}},
			},
			want: []string{"a", "b", "c"},
		},
		{
			name:   "range past EOF pads with empty lines",
			buffer: []string{"a"},
			replacements: []types.Replacement{
				{StartingLine: 3, EndingLine: 4, NewLines: []string{"far"}},
			},
			want: []string{"a", "", "", "far"},
		},
		{
			name:   "multiple disjoint replacements",
			buffer: []string{"a", "b", "c", "d", "e"},
			replacements: []types.Replacement{
				{StartingLine: 0, EndingLine: 1, NewLines: []string{"A"}},
				{StartingLine: 2, EndingLine: 3, NewLines: []string{"C1", "C2"}},
				{StartingLine: 4, EndingLine: 5, NewLines: nil},
			},
			want: []string{"A", "b", "C1", "C2", "d"},
		},
		{
			name:   "replace whole buffer",
			buffer: []string{"a", "b"},
			replacements: []types.Replacement{
				{StartingLine: 0, EndingLine: 2, NewLines: []string{"only"}},
			},
			want: []string{"only"},
		},
		{
			name:   "round trip with identical lines",
			buffer: []string{"a", "b", "c"},
			replacements: []types.Replacement{
				{StartingLine: 1, EndingLine: 3, NewLines: []string{"b", "c"}},
			},
			want: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyReplacements(tt.buffer, tt.replacements)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyReplacements_OrderIndependent(t *testing.T) {
	buffer := []string{"a", "b", "c", "d", "e", "f"}
	set := []types.Replacement{
		{StartingLine: 0, EndingLine: 1, NewLines: []string{"A"}},
		{StartingLine: 2, EndingLine: 4, NewLines: []string{"X"}},
		{StartingLine: 5, EndingLine: 6, NewLines: []string{"F", "G"}},
	}
	want := []string{"A", "b", "X", "e", "F", "G"}

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, perm := range permutations {
		input := make([]types.Replacement, len(set))
		for i, p := range perm {
			input[i] = set[p]
		}
		got, err := ApplyReplacements(buffer, input)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input order %v", perm)
	}
}

func TestApplyReplacements_InsertionCollisionOrder(t *testing.T) {
	// Two insertions at the same point keep emission order in processing;
	// splicing at one index puts the last-emitted lines first in the
	// output.
	buffer := []string{"a", "b"}
	replacements := []types.Replacement{
		{StartingLine: 0, EndingLine: 0, NewLines: []string{"X"}},
		{StartingLine: 0, EndingLine: 0, NewLines: []string{"Y"}},
	}

	got, err := ApplyReplacements(buffer, replacements)
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "X", "a", "b"}, got)
}

func TestApplyReplacements_OverlapIsFatal(t *testing.T) {
	buffer := []string{"a", "b", "c", "d", "e"}
	replacements := []types.Replacement{
		{StartingLine: 2, EndingLine: 5, NewLines: []string{"x"}},
		{StartingLine: 0, EndingLine: 3, NewLines: []string{"y"}},
	}

	got, err := ApplyReplacements(buffer, replacements)

	require.Error(t, err)
	assert.Nil(t, got)
	var overlapErr *OverlapError
	require.ErrorAs(t, err, &overlapErr)
	assert.Len(t, overlapErr.Replacements, 2, "offending set is carried for logging")
	assert.Contains(t, overlapErr.Error(), "line overlap")
}

func TestApplyReplacements_DoesNotMutateInput(t *testing.T) {
	buffer := []string{"a", "b", "c"}
	replacements := []types.Replacement{
		{StartingLine: 0, EndingLine: 3, NewLines: []string{"z"}},
	}

	_, err := ApplyReplacements(buffer, replacements)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, buffer)
	assert.Equal(t, 0, replacements[0].StartingLine, "replacement list order untouched")
}

func TestResolveAndApply(t *testing.T) {
	t.Run("overlapping edit resolves then applies", func(t *testing.T) {
		edit := &types.FileEdit{
			FilePath: "/repo/file.txt",
			Replacements: []types.Replacement{
				{StartingLine: 0, EndingLine: 2, NewLines: []string{"first"}},
				{StartingLine: 1, EndingLine: 3, NewLines: []string{"second"}},
			},
		}
		buffer := []string{"a", "b", "c", "d"}

		got, merges, collisions, err := ResolveAndApply(edit, buffer)

		require.NoError(t, err)
		require.Len(t, merges, 1)
		assert.Empty(t, collisions)
		// (1,3) wins; (0,2) is truncated to (0,1). Content from both
		// survives.
		assert.Equal(t, []string{"first", "second", "d"}, got)
		// The edit's replacement list is rewritten in resolved order.
		assert.Equal(t, 3, edit.Replacements[0].EndingLine)
	})

	t.Run("clean edit reports nothing", func(t *testing.T) {
		edit := &types.FileEdit{
			FilePath: "/repo/file.txt",
			Replacements: []types.Replacement{
				{StartingLine: 1, EndingLine: 2, NewLines: []string{"B"}},
			},
		}

		got, merges, collisions, err := ResolveAndApply(edit, []string{"a", "b", "c"})

		require.NoError(t, err)
		assert.Empty(t, merges)
		assert.Empty(t, collisions)
		assert.Equal(t, []string{"a", "B", "c"}, got)
	})
}
