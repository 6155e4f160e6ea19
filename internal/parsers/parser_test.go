// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sycomix/mentat/pkg/types"
)

func TestForFormat(t *testing.T) {
	for _, format := range []types.PatchFormat{types.FormatBlock, types.FormatUnifiedDiff} {
		p, err := ForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, format, p.Format())
	}

	_, err := ForFormat(types.PatchFormat("hunk-oracle"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown patch format")
}

func TestSystemPrompts(t *testing.T) {
	for _, format := range []types.PatchFormat{types.FormatBlock, types.FormatUnifiedDiff} {
		p, err := ForFormat(format)
		require.NoError(t, err)

		prompt, err := p.SystemPrompt()
		require.NoError(t, err)
		assert.NotEmpty(t, prompt)
		assert.Contains(t, prompt, "@@end")
	}
}
