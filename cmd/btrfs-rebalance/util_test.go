// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsbalance"
)

func TestReadJSONFileKeepsAbsentMembers(t *testing.T) {
	t.Parallel()
	filename := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(filename, []byte("{\"low_allocation_pct\": 75}\n"), 0o600))

	policy, err := readJSONFile(context.Background(), filename, btrfsbalance.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 75.0, policy.LowAllocationPct)
	assert.Equal(t, 70.0, policy.HighAllocationPct)
	assert.Equal(t, 80.0, policy.OptimalUsagePct)
	assert.NoError(t, policy.Validate())
}

func TestReadJSONFileTrailingGarbage(t *testing.T) {
	t.Parallel()
	filename := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"force": true} {}`), 0o600))

	_, err := readJSONFile(context.Background(), filename, btrfsbalance.DefaultPolicy())
	assert.Error(t, err)
}

func TestReadJSONFileMissing(t *testing.T) {
	t.Parallel()
	_, err := readJSONFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"), btrfsbalance.DefaultPolicy())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
