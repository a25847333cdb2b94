// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprogs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsprogs"
)

func TestBalanceFilter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"-dusage=0"}, btrfsprogs.BalanceFilter{}.Args())
	assert.Equal(t, "-dusage=10", btrfsprogs.BalanceFilter{DataUsage: 10}.String())
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cmd, err := btrfsprogs.ParseCommand(`sudo -n "/usr/local/sbin/btrfs"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo", "-n", "/usr/local/sbin/btrfs"}, cmd.Argv)

	_, err = btrfsprogs.ParseCommand("   ")
	assert.Error(t, err)
}

func TestCommandArgv(t *testing.T) {
	t.Parallel()
	ctx := dlog.WithLogger(context.Background(), dlog.WrapTB(t, false))
	// `echo` stands in for btrfs, so the output is the argv that
	// btrfs would have received.
	cmd := &btrfsprogs.Command{Argv: []string{"echo"}}

	out, err := cmd.FilesystemUsage(ctx, "/srv/data")
	require.NoError(t, err)
	assert.Equal(t, "filesystem usage -b /srv/data\n", out)

	assert.NoError(t, cmd.BalanceStart(ctx, "/srv/data", btrfsprogs.BalanceFilter{DataUsage: 1}))
	assert.NoError(t, cmd.BalanceCancel(ctx, "/srv/data"))
}

func TestCommandFailure(t *testing.T) {
	t.Parallel()
	ctx := dlog.WithLogger(context.Background(), dlog.WrapTB(t, false))
	cmd := &btrfsprogs.Command{Argv: []string{"false"}}

	_, err := cmd.FilesystemUsage(ctx, "/srv/data")
	var cmdErr *btrfsprogs.CommandError
	require.True(t, errors.As(err, &cmdErr), "err=%v", err)
	assert.Equal(t, []string{"false", "filesystem", "usage", "-b", "/srv/data"}, cmdErr.Argv)
	assert.Equal(t, 1, cmdErr.ExitCode())

	err = cmd.BalanceStart(ctx, "/srv/data", btrfsprogs.BalanceFilter{})
	require.True(t, errors.As(err, &cmdErr), "err=%v", err)
	assert.Equal(t, []string{"false", "balance", "start", "-dusage=0", "/srv/data"}, cmdErr.Argv)
}

func TestCommandNotFound(t *testing.T) {
	t.Parallel()
	ctx := dlog.WithLogger(context.Background(), dlog.WrapTB(t, false))
	cmd := &btrfsprogs.Command{Argv: []string{"/nonexistent/btrfs"}}
	err := cmd.BalanceCancel(ctx, "/srv/data")
	var cmdErr *btrfsprogs.CommandError
	require.True(t, errors.As(err, &cmdErr), "err=%v", err)
	assert.Equal(t, -1, cmdErr.ExitCode())
}
