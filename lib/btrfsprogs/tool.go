// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsprogs drives the btrfs(8) command-line tool.
package btrfsprogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/google/shlex"
)

// Tool is the set of btrfs operations that rebalancing needs.  Each
// call blocks until the underlying operation has returned.
type Tool interface {
	// FilesystemUsage returns the raw text of `btrfs filesystem
	// usage -b`.
	FilesystemUsage(ctx context.Context, mountpath string) (string, error)
	// BalanceStart runs a balance restricted by filter, and
	// returns once the balance has finished.
	BalanceStart(ctx context.Context, mountpath string, filter BalanceFilter) error
	// BalanceCancel cancels a running balance.
	BalanceCancel(ctx context.Context, mountpath string) error
}

// BalanceFilter restricts which chunks a balance relocates.
type BalanceFilter struct {
	// DataUsage selects only data chunks that are less than
	// DataUsage percent full.
	DataUsage int
}

// Args returns the filter as btrfs-balance(8) arguments.
func (f BalanceFilter) Args() []string {
	return []string{fmt.Sprintf("-dusage=%d", f.DataUsage)}
}

func (f BalanceFilter) String() string {
	return strings.Join(f.Args(), " ")
}

// CommandError is returned when a btrfs command could not be run or
// exited unsuccessfully.
type CommandError struct {
	Argv   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode returns the exit status of the command, or -1 if the
// command did not run to completion.
func (e *CommandError) ExitCode() int {
	var exitErr *dexec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Command is a Tool that runs a btrfs executable.
type Command struct {
	// Argv is the command prefix used to invoke btrfs(8); for
	// example {"btrfs"} or {"sudo", "-n", "btrfs"}.
	Argv []string
}

var _ Tool = (*Command)(nil)

// ParseCommand splits a shell-quoted command line into a Command.
func ParseCommand(cmdline string) (*Command, error) {
	argv, err := shlex.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("btrfs command %q: %w", cmdline, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("btrfs command %q: empty", cmdline)
	}
	return &Command{Argv: argv}, nil
}

func (c *Command) argv(args ...string) []string {
	argv := c.Argv
	if len(argv) == 0 {
		argv = []string{"btrfs"}
	}
	return append(append([]string(nil), argv...), args...)
}

// FilesystemUsage implements Tool.
func (c *Command) FilesystemUsage(ctx context.Context, mountpath string) (string, error) {
	argv := c.argv("filesystem", "usage", "-b", mountpath)
	cmd := dexec.CommandContext(ctx, argv[0], argv[1:]...)
	// The report is logged in digested form by the caller.
	cmd.DisableLogging = true
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", &CommandError{Argv: argv, Output: stderr.String(), Err: err}
	}
	return string(out), nil
}

// BalanceStart implements Tool.
func (c *Command) BalanceStart(ctx context.Context, mountpath string, filter BalanceFilter) error {
	args := append([]string{"balance", "start"}, filter.Args()...)
	return c.run(ctx, c.argv(append(args, mountpath)...))
}

// BalanceCancel implements Tool.
func (c *Command) BalanceCancel(ctx context.Context, mountpath string) error {
	return c.run(ctx, c.argv("balance", "cancel", mountpath))
}

func (c *Command) run(ctx context.Context, argv []string) error {
	dlog.Debugf(ctx, "running %q", argv)
	out, err := dexec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return &CommandError{Argv: argv, Output: string(out), Err: err}
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		dlog.Info(ctx, msg)
	}
	return nil
}
