// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command btrfs-rebalance reclaims over-allocated chunks of a btrfs
// filesystem by running escalating `btrfs balance` passes.
package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsbalance"
	"git.lukeshu.com/btrfs-rebalance/lib/btrfsprogs"
	"git.lukeshu.com/btrfs-rebalance/lib/textui"
)

// usageError marks errors that should exit with status 2.
type usageError struct {
	Err error
}

func (e *usageError) Error() string { return e.Err.Error() }
func (e *usageError) Unwrap() error { return e.Err }

func newTool(cmdline string) (btrfsprogs.Tool, error) {
	cmd, err := btrfsprogs.ParseCommand(cmdline)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func newArgparser(stdout io.Writer, mkTool func(string) (btrfsprogs.Tool, error)) *cobra.Command {
	logLevelFlag := textui.LogLevelFlag{
		Level: dlog.LogLevelInfo,
	}
	var cfg config
	var (
		forceFlag        bool
		policyFlag       string
		btrfsCommandFlag string
	)

	argparser := &cobra.Command{
		Use:   "btrfs-rebalance --mountpath=PATH [flags]",
		Short: "Reclaim over-allocated chunks of a btrfs filesystem",

		Args: func(cmd *cobra.Command, args []string) error {
			if err := cliutil.WrapPositionalArgs(cobra.NoArgs)(cmd, args); err != nil {
				return &usageError{Err: err}
			}
			return nil
		},

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{Err: cliutil.FlagErrorFunc(cmd, err)}
	})
	argparser.SetHelpTemplate(cliutil.HelpTemplate)

	flags := argparser.Flags()
	flags.Var(&logLevelFlag, "verbosity", "set the verbosity")
	flags.StringVar(&cfg.MountPath, "mountpath", "", "rebalance the btrfs filesystem mounted at `path` (required)")
	flags.BoolVar(&cfg.Cleanup, "cleanup", false, "cancel any balance in progress, and exit")
	flags.BoolVar(&cfg.ForceFree, "forcefree", false, "add a pass that also reclaims chunks that are under 10% used")
	flags.BoolVar(&forceFlag, "force", false, "balance even when the allocated chunks are densely used")
	flags.BoolVar(&cfg.DryRun, "dryrun", false, "report the current usage without balancing anything")
	flags.StringVar(&cfg.Mailer.Sender, "sender", "", "mail the run log from `address`")
	flags.StringVar(&cfg.Mailer.Receiver, "receiver", "", "mail the run log to `address`")
	flags.StringVar(&cfg.Mailer.Relay, "smtpserver", "", "mail the run log through the SMTP relay at `host[:port]`")
	flags.StringVar(&cfg.LogFile, "log-file", "/var/log/btrfs-rebalance.log", "write the run log to `filename`, truncating it first; empty to not keep a log file")
	flags.StringVar(&policyFlag, "policy", "", "load thresholds from the JSON file `policy.json`")
	flags.StringVar(&cfg.SummaryJSON, "summary-json", "", "write a JSON record of the run to `filename`")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics to `filename`")
	flags.StringVar(&btrfsCommandFlag, "btrfs-command", "btrfs", "run btrfs(8) as `command`, split as a shell would")
	for _, name := range []string{"log-file", "policy", "summary-json", "metrics-file"} {
		if err := argparser.MarkFlagFilename(name); err != nil {
			panic(err)
		}
	}

	argparser.RunE = func(cmd *cobra.Command, _ []string) error {
		if cfg.MountPath == "" {
			return &usageError{Err: errors.New("flag --mountpath is required")}
		}
		ctx := cmd.Context()

		cfg.Policy = btrfsbalance.DefaultPolicy()
		if policyFlag != "" {
			var err error
			cfg.Policy, err = readJSONFile(ctx, policyFlag, cfg.Policy)
			if err != nil {
				return err
			}
		}
		if forceFlag {
			cfg.Policy.Force = true
		}
		if err := cfg.Policy.Validate(); err != nil {
			return err
		}

		tool, err := mkTool(btrfsCommandFlag)
		if err != nil {
			return err
		}
		cfg.LogLevel = logLevelFlag.Level
		return cfg.Run(ctx, tool, stdout)
	}

	return argparser
}

// exitCode maps the error returned by ExecuteContext to a process exit
// status.
func exitCode(err error) int {
	var uerr *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &uerr):
		return 2
	default:
		return 1
	}
}

func main() {
	dlog.SetFallbackLogger(textui.NewLogger(os.Stderr, dlog.LogLevelInfo).
		WithField("btrfs-rebalance.THIS_IS_A_BUG", true))
	argparser := newArgparser(os.Stdout, newTool)
	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(exitCode(err))
	}
}
