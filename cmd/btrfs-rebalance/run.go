// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/datawire/dlib/dcontext"
	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsbalance"
	"git.lukeshu.com/btrfs-rebalance/lib/btrfsprogs"
	"git.lukeshu.com/btrfs-rebalance/lib/notify"
	"git.lukeshu.com/btrfs-rebalance/lib/promfile"
	"git.lukeshu.com/btrfs-rebalance/lib/textui"
)

type config struct {
	MountPath string
	Cleanup   bool
	ForceFree bool
	DryRun    bool
	Policy    btrfsbalance.Policy

	LogFile  string
	LogLevel dlog.LogLevel

	SummaryJSON string
	MetricsFile string
	Mailer      notify.Mailer
}

// Run sets up the run log, then runs the selected mode under a dgroup
// that turns SIGINT/SIGTERM into a soft shutdown.
func (cfg config) Run(ctx context.Context, tool btrfsprogs.Tool, stdout io.Writer) (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}

	runLog := new(bytes.Buffer)
	var logOut io.Writer = runLog
	if cfg.LogFile != "" {
		fh, err := os.Create(cfg.LogFile)
		if err != nil {
			return err
		}
		defer func() {
			maybeSetErr(fh.Close())
		}()
		logOut = io.MultiWriter(fh, runLog)
	}
	ctx = dlog.WithLogger(ctx, textui.NewLogger(logOut, cfg.LogLevel))

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
	})
	grp.Go("main", func(ctx context.Context) error {
		return cfg.run(ctx, btrfsbalance.NewController(tool, cfg.Policy), stdout, runLog)
	})
	maybeSetErr(grp.Wait())
	return err
}

func (cfg config) run(ctx context.Context, ctrl *btrfsbalance.Controller, stdout io.Writer, runLog *bytes.Buffer) error {
	dlog.Infof(ctx, "Using mount path: %s", cfg.MountPath)

	switch {
	case cfg.Cleanup:
		ctrl.Cancel(ctx, cfg.MountPath)
		return nil
	case cfg.DryRun:
		metrics, err := ctrl.DryRun(ctx, cfg.MountPath)
		if err != nil {
			return err
		}
		if _, err := textui.Fprintf(stdout, "%s\n", metrics.Summary()); err != nil {
			return err
		}
		if cfg.MetricsFile != "" {
			exporter := promfile.NewExporter()
			exporter.ObserveMetrics(cfg.MountPath, metrics)
			return exporter.WriteFile(cfg.MetricsFile)
		}
		return nil
	}

	var errs derror.MultiError
	summary, err := ctrl.RunRebalance(ctx, cfg.MountPath, cfg.ForceFree)
	if err != nil {
		dlog.Errorf(ctx, "Run stopped: %v", err)
		errs = append(errs, err)
	}
	if cfg.SummaryJSON != "" {
		if err := createJSONFile(cfg.SummaryJSON, summary); err != nil {
			dlog.Errorf(ctx, "summary: %v", err)
			errs = append(errs, err)
		}
	}
	if cfg.MetricsFile != "" {
		exporter := promfile.NewExporter()
		exporter.ObserveSummary(summary, time.Now())
		if err := exporter.WriteFile(cfg.MetricsFile); err != nil {
			dlog.Errorf(ctx, "metrics: %v", err)
			errs = append(errs, err)
		}
	}

	// Deliver the log even if we are shutting down.
	if err := cfg.deliver(dcontext.HardContext(ctx), stdout, runLog); err != nil {
		errs = append(errs, err)
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errs
	}
}

// deliver mails the run log if a mailer is configured, and otherwise
// echoes it to stdout.
func (cfg config) deliver(ctx context.Context, stdout io.Writer, runLog *bytes.Buffer) error {
	if cfg.Mailer.Configured() {
		return cfg.Mailer.Send(ctx, runLog.String())
	}
	if cfg.Mailer != (notify.Mailer{}) {
		dlog.Warnf(ctx, "Not mailing the run log: --sender, --receiver, and --smtpserver must all be set")
	}
	_, err := io.WriteString(stdout, runLog.String())
	return err
}
