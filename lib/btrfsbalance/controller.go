// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsbalance decides when, and how aggressively, to balance
// a btrfs filesystem in order to return mostly-empty chunks to the
// unallocated pool.
//
// A run is a sequence of passes with increasingly inclusive -dusage
// filters.  The filesystem is re-measured before every pass, since
// each pass changes the allocation that the next one decides on.
package btrfsbalance

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsprogs"
	"git.lukeshu.com/btrfs-rebalance/lib/btrfsusage"
)

// Controller runs rebalances of a filesystem through Tool, according
// to Policy.
type Controller struct {
	Tool   btrfsprogs.Tool
	Policy Policy
}

// NewController returns a Controller that uses the given policy.
func NewController(tool btrfsprogs.Tool, policy Policy) *Controller {
	return &Controller{
		Tool:   tool,
		Policy: policy,
	}
}

func (c *Controller) evaluate(ctx context.Context, mountpath string) (btrfsusage.Metrics, error) {
	text, err := c.Tool.FilesystemUsage(ctx, mountpath)
	if err != nil {
		return btrfsusage.Metrics{}, fmt.Errorf("failed to retrieve filesystem usage: %w", err)
	}
	metrics, err := btrfsusage.Evaluate(ctx, text)
	if err != nil {
		return btrfsusage.Metrics{}, fmt.Errorf("%s: %w", mountpath, err)
	}
	return metrics, nil
}

// decide returns the outcome that a pass would have given the
// current metrics, if it were not to fail.
func (c *Controller) decide(metrics btrfsusage.Metrics) Outcome {
	switch {
	case metrics.AllocPct <= c.Policy.LowAllocationPct:
		return OutcomeSkippedHealthy
	case c.Policy.Force || metrics.UsedOverAllocPct <= c.Policy.OptimalUsagePct:
		return OutcomeAttempted
	default:
		return OutcomeSkippedTooFull
	}
}

// RunRebalance runs up to one balance per level of the pass plan,
// stopping early once the filesystem is no longer over-allocated.
//
// A pass that fails is recorded and the run moves on to the next
// level.  Being unable to measure the filesystem is fatal: the
// returned error is non-nil, and the summary holds the passes that
// completed before the failure.
func (c *Controller) RunRebalance(ctx context.Context, mountpath string, aggressive bool) (RunSummary, error) {
	ctx = dlog.WithField(ctx, "btrfs-rebalance.mountpath", mountpath)
	summary := RunSummary{
		MountPath: mountpath,
		Plan:      NewPassPlan(aggressive),
		Policy:    c.Policy,
	}

	for i, dusage := range summary.Plan {
		passCtx := dlog.WithField(ctx, "btrfs-rebalance.pass", fmt.Sprintf("%d/%d", i+1, len(summary.Plan)))
		passCtx = dlog.WithField(passCtx, "btrfs-rebalance.dusage", dusage)
		dlog.Infof(passCtx, "Executing pass %d", i+1)

		metrics, err := c.evaluate(passCtx, mountpath)
		if err != nil {
			return summary, err
		}
		result := PassResult{
			Pass:    i + 1,
			DUsage:  dusage,
			Metrics: metrics,
			Outcome: c.decide(metrics),
		}

		switch result.Outcome {
		case OutcomeSkippedHealthy:
			dlog.Infof(passCtx, "Allocation %.2f%% is at or below %.2f%%; nothing to reclaim",
				metrics.AllocPct, c.Policy.LowAllocationPct)
			summary.Passes = append(summary.Passes, result)
			return summary, nil
		case OutcomeSkippedTooFull:
			dlog.Infof(passCtx, "Skipping pass: chunks are %.2f%% used, above %.2f%%",
				metrics.UsedOverAllocPct, c.Policy.OptimalUsagePct)
		case OutcomeAttempted:
			filter := btrfsprogs.BalanceFilter{DataUsage: dusage}
			dlog.Infof(passCtx, "Starting rebalance pass on %s with %v", mountpath, filter)
			if err := c.Tool.BalanceStart(passCtx, mountpath, filter); err != nil {
				dlog.Errorf(passCtx, "Failed to start rebalance: %v", err)
				result.Outcome = OutcomeFailed
				result.Err = err.Error()
			}
		}
		summary.Passes = append(summary.Passes, result)
	}
	return summary, nil
}

// Cancel asks btrfs to cancel any balance running on mountpath.  There
// being no balance to cancel is not an error, and neither is anything
// else; the result of a cancel is only logged.
func (c *Controller) Cancel(ctx context.Context, mountpath string) {
	ctx = dlog.WithField(ctx, "btrfs-rebalance.mountpath", mountpath)
	dlog.Infof(ctx, "Cleaning up any existing rebalance on %s", mountpath)
	if err := c.Tool.BalanceCancel(ctx, mountpath); err != nil {
		dlog.Debugf(ctx, "balance cancel: %v", err)
	}
}

// DryRun measures mountpath once, without balancing anything.
func (c *Controller) DryRun(ctx context.Context, mountpath string) (btrfsusage.Metrics, error) {
	ctx = dlog.WithField(ctx, "btrfs-rebalance.mountpath", mountpath)
	return c.evaluate(ctx, mountpath)
}
