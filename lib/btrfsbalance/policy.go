// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsbalance

import (
	"fmt"

	"git.lukeshu.com/btrfs-rebalance/lib/textui"
)

// Policy holds the thresholds that decide whether a pass runs.  All
// values are percentages.
type Policy struct {
	// LowAllocationPct: a filesystem with at most this much of
	// its device allocated into chunks is left alone.
	LowAllocationPct float64 `json:"low_allocation_pct"`

	// HighAllocationPct is not consulted by RunRebalance; it is
	// reserved for a more urgent plan on nearly-fully-allocated
	// filesystems.
	HighAllocationPct float64 `json:"high_allocation_pct"`

	// OptimalUsagePct: a pass only runs if the allocated chunks
	// are at most this full (unless Force is set), since
	// compacting already-dense chunks frees little.
	OptimalUsagePct float64 `json:"optimal_usage_pct"`

	// OptimalUsageFullPct is the OptimalUsagePct counterpart for
	// a filesystem nearing full.  Like HighAllocationPct, it is
	// not consulted by RunRebalance.
	OptimalUsageFullPct float64 `json:"optimal_usage_full_pct"`

	// Force runs every pass of an over-allocated filesystem
	// regardless of how full its chunks are.
	Force bool `json:"force"`
}

// DefaultPolicy returns the conservative policy.
func DefaultPolicy() Policy {
	return Policy{
		LowAllocationPct:    textui.Tunable(50.0),
		HighAllocationPct:   textui.Tunable(70.0),
		OptimalUsagePct:     textui.Tunable(80.0),
		OptimalUsageFullPct: textui.Tunable(90.0),
	}
}

// Validate returns an error if any threshold is not a percentage.
// Thresholds are not checked against each other; HighAllocationPct
// and OptimalUsageFullPct are never consulted, so no ordering between
// them and the thresholds that are can be assumed.
func (p Policy) Validate() error {
	for _, thresh := range []struct {
		name string
		val  float64
	}{
		{"low_allocation_pct", p.LowAllocationPct},
		{"high_allocation_pct", p.HighAllocationPct},
		{"optimal_usage_pct", p.OptimalUsagePct},
		{"optimal_usage_full_pct", p.OptimalUsageFullPct},
	} {
		if !(thresh.val >= 0 && thresh.val <= 100) {
			return fmt.Errorf("policy: %s=%v is not within [0,100]", thresh.name, thresh.val)
		}
	}
	return nil
}

// PassPlan is the sequence of -dusage cutoffs for one run, from the
// strictest (touching the fewest chunks) to the broadest.
type PassPlan []int

// Escalation levels.
const (
	// DUsageEmpty reclaims only chunks with no data in them.
	DUsageEmpty = 0
	// DUsageNearlyEmpty also reclaims chunks that are under 1%
	// used.
	DUsageNearlyEmpty = 1
	// DUsageSparse reclaims chunks under 10% used; only
	// aggressive runs go this far.
	DUsageSparse = 10
)

// NewPassPlan returns the plan for a run; aggressive runs add a final
// DUsageSparse pass.
func NewPassPlan(aggressive bool) PassPlan {
	if aggressive {
		return PassPlan{DUsageEmpty, DUsageNearlyEmpty, DUsageSparse}
	}
	return PassPlan{DUsageEmpty, DUsageNearlyEmpty}
}
