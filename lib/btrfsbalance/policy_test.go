// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsbalance_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsbalance"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()
	policy := btrfsbalance.DefaultPolicy()
	assert.NoError(t, policy.Validate())
	assert.Equal(t, 50.0, policy.LowAllocationPct)
	assert.Equal(t, 80.0, policy.OptimalUsagePct)
	assert.Equal(t, 90.0, policy.OptimalUsageFullPct)
	assert.False(t, policy.Force)
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()
	testcases := map[string]func(*btrfsbalance.Policy){
		"negative":      func(p *btrfsbalance.Policy) { p.LowAllocationPct = -1 },
		"over-100":      func(p *btrfsbalance.Policy) { p.OptimalUsagePct = 101 },
		"nan":           func(p *btrfsbalance.Policy) { p.HighAllocationPct = math.NaN() },
		"full-over-100": func(p *btrfsbalance.Policy) { p.OptimalUsageFullPct = 100.5 },
	}
	for name, mutate := range testcases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			policy := btrfsbalance.DefaultPolicy()
			mutate(&policy)
			assert.Error(t, policy.Validate())
		})
	}
}

func TestPolicyValidateIndependentThresholds(t *testing.T) {
	t.Parallel()
	testcases := map[string]func(*btrfsbalance.Policy){
		"low-above-high":     func(p *btrfsbalance.Policy) { p.LowAllocationPct = 75 },
		"optimal-above-full": func(p *btrfsbalance.Policy) { p.OptimalUsagePct = 95 },
		"bounds":             func(p *btrfsbalance.Policy) { p.LowAllocationPct, p.OptimalUsagePct = 0, 100 },
	}
	for name, mutate := range testcases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			policy := btrfsbalance.DefaultPolicy()
			mutate(&policy)
			assert.NoError(t, policy.Validate())
		})
	}
}
