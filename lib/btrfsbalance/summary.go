// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsbalance

import (
	"encoding"
	"fmt"

	"git.lukeshu.com/btrfs-rebalance/lib/btrfsusage"
)

// Outcome is what happened at one level of a PassPlan.
type Outcome int

const (
	// OutcomeAttempted: the balance was started and returned
	// successfully.
	OutcomeAttempted Outcome = iota
	// OutcomeSkippedHealthy: the filesystem is not over-allocated;
	// this ends the run.
	OutcomeSkippedHealthy
	// OutcomeSkippedTooFull: the allocated chunks are too densely
	// used for a pass to be worthwhile.
	OutcomeSkippedTooFull
	// OutcomeFailed: the balance could not be started, or
	// returned an error.
	OutcomeFailed
)

var outcomeNames = []string{
	"attempted",
	"skipped-healthy",
	"skipped-too-full",
	"failed",
}

var (
	_ fmt.Stringer           = Outcome(0)
	_ encoding.TextMarshaler = Outcome(0)
)

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// PassResult records one level of a PassPlan.
type PassResult struct {
	// Pass is 1-based.
	Pass    int                `json:"pass"`
	DUsage  int                `json:"dusage"`
	Metrics btrfsusage.Metrics `json:"metrics"`
	Outcome Outcome            `json:"outcome"`
	// Err is the error message of a failed pass.
	Err string `json:"error,omitempty"`
}

// RunSummary records a call to RunRebalance.
type RunSummary struct {
	MountPath string       `json:"mountpath"`
	Plan      PassPlan     `json:"plan"`
	Policy    Policy       `json:"policy"`
	Passes    []PassResult `json:"passes"`
}

// Count returns how many passes ended with the given outcome.
func (s RunSummary) Count(outcome Outcome) int {
	n := 0
	for _, pass := range s.Passes {
		if pass.Outcome == outcome {
			n++
		}
	}
	return n
}
