// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsusage

import (
	"context"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/davecgh/go-spew/spew"

	"git.lukeshu.com/btrfs-rebalance/lib/textui"
)

// Metrics are the ratios derived from a single Report.  Percentages
// are in the range [0,100] for a consistent Report.
type Metrics struct {
	Report Report `json:"report"`

	// FreeExpected is the free space implied by DeviceSize-DeviceUsed.
	FreeExpected int64 `json:"free_expected"`
	// FreeDeltaBytes is the space that is neither used nor
	// reported free; it is held by frees that have not yet been
	// committed, or is locked up in partially-filled chunks.
	FreeDeltaBytes int64   `json:"free_delta_bytes"`
	FreeDeltaPct   float64 `json:"free_delta_pct"`

	// AllocPct is how much of the device has been claimed into
	// chunks.
	AllocPct float64 `json:"alloc_pct"`
	// UsedOverAllocPct is how full the claimed chunks are; a low
	// number means many mostly-empty chunks.
	UsedOverAllocPct float64 `json:"used_over_alloc_pct"`

	DataUsedPct     float64 `json:"data_used_pct"`
	MetadataUsedPct float64 `json:"meta_used_pct"`
}

// ZeroDenominatorError is returned by Derive when a ratio cannot be
// computed because its denominator is zero.
type ZeroDenominatorError struct {
	Quantity string
}

func (e *ZeroDenominatorError) Error() string {
	return fmt.Sprintf("usage report: cannot derive ratios: %s is zero", e.Quantity)
}

func pct(num, den float64) float64 {
	return 100 * num / den
}

// Derive computes Metrics from a Report.
func Derive(r Report) (Metrics, error) {
	for _, den := range []struct {
		name string
		val  uint64
	}{
		{FieldDeviceSize, r.DeviceSize},
		{FieldDeviceAllocated, r.DeviceAllocated},
		{FieldDataSize, r.Data.Size},
		{FieldMetaSize, r.Metadata.Size},
	} {
		if den.val == 0 {
			return Metrics{}, &ZeroDenominatorError{Quantity: den.name}
		}
	}
	freeExpected := int64(r.DeviceSize) - int64(r.DeviceUsed)
	if freeExpected == 0 {
		return Metrics{}, &ZeroDenominatorError{Quantity: "free_expected"}
	}
	freeDelta := freeExpected - int64(r.FreeReported)

	return Metrics{
		Report: r,

		FreeExpected:   freeExpected,
		FreeDeltaBytes: freeDelta,
		FreeDeltaPct:   pct(float64(freeDelta), float64(freeExpected)),

		AllocPct:         pct(float64(r.DeviceAllocated), float64(r.DeviceSize)),
		UsedOverAllocPct: pct(float64(r.DeviceUsed), float64(r.DeviceAllocated)),

		DataUsedPct:     pct(float64(r.Data.Used), float64(r.Data.Size)),
		MetadataUsedPct: pct(float64(r.Metadata.Used), float64(r.Metadata.Size)),
	}, nil
}

// SummaryLines renders the metrics as human-readable sentences, one
// per line.  The same Metrics always render identically.
func (m Metrics) SummaryLines() []string {
	return []string{
		textui.Sprintf("Allocation is %.2f%% of Size", m.AllocPct),
		textui.Sprintf("FS free: %.2f Expected: %.2f",
			textui.IEC(m.Report.FreeReported, "B"),
			textui.IEC(m.FreeExpected, "B")),
		textui.Sprintf("Free delta is: %.2f (%.2f%%)",
			textui.IEC(m.FreeDeltaBytes, "B"),
			m.FreeDeltaPct),
		textui.Sprintf("Overall used is %.2f%% of allocation", m.UsedOverAllocPct),
		textui.Sprintf("Data partition used is %.2f%% of allocation", m.DataUsedPct),
		textui.Sprintf("Metadata partition used is %.2f%% of allocation", m.MetadataUsedPct),
	}
}

// Summary is SummaryLines joined with newlines.
func (m Metrics) Summary() string {
	return strings.Join(m.SummaryLines(), "\n")
}

// Evaluate parses a usage report and derives its Metrics, logging
// every derived percentage to the logger in ctx.
func Evaluate(ctx context.Context, text string) (Metrics, error) {
	report, err := Parse(text)
	if err != nil {
		return Metrics{}, err
	}
	dumper := spew.NewDefaultConfig()
	dumper.DisablePointerAddresses = true
	dlog.Tracef(ctx, "parsed usage report: %s", dumper.Sdump(report))
	if err := report.Check(); err != nil {
		dlog.Warnf(ctx, "inconsistent usage report: %v", err)
	}
	metrics, err := Derive(report)
	if err != nil {
		return Metrics{}, err
	}
	for _, line := range metrics.SummaryLines() {
		dlog.Info(ctx, line)
	}
	return metrics, nil
}
