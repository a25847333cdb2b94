// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsusage parses the output of `btrfs filesystem usage -b`
// and derives the allocation ratios that drive rebalance decisions.
package btrfsusage

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ChunkGroup is the size/used pair that `btrfs filesystem usage`
// reports for one block-group type.
type ChunkGroup struct {
	Size uint64 `json:"size"`
	Used uint64 `json:"used"`
}

// Report is the subset of a usage report that rebalance decisions
// are made from.  All quantities are bytes.
type Report struct {
	DeviceSize      uint64     `json:"device_size"`
	DeviceAllocated uint64     `json:"device_allocated"`
	DeviceUsed      uint64     `json:"device_used"`
	Data            ChunkGroup `json:"data"`
	Metadata        ChunkGroup `json:"metadata"`
	System          ChunkGroup `json:"system"`
	FreeReported    uint64     `json:"free_reported"`
}

// Field names, as used in errors and log records.
const (
	FieldDeviceSize      = "device_size"
	FieldDeviceAllocated = "device_allocated"
	FieldDeviceUsed      = "device_used"
	FieldDataSize        = "data_size"
	FieldMetaSize        = "meta_size"
	FieldSystemSize      = "system_size"
	FieldFreeReported    = "free_reported"
)

// MissingMetricError is returned by Parse when no line of the report
// supplied a required field.
type MissingMetricError struct {
	Field string
}

func (e *MissingMetricError) Error() string {
	return fmt.Sprintf("usage report: missing metric %q", e.Field)
}

// MalformedMetricError is returned by Parse when the line for a field
// matched, but the token holding the value is not a number.
type MalformedMetricError struct {
	Field string
	Token string
}

func (e *MalformedMetricError) Error() string {
	return fmt.Sprintf("usage report: metric %q: malformed value %q", e.Field, e.Token)
}

type lineRule struct {
	field    string
	required bool
	match    *regexp.Regexp
	extract  func(tokens []string, ret *Report) error
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

func lastToken(field string, dst func(*Report) *uint64, strip bool) func([]string, *Report) error {
	return func(tokens []string, ret *Report) error {
		val, err := parseToken(field, tokens[len(tokens)-1], strip)
		if err != nil {
			return err
		}
		*dst(ret) = val
		return nil
	}
}

func groupTokens(field string, dst func(*Report) *ChunkGroup) func([]string, *Report) error {
	return func(tokens []string, ret *Report) error {
		if len(tokens) < 3 {
			return &MalformedMetricError{Field: field, Token: strings.Join(tokens, " ")}
		}
		size, err := parseToken(field, tokens[1], true)
		if err != nil {
			return err
		}
		used, err := parseToken(field, tokens[2], true)
		if err != nil {
			return err
		}
		*dst(ret) = ChunkGroup{Size: size, Used: used}
		return nil
	}
}

func parseToken(field, token string, strip bool) (uint64, error) {
	str := token
	if strip {
		str = nonDigits.ReplaceAllString(token, "")
	}
	val, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, &MalformedMetricError{Field: field, Token: token}
	}
	return val, nil
}

// lineRules are tried against every line, in order.  A rule stops
// being considered once it has matched a line.
var lineRules = []lineRule{
	{
		field:    FieldDeviceSize,
		required: true,
		match:    regexp.MustCompile(`^\s*Device size:`),
		extract:  lastToken(FieldDeviceSize, func(r *Report) *uint64 { return &r.DeviceSize }, false),
	},
	{
		field:    FieldDeviceAllocated,
		required: true,
		match:    regexp.MustCompile(`^\s*Device allocated:`),
		extract:  lastToken(FieldDeviceAllocated, func(r *Report) *uint64 { return &r.DeviceAllocated }, false),
	},
	{
		field:    FieldDeviceUsed,
		required: true,
		match:    regexp.MustCompile(`^\s*Used:`),
		extract:  lastToken(FieldDeviceUsed, func(r *Report) *uint64 { return &r.DeviceUsed }, false),
	},
	{
		field:    FieldDataSize,
		required: true,
		match:    regexp.MustCompile(`^Data,.*Size:`),
		extract:  groupTokens(FieldDataSize, func(r *Report) *ChunkGroup { return &r.Data }),
	},
	{
		field:    FieldMetaSize,
		required: true,
		match:    regexp.MustCompile(`^Metadata,.*Size:`),
		extract:  groupTokens(FieldMetaSize, func(r *Report) *ChunkGroup { return &r.Metadata }),
	},
	{
		field:    FieldSystemSize,
		required: false,
		match:    regexp.MustCompile(`^System,.*Size:`),
		extract:  groupTokens(FieldSystemSize, func(r *Report) *ChunkGroup { return &r.System }),
	},
	{
		field:    FieldFreeReported,
		required: true,
		match:    regexp.MustCompile(`^\s*Free `),
		extract:  lastToken(FieldFreeReported, func(r *Report) *uint64 { return &r.FreeReported }, true),
	},
}

// Parse extracts a Report from the text output of `btrfs filesystem
// usage -b`.  For each field, the first matching line wins; later
// lines that would match the same field are ignored.
//
// If a required field is never matched, Parse returns a
// *MissingMetricError for the first such field (in the order of the
// Report struct) rather than a partially-filled Report.
//
// There is no limit on line length.
func Parse(text string) (Report, error) {
	var ret Report
	seen := make([]bool, len(lineRules))

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(nil, len(text)+1)
	for scanner.Scan() {
		line := scanner.Text()
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		for i, rule := range lineRules {
			if seen[i] || !rule.match.MatchString(line) {
				continue
			}
			if err := rule.extract(tokens, &ret); err != nil {
				return Report{}, err
			}
			seen[i] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Report{}, fmt.Errorf("usage report: %w", err)
	}

	for i, rule := range lineRules {
		if rule.required && !seen[i] {
			return Report{}, &MissingMetricError{Field: rule.field}
		}
	}
	return ret, nil
}

// Check reports whether the report is internally consistent; a
// filesystem should never have more bytes used than allocated, or more
// allocated than it has in total.  An inconsistent report is still
// usable, but its ratios should be taken with a grain of salt.
func (r Report) Check() error {
	if r.DeviceUsed > r.DeviceAllocated {
		return fmt.Errorf("used (%d) exceeds allocated (%d)", r.DeviceUsed, r.DeviceAllocated)
	}
	if r.DeviceAllocated > r.DeviceSize {
		return fmt.Errorf("allocated (%d) exceeds size (%d)", r.DeviceAllocated, r.DeviceSize)
	}
	return nil
}
