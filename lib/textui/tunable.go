// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui

// Tunable annotates a value as a default that an operator is expected
// to override (by flag or policy file) on some filesystems.
func Tunable[T any](x T) T {
	return x
}
