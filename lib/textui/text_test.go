// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/btrfs-rebalance/lib/textui"
)

func TestFprintf(t *testing.T) {
	t.Parallel()
	var out strings.Builder
	textui.Fprintf(&out, "%d", 12345)
	assert.Equal(t, "12,345", out.String())
}

func TestHumanized(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "12,345", fmt.Sprint(textui.Humanized(12345)))
	assert.Equal(t, "12,345  ", fmt.Sprintf("%-8d", textui.Humanized(12345)))
	assert.Equal(t, "1,073,741,824", fmt.Sprintf("%d", textui.Humanized(uint64(1<<30))))
}

func TestIEC(t *testing.T) {
	t.Parallel()
	assert.True(t, strings.HasSuffix(fmt.Sprint(textui.IEC(512, "B")), "B"))
	assert.True(t, strings.HasSuffix(fmt.Sprint(textui.IEC(3<<20, "B")), "MiB"))
	assert.True(t, strings.HasSuffix(fmt.Sprint(textui.IEC(5<<30, "B")), "GiB"))
	assert.True(t, strings.HasSuffix(fmt.Sprint(textui.IEC(int64(-5)<<30, "B")), "GiB"))
	assert.Equal(t,
		textui.Sprintf("%.2f", textui.IEC(uint64(1234567890), "B")),
		textui.Sprintf("%.2f", textui.IEC(uint64(1234567890), "B")))
}
