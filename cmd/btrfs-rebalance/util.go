// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"
)

// readJSONFile decodes filename on top of ret, so that members absent
// from the file keep the values they had in ret.
func readJSONFile[T any](ctx context.Context, filename string, ret T) (T, error) {
	fh, err := os.Open(filename)
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() {
		_ = fh.Close()
	}()
	dlog.Debugf(ctx, "reading JSON from %q", filename)
	buf := bufio.NewReader(fh)
	if err := lowmemjson.DecodeThenEOF(buf, &ret); err != nil {
		var zero T
		return zero, err
	}
	return ret, nil
}

func writeJSONFile(w io.Writer, obj any, cfg lowmemjson.ReEncoder) (err error) {
	buffer := bufio.NewWriter(w)
	defer func() {
		if _err := buffer.Flush(); err == nil && _err != nil {
			err = _err
		}
	}()
	cfg.Out = buffer
	return lowmemjson.Encode(&cfg, obj)
}

func createJSONFile(filename string, obj any) (err error) {
	fh, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if _err := fh.Close(); err == nil && _err != nil {
			err = _err
		}
	}()
	return writeJSONFile(fh, obj, lowmemjson.ReEncoder{
		Indent:                "\t",
		ForceTrailingNewlines: true,
	})
}
