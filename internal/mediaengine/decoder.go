/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Decoder normalises one asset into canonical PCM written to w.
//
// Errors wrapping ErrAssetUnavailable mean the asset was skipped; errors
// wrapping ErrPipelineBroken mean w failed and the generation is over.
type Decoder interface {
	Decode(ctx context.Context, asset string, w io.Writer) error
}

// FFmpegDecoder shells out to ffmpeg for each asset.
type FFmpegDecoder struct {
	Bin string
}

// Decode implements Decoder. There is no timeout beyond ctx: a hung
// ffmpeg stalls the feeder until shutdown.
func (d FFmpegDecoder) Decode(ctx context.Context, asset string, w io.Writer) error {
	if err := checkAsset(asset); err != nil {
		return err
	}

	bin := d.Bin
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, DecoderArgs(asset)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("decoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start decoder: %v", ErrAssetUnavailable, err)
	}

	sink := &trackingWriter{w: w}
	_, copyErr := io.Copy(sink, stdout)
	if sink.err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("%w: %v", ErrPipelineBroken, sink.err)
	}

	waitErr := cmd.Wait()
	if copyErr != nil || waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		return fmt.Errorf("%w: decode %s: %v %s", ErrAssetUnavailable, asset, errors.Join(copyErr, waitErr), msg)
	}
	return nil
}

func checkAsset(asset string) error {
	info, err := os.Stat(asset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty or a directory", ErrAssetUnavailable, asset)
	}
	return nil
}

// trackingWriter remembers the first write error so it can be told apart
// from a read error on the decoder side.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}
