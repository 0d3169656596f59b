package filler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSynth struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSynth) Synthesize(ctx context.Context, seconds int, path string) error {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(path, []byte("ID3 silence"), 0o644)
}

func TestEnsureFillerAssetCaches(t *testing.T) {
	synth := &countingSynth{}
	gen := NewGenerator(t.TempDir(), synth, zerolog.Nop())
	ctx := context.Background()

	path, err := gen.EnsureFillerAsset(ctx, 8)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if filepath.Base(path) != "silence_8s.mp3" {
		t.Fatalf("unexpected path: %s", path)
	}

	again, err := gen.EnsureFillerAsset(ctx, 8)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again != path {
		t.Fatalf("path changed: %s != %s", again, path)
	}
	if synth.calls.Load() != 1 {
		t.Fatalf("expected one synthesis, got %d", synth.calls.Load())
	}
}

func TestEnsureFillerAssetSharesConcurrentSynthesis(t *testing.T) {
	synth := &countingSynth{delay: 50 * time.Millisecond}
	gen := NewGenerator(t.TempDir(), synth, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gen.EnsureFillerAsset(context.Background(), 8); err != nil {
				t.Errorf("ensure: %v", err)
			}
		}()
	}
	wg.Wait()

	if synth.calls.Load() != 1 {
		t.Fatalf("expected one synthesis, got %d", synth.calls.Load())
	}
}

func TestEnsureFillerAssetFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	synth := &countingSynth{err: errors.New("ffmpeg missing")}
	gen := NewGenerator(dir, synth, zerolog.Nop())

	if _, err := gen.EnsureFillerAsset(context.Background(), 8); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "filler"))
	if len(entries) != 0 {
		t.Fatalf("expected no leftovers, found %d entries", len(entries))
	}

	// A later success is not blocked by the earlier failure.
	synth.err = nil
	if _, err := gen.EnsureFillerAsset(context.Background(), 8); err != nil {
		t.Fatalf("ensure after failure: %v", err)
	}
}

func TestEnsureFillerAssetRejectsZeroDuration(t *testing.T) {
	gen := NewGenerator(t.TempDir(), &countingSynth{}, zerolog.Nop())
	if _, err := gen.EnsureFillerAsset(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestArgs(t *testing.T) {
	args := strings.Join(Args(8, "out.mp3"), " ")
	if !strings.Contains(args, "-f lavfi -i anullsrc=r=44100:cl=mono -t 8 -q:a 9 -acodec libmp3lame") {
		t.Fatalf("unexpected args: %s", args)
	}
}
