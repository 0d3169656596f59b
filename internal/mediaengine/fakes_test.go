package mediaengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeProcess stands in for an encoder: it records everything written to
// stdin and exits when stdin closes, Stop is called or crash is called.
type fakeProcess struct {
	pid   int
	stdin *io.PipeWriter
	r     *io.PipeReader
	done  chan struct{}
	once  sync.Once

	mu       sync.Mutex
	received bytes.Buffer
	err      error
}

func newFakeProcess(pid int) *fakeProcess {
	r, w := io.Pipe()
	p := &fakeProcess{pid: pid, stdin: w, r: r, done: make(chan struct{})}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				p.mu.Lock()
				p.received.Write(buf[:n])
				p.mu.Unlock()
			}
			if err != nil {
				p.exit(nil)
				return
			}
		}
	}()
	return p
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) Pid() int              { return p.pid }

func (p *fakeProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProcess) Stop() error {
	_ = p.stdin.Close()
	p.exit(nil)
	return nil
}

// crash severs the pipe and marks the process as exited.
func (p *fakeProcess) crash() {
	_ = p.r.CloseWithError(errors.New("broken pipe"))
	p.exit(errors.New("exit status 1"))
}

func (p *fakeProcess) Received() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received.String()
}

type fakeLauncher struct {
	mu        sync.Mutex
	procs     []*fakeProcess
	failFirst int
	calls     int
}

func (l *fakeLauncher) Launch(ctx context.Context, args []string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.failFirst {
		return nil, fmt.Errorf("launch %d refused", l.calls)
	}
	p := newFakeProcess(1000 + l.calls)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) Last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

// fakeDecoder writes "<asset>|" for every asset. Assets starting with
// "missing" are unavailable; if gate is set every decode waits on it.
type fakeDecoder struct {
	gate chan struct{}
}

func (d *fakeDecoder) Decode(ctx context.Context, asset string, w io.Writer) error {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if strings.HasPrefix(asset, "missing") {
		return fmt.Errorf("%w: %s", ErrAssetUnavailable, asset)
	}
	if _, err := io.WriteString(w, asset+"|"); err != nil {
		return fmt.Errorf("%w: %v", ErrPipelineBroken, err)
	}
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
