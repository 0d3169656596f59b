/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ProcessState represents the lifecycle of the stream pipeline.
type ProcessState string

const (
	ProcessStateStopped  ProcessState = "stopped"
	ProcessStateStarting ProcessState = "starting"
	ProcessStateRunning  ProcessState = "running"
)

// stopGrace is how long an encoder gets to exit after an interrupt.
const stopGrace = 5 * time.Second

// Process is a running encoder reading PCM on stdin.
type Process interface {
	Stdin() io.WriteCloser
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	Stop() error
	Pid() int
}

// Launcher starts encoder processes.
type Launcher interface {
	Launch(ctx context.Context, args []string) (Process, error)
}

// ExecLauncher runs a binary through os/exec.
type ExecLauncher struct {
	Bin    string
	Logger zerolog.Logger
}

// Launch starts bin with args and a stdin pipe.
func (l ExecLauncher) Launch(ctx context.Context, args []string) (Process, error) {
	cmd := exec.CommandContext(ctx, l.Bin, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Bin, err)
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	logger := l.Logger.With().Int("pid", cmd.Process.Pid).Logger()
	stderrDone := make(chan struct{})
	go func() {
		forwardStderr(stderr, logger)
		close(stderrDone)
	}()

	// Single goroutine to wait for process completion; stderr must be
	// drained before Wait closes the pipe.
	go func() {
		<-stderrDone
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
		if err != nil {
			logger.Debug().Err(err).Msg("encoder exited")
		} else {
			logger.Info().Msg("encoder stopped")
		}
	}()

	return p, nil
}

func forwardStderr(r io.Reader, logger zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Warn().Str("stream", "stderr").Msg(scanner.Text())
	}
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) Stdin() io.WriteCloser  { return p.stdin }
func (p *execProcess) Done() <-chan struct{}  { return p.done }
func (p *execProcess) Pid() int               { return p.cmd.Process.Pid }

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop closes stdin, interrupts the process and kills it if it lingers.
func (p *execProcess) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-time.After(stopGrace):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.done
	case <-p.done:
	}
	return nil
}
