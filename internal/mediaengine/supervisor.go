/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/navo_radio/internal/telemetry"
)

const (
	// Maximum generations spawned within restartWindow
	maxRestartsInWindow = 5
	restartWindow       = time.Minute
)

// generation is one feeder plus its encoder process.
type generation struct {
	id     string
	proc   Process
	done   chan struct{} // closed when the feeder has exited
	cancel context.CancelFunc
}

func (g *generation) alive() bool {
	select {
	case <-g.done:
		return false
	default:
		return true
	}
}

// spawnFunc starts a new generation.
type spawnFunc func() (*generation, error)

// Supervisor owns the live generation and rate-limits respawns.
type Supervisor struct {
	logger zerolog.Logger
	spawn  spawnFunc
	now    func() time.Time

	maxRestarts int
	window      time.Duration

	mu       sync.Mutex
	state    ProcessState
	current  *generation
	restarts []time.Time
	total    int

	onState func(ProcessState)
}

// newSupervisor creates a supervisor around spawn.
func newSupervisor(spawn spawnFunc, onState func(ProcessState), logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		logger:      logger.With().Str("component", "supervisor").Logger(),
		spawn:       spawn,
		now:         time.Now,
		maxRestarts: maxRestartsInWindow,
		window:      restartWindow,
		state:       ProcessStateStopped,
		onState:     onState,
	}
}

// EnsureRunning returns once a generation is alive, spawning one if needed.
// Concurrent callers share one spawn.
func (s *Supervisor) EnsureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.alive() {
		return nil
	}

	now := s.now()
	cutoff := now.Add(-s.window)
	recent := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	s.restarts = recent
	if len(s.restarts) >= s.maxRestarts {
		s.logger.Warn().
			Int("restarts", len(s.restarts)).
			Dur("window", s.window).
			Msg("restart throttled")
		return ErrRestartThrottled
	}

	s.setState(ProcessStateStarting)
	gen, err := s.spawn()
	if err != nil {
		s.setState(ProcessStateStopped)
		return err
	}

	s.restarts = append(s.restarts, now)
	s.total++
	s.current = gen
	s.setState(ProcessStateRunning)
	telemetry.PipelineRestarts.Inc()

	s.logger.Info().Str("generation", gen.id).Int("pid", gen.proc.Pid()).Msg("pipeline generation started")

	go s.watch(gen)
	return nil
}

func (s *Supervisor) watch(gen *generation) {
	<-gen.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == gen {
		s.current = nil
		s.setState(ProcessStateStopped)
	}
	s.logger.Info().Str("generation", gen.id).Msg("pipeline generation ended")
}

// Alive reports whether a generation is running.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.alive()
}

// State returns the current lifecycle state.
func (s *Supervisor) State() ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generations returns how many generations have been spawned.
func (s *Supervisor) Generations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Stop tears down the live generation and waits for its feeder.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	gen := s.current
	s.mu.Unlock()

	if gen == nil {
		return
	}
	gen.cancel()
	<-gen.done
}

// setState must be called with mu held.
func (s *Supervisor) setState(state ProcessState) {
	if s.state == state {
		return
	}
	s.state = state
	telemetry.SetPipelineState(string(state))
	if s.onState != nil {
		s.onState(state)
	}
}
