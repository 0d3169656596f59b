/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mediaengine

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"
)

// levelStale is how long a reading stays valid without new PCM.
const levelStale = 2 * time.Second

// LevelMeter tracks the RMS level of the PCM written to the encoder.
type LevelMeter struct {
	mu      sync.Mutex
	level   float64
	updated time.Time
	carry   []byte
	now     func() time.Time
}

// NewLevelMeter creates a meter reading 0.
func NewLevelMeter() *LevelMeter {
	return &LevelMeter{now: time.Now}
}

// Wrap returns a writer that measures PCM on its way to w.
func (m *LevelMeter) Wrap(w io.Writer) io.Writer {
	return &meteredWriter{meter: m, w: w}
}

// Level returns the last RMS reading in [0, 1], or 0 once stale.
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updated.IsZero() || m.now().Sub(m.updated) > levelStale {
		return 0
	}
	return m.level
}

func (m *LevelMeter) observe(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.carry) > 0 {
		p = append(m.carry, p...)
		m.carry = nil
	}
	if len(p)%2 == 1 {
		m.carry = []byte{p[len(p)-1]}
		p = p[:len(p)-1]
	}
	samples := len(p) / 2
	if samples == 0 {
		return
	}

	var sum float64
	for i := 0; i < len(p); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(p[i:]))) / math.MaxInt16
		sum += v * v
	}
	m.level = math.Min(1, math.Sqrt(sum/float64(samples)))
	m.updated = m.now()
}

type meteredWriter struct {
	meter *LevelMeter
	w     io.Writer
}

func (mw *meteredWriter) Write(p []byte) (int, error) {
	n, err := mw.w.Write(p)
	if n > 0 {
		mw.meter.observe(p[:n])
	}
	return n, err
}
