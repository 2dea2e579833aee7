// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"

	ps "github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v3/process"
)

// Alive reports whether the child's PID is present in the process table.
func (s *Supervisor) Alive() bool {
	pid := s.Status().PID
	if pid == 0 {
		return false
	}
	p, err := ps.FindProcess(pid)
	return err == nil && p != nil
}

// Stats returns resource usage of the running child.
func (s *Supervisor) Stats() (Stats, error) {
	pid := s.Status().PID
	if pid == 0 {
		return Stats{}, fmt.Errorf("stats: %w", ErrNotRunning)
	}

	stats := Stats{PID: pid}
	if p, err := ps.FindProcess(pid); err == nil && p != nil {
		stats.Executable = p.Executable()
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		stats.NumThreads = threads
	}
	return stats, nil
}
