package metrics

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a resource snapshot of the current process.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	NumThreads int32   `json:"num_threads"`
	NumFDs     int32   `json:"num_fds,omitempty"` // Unix only
	Goroutines int     `json:"goroutines"`
}

// UsageSampler keeps one handle on the running process so CPUPercent is
// measured between consecutive samples rather than over the whole lifetime.
type UsageSampler struct {
	mu   sync.Mutex
	proc *process.Process
}

// NewUsageSampler opens the handle and primes the CPU baseline.
func NewUsageSampler() (*UsageSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) // #nosec G115
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle: %w", err)
	}
	_, _ = proc.Percent(0)
	return &UsageSampler{proc: proc}, nil
}

// Sample returns CPU usage since the previous sample, plus current memory,
// thread, descriptor and goroutine counts.
func (s *UsageSampler) Sample() (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpu, err := s.proc.Percent(0)
	if err != nil {
		cpu = 0
	}
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	u := Usage{
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
	}
	if n, err := s.proc.NumThreads(); err == nil {
		u.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := s.proc.NumFDs(); err == nil {
			u.NumFDs = n
		}
	}
	return u, nil
}
