package queueworker

import "sync"

// ProcessStatus records one worker process and its consumer goroutines.
// Threads holds 1-based consumer indexes; 0 means the loop ran inline.
type ProcessStatus struct {
	PID     int
	Threads []int
}

// Status is the worker's process roster. It is appended to during start-up
// and stable afterwards.
type Status struct {
	Processes []ProcessStatus
}

type statusBook struct {
	mu     sync.Mutex
	status Status
}

func (b *statusBook) addProcess(pid int, threads int) {
	ids := make([]int, 0, threads)
	for i := 1; i <= threads; i++ {
		ids = append(ids, i)
	}
	b.mu.Lock()
	b.status.Processes = append(b.status.Processes, ProcessStatus{PID: pid, Threads: ids})
	b.mu.Unlock()
}

func (b *statusBook) snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := Status{Processes: make([]ProcessStatus, len(b.status.Processes))}
	for i, p := range b.status.Processes {
		out.Processes[i] = ProcessStatus{
			PID:     p.PID,
			Threads: append([]int(nil), p.Threads...),
		}
	}
	return out
}
