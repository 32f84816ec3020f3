package util

import (
	"sync"
	"time"
)

// Progress tracks how many items of a batch have finished and estimates the
// remaining time from the average item duration so far.
type Progress struct {
	mu        sync.Mutex
	total     int
	done      int
	startedAt time.Time
}

func NewProgress(total int) *Progress {
	return &Progress{total: total, startedAt: time.Now()}
}

// Step marks one item as finished and returns the new completed count.
func (p *Progress) Step() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	return p.done
}

// Percentage returns completion in [0, 100].
func (p *Progress) Percentage() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return percentage(p.done, p.total)
}

// Remaining estimates the time left. It returns zero before the first item
// finished or once all items are done.
func (p *Progress) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return remaining(p.done, p.total, time.Since(p.startedAt))
}

func percentage(done, total int) int32 {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return int32(done * 100 / total)
}

func remaining(done, total int, elapsed time.Duration) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	perItem := elapsed / time.Duration(done)
	return perItem * time.Duration(total-done)
}
