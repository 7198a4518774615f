package progress

import (
	"fmt"
	"sync/atomic"
	"time"
)

type Progress interface {
	GetTotalSize() int64
	GetDownloaded() int64
	GetPercentage() float64
	GetSpeedBPS() int64
	GetETA() string
}

// Tracker counts verified bytes of one download. Add may be called from
// any goroutine.
type Tracker struct {
	total      int64
	downloaded atomic.Int64
	start      time.Time
	now        func() time.Time
}

var _ Progress = (*Tracker)(nil)

// NewTracker starts tracking a download of total bytes.
func NewTracker(total int64) *Tracker {
	return newTrackerAt(total, time.Now)
}

func newTrackerAt(total int64, now func() time.Time) *Tracker {
	return &Tracker{total: total, start: now(), now: now}
}

// Add records n more verified bytes.
func (t *Tracker) Add(n int64) {
	t.downloaded.Add(n)
}

func (t *Tracker) GetTotalSize() int64 {
	return t.total
}

func (t *Tracker) GetDownloaded() int64 {
	return t.downloaded.Load()
}

func (t *Tracker) GetPercentage() float64 {
	if t.total <= 0 {
		return 0
	}
	return float64(t.GetDownloaded()) * 100 / float64(t.total)
}

// GetSpeedBPS returns the average rate since the tracker was created.
func (t *Tracker) GetSpeedBPS() int64 {
	elapsed := t.now().Sub(t.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(t.GetDownloaded()) / elapsed)
}

// GetETA returns the remaining time at the average rate, or "unknown"
// before any data arrived.
func (t *Tracker) GetETA() string {
	remaining := t.total - t.GetDownloaded()
	if remaining <= 0 {
		return "0s"
	}

	speed := t.GetSpeedBPS()
	if speed <= 0 {
		return "unknown"
	}

	return (time.Duration(remaining/speed) * time.Second).String()
}

// String formats a one-line progress report.
func (t *Tracker) String() string {
	return fmt.Sprintf("%d/%d bytes (%.1f%%) %d B/s eta %s",
		t.GetDownloaded(), t.total, t.GetPercentage(), t.GetSpeedBPS(), t.GetETA())
}
