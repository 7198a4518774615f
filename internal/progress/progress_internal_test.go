package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	tr := newTrackerAt(1000, func() time.Time { return now })

	assert.Equal(t, "unknown", tr.GetETA())
	assert.Zero(t, tr.GetSpeedBPS())

	tr.Add(250)
	now = start.Add(5 * time.Second)

	assert.Equal(t, int64(1000), tr.GetTotalSize())
	assert.Equal(t, int64(250), tr.GetDownloaded())
	assert.InDelta(t, 25.0, tr.GetPercentage(), 0.001)
	assert.Equal(t, int64(50), tr.GetSpeedBPS())
	assert.Equal(t, "15s", tr.GetETA())
	assert.Equal(t, "250/1000 bytes (25.0%) 50 B/s eta 15s", tr.String())

	tr.Add(750)
	assert.Equal(t, "0s", tr.GetETA())
}

func TestTrackerConcurrentAdd(t *testing.T) {
	tr := NewTracker(100 * 16)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Add(16)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1600), tr.GetDownloaded())
	assert.InDelta(t, 100.0, tr.GetPercentage(), 0.001)
}

func TestTrackerZeroTotal(t *testing.T) {
	tr := NewTracker(0)
	assert.Zero(t, tr.GetPercentage())
}
