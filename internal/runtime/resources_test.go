package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResourceTracker_Snapshot(t *testing.T) {
	tracker := newResourceTracker()

	first := tracker.Snapshot()
	assert.Zero(t, first.CPUPercent)
	assert.NotZero(t, first.MemoryBytes)
	assert.Positive(t, first.Goroutines)

	time.Sleep(10 * time.Millisecond)

	second := tracker.Snapshot()
	assert.GreaterOrEqual(t, second.CPUPercent, 0.0)
}

func TestResourceTracker_NilAndEmpty(t *testing.T) {
	var tracker *resourceTracker
	assert.Equal(t, ResourceUsage{}, tracker.Snapshot())

	empty := &resourceTracker{}
	snap := empty.Snapshot()
	assert.NotZero(t, snap.MemoryBytes)
	assert.Len(t, empty.samples, 1)
}
