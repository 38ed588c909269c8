package chat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTyping_ExpiresWithoutRefresh(t *testing.T) {
	tc := NewTypingCoordinator(60 * time.Millisecond)
	defer tc.Stop()

	tc.Signal("s1", "Dr. Rao")
	actor, ok := tc.Current("s1")
	require.True(t, ok)
	assert.Equal(t, "Dr. Rao", actor)

	require.Eventually(t, func() bool {
		_, ok := tc.Current("s1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestTyping_RefreshRearmsTimer(t *testing.T) {
	tc := NewTypingCoordinator(time.Minute)
	defer tc.Stop()

	now := time.Now()
	tc.now = func() time.Time { return now }

	tc.Signal("s1", "Dr. Rao")
	now = now.Add(40 * time.Second)
	tc.Signal("s1", "Dr. Rao")
	now = now.Add(40 * time.Second)

	_, ok := tc.Current("s1")
	assert.True(t, ok, "refresh must extend the window")

	now = now.Add(30 * time.Second)
	_, ok = tc.Current("s1")
	assert.False(t, ok)

	tc.mu.Lock()
	assert.Len(t, tc.entries, 1)
	tc.mu.Unlock()
}

func TestTyping_StaleTimerDoesNotClearFreshSignal(t *testing.T) {
	tc := NewTypingCoordinator(time.Minute)
	defer tc.Stop()

	tc.Signal("s1", "Priya")
	tc.mu.Lock()
	staleGen := tc.entries["s1"].gen
	tc.mu.Unlock()

	tc.Signal("s1", "Priya")
	tc.expire("s1", staleGen)

	_, ok := tc.Current("s1")
	assert.True(t, ok)
}

func TestTyping_OnChangeClearAndStop(t *testing.T) {
	tc := NewTypingCoordinator(30 * time.Millisecond)
	var changes int32
	tc.OnChange(func(string) { atomic.AddInt32(&changes, 1) })

	tc.Signal("s1", "Dr. Rao")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&changes) == 2 }, time.Second, 5*time.Millisecond)

	tc.Signal("s2", "Dr. Rao")
	tc.Clear("s2")
	_, ok := tc.Current("s2")
	assert.False(t, ok)

	tc.Stop()
	tc.Signal("s3", "Dr. Rao")
	_, ok = tc.Current("s3")
	assert.False(t, ok)
}
