package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 15, 17, 45, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	before := time.Now()
	now := RealClock{}.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
	assert.InDelta(t, time.Now().UnixMilli(), RealClock{}.NowUnixMilli(), 1000)
}

func TestMockClock(t *testing.T) {
	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch.UnixMilli(), c.NowUnixMilli())

	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())

	c.Advance(-30 * time.Second)
	assert.Equal(t, epoch.Add(time.Minute), c.Now())

	c.Set(epoch)
	assert.Equal(t, epoch, c.Now())
}

func TestMockClock_ConcurrentAccess(t *testing.T) {
	c := NewMockClock(epoch)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(50*time.Second), c.Now())
}

func TestShiftedClock_FollowsBase(t *testing.T) {
	base := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewShiftedClock(epoch, base)

	assert.Equal(t, epoch, c.Now())

	base.Advance(3 * time.Minute)
	assert.Equal(t, epoch.Add(3*time.Minute), c.Now())
	assert.Equal(t, epoch.Add(3*time.Minute).UnixMilli(), c.NowUnixMilli())
}

func TestShiftedClock_DefaultsToRealClock(t *testing.T) {
	c := NewShiftedClock(epoch, nil)

	assert.WithinDuration(t, epoch, c.Now(), time.Second)
}

func TestFromEnvironment(t *testing.T) {
	t.Run("unset uses the system clock", func(t *testing.T) {
		t.Setenv(NowEnvVar, "")
		c, err := FromEnvironment(NowEnvVar)
		require.NoError(t, err)
		assert.IsType(t, RealClock{}, c)
	})

	t.Run("RFC3339 pins the start", func(t *testing.T) {
		t.Setenv(NowEnvVar, " 2024-03-15T17:45:00Z\n")
		c, err := FromEnvironment(NowEnvVar)
		require.NoError(t, err)
		assert.WithinDuration(t, epoch, c.Now(), time.Second)
	})

	t.Run("malformed value is an error", func(t *testing.T) {
		t.Setenv(NowEnvVar, "2024-03-15 17:45")
		c, err := FromEnvironment(NowEnvVar)
		assert.Nil(t, c)
		assert.ErrorContains(t, err, NowEnvVar)
	})
}
