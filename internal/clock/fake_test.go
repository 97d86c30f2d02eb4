// ABOUTME: Tests for FakeClock timer and ticker behavior
// ABOUTME: Verifies Advance ordering, ticker rescheduling and WaitForTimers

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(2 * time.Second)

	c.Advance(time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(2*time.Second), got)
	default:
		t.Fatal("did not fire")
	}
}

func TestFakeClock_AfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("expected immediate fire")
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeClock_TickerReschedules(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	for i := 1; i <= 3; i++ {
		c.Advance(time.Second)
		select {
		case got := <-tk.C:
			assert.Equal(t, epoch.Add(time.Duration(i)*time.Second), got)
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
	assert.Equal(t, 1, c.PendingCount())

	tk.Stop()
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeClock_WaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})

	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "goroutine never woke")
	}
}
