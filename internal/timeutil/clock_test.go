package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c RealClock
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since should not be negative")
	}

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
	tk.Reset(2 * time.Millisecond)
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(5 * time.Second)
	if got := c.Since(start); got != 5*time.Second {
		t.Errorf("Since = %v, want 5s", got)
	}
	if !c.Now().Equal(start.Add(5 * time.Second)) {
		t.Errorf("Now = %v", c.Now())
	}
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(50 * time.Millisecond)

	c.Advance(20 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Millisecond)
	select {
	case now := <-tk.C():
		if !now.Equal(time.Unix(0, 0).Add(50 * time.Millisecond)) {
			t.Errorf("tick time = %v", now)
		}
	default:
		t.Fatal("ticker did not fire at its interval")
	}
}

func TestMockTickerDropsUnreadTicks(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		c.Advance(10 * time.Millisecond)
	}
	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("expected buffered ticks to be dropped")
	default:
	}
}

func TestMockTickerStopAndReset(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(10 * time.Millisecond)
	if c.ActiveTickers() != 1 {
		t.Fatalf("ActiveTickers = %d, want 1", c.ActiveTickers())
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
	if c.ActiveTickers() != 0 {
		t.Errorf("ActiveTickers = %d, want 0", c.ActiveTickers())
	}

	tk.Reset(100 * time.Millisecond)
	mt := tk.(*MockTicker)
	if mt.Stopped() || mt.Interval() != 100*time.Millisecond {
		t.Errorf("Reset did not restart: stopped=%v interval=%v", mt.Stopped(), mt.Interval())
	}
	c.Advance(50 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("reset ticker fired before its new interval")
	default:
	}
	c.Advance(50 * time.Millisecond)
	select {
	case <-tk.C():
	default:
		t.Fatal("reset ticker did not fire")
	}
}
