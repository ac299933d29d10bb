// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockTickerFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(2 * time.Second)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before Advance")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case got := <-ticker.C:
		if !got.Equal(epoch.Add(2 * time.Second)) {
			t.Errorf("tick time = %v, want %v", got, epoch.Add(2*time.Second))
		}
	default:
		t.Fatal("ticker did not fire after Advance")
	}
}

func TestFakeClockTickerRepeats(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	for i := range 3 {
		clock.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("ticker did not fire on advance %d", i+1)
		}
	}
}

func TestFakeClockTickerDropsOverflow(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	// Five intervals with nobody reading: the capacity-1 channel keeps
	// one tick, the rest are dropped.
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("expected one buffered tick")
	}
	select {
	case <-ticker.C:
		t.Fatal("overflow ticks were queued, want dropped")
	default:
	}
}

func TestFakeClockTickerStop(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(3 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClockNewTickerNonPositivePanics(t *testing.T) {
	clock := Fake(epoch)
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	clock.NewTicker(0)
}

func TestFakeClockConcurrentUse(t *testing.T) {
	clock := Fake(epoch)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := clock.NewTicker(time.Second)
			clock.Now()
			clock.Advance(time.Second)
			<-ticker.C
			ticker.Stop()
		}()
	}
	wg.Wait()
}

func TestRealClockTicker(t *testing.T) {
	ticker := Real().NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
	case <-time.After(5 * time.Second):
		t.Fatal("real ticker did not tick")
	}
}
