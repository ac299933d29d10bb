// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; tickers registered with NewTicker
// fire as the clock advances past their deadlines.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

var _ Clock = (*FakeClock)(nil)

// FakeClock is a deterministic Clock for testing. Time advances only
// when Advance is called.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

// fakeTicker is a pending periodic waiter. After firing it is
// rescheduled at deadline + interval.
type fakeTicker struct {
	deadline time.Time
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker returns a Ticker that delivers ticks on its C channel at
// the specified interval. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := &fakeTicker{
		deadline: c.current.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ticker)

	return &Ticker{
		C: ticker.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires every ticker whose
// deadline falls within the new time, in deadline order. Sends are
// non-blocking, matching time.Ticker's drop-if-full behavior; an
// advance spanning multiple intervals fires once per interval, with
// overflow ticks dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		expired := c.collectExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, ticker := range expired {
			select {
			case ticker.channel <- target:
			default:
			}
		}
	}
}

// collectExpired reschedules and returns the tickers due at or before
// target, dropping stopped ones from the pending list.
func (c *FakeClock) collectExpired(target time.Time) []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*fakeTicker
	var remaining []*fakeTicker
	for _, ticker := range c.tickers {
		if ticker.stopped {
			continue
		}
		if !ticker.deadline.After(target) {
			expired = append(expired, ticker)
			ticker.deadline = ticker.deadline.Add(ticker.interval)
		}
		remaining = append(remaining, ticker)
	}
	c.tickers = remaining
	return expired
}
