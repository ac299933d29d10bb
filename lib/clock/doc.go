// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so cooldowns
// and periodic work can be tested deterministically.
//
// Production code accepts a Clock parameter instead of calling
// time.Now or time.NewTicker directly. Real() provides the standard
// library behavior; Fake() provides a clock that advances only when
// Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := NewManager(Config{Clock: c})
//	c.Advance(5 * time.Second) // fires the recovery ticker
package clock
