// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability.
//
// Production code accepts a [Clock] instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. [Real] provides
// standard library behavior; [Fake] provides a deterministic clock
// that advances only when told to.
//
// Wiring pattern:
//
//	type Pruner struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// Production constructs with clock.Real(). A test constructs with a
// fake, waits for the loop under test to register its ticker, then
// advances:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	p := &Pruner{clock: c}
//	go p.Run(ctx)
//	c.WaitForTimers(1)
//	c.Advance(time.Minute)
//
// [FakeClock.WaitForTimers] is the synchronization primitive that
// removes the registration/advance race, so tests never fall back to
// real sleeps.
package clock
