// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the two time operations liveprobe needs: the
// current time and periodic tickers.
//
// The endpoint's transmission-rate sampler runs off a Ticker. In
// production it gets [Real]; tests inject [Fake] and call
// [FakeClock.Advance] to fire ticks deterministically instead of
// sleeping:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	endpoint := endpoint.New(endpoint.Options{Clock: fake})
//	go endpoint.Run(ctx)
//	fake.WaitForTickers(1)
//	fake.Advance(time.Second)
package clock
