// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"cmp"
	"slices"
	"time"

	"github.com/bureau-foundation/liveprobe/protocol"
)

// Direction distinguishes received from sent traffic.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// TransmissionRate is one sample of the periodic traffic tick: bytes
// moved since the previous sample.
type TransmissionRate struct {
	BytesRead    int64
	BytesWritten int64
	Interval     time.Duration
}

// MessageCount is the cumulative traffic for one address, message type
// and direction.
type MessageCount struct {
	Direction Direction
	Address   protocol.ObjectAddress
	Type      protocol.MessageType
	Messages  int64
	Bytes     int64
}

type countKey struct {
	direction   Direction
	address     protocol.ObjectAddress
	messageType protocol.MessageType
}

// Statistics accumulates per-address, per-type message counts. Bytes
// are frame bytes as they crossed the wire.
type Statistics struct {
	counts map[countKey]*MessageCount
}

func newStatistics() *Statistics {
	return &Statistics{counts: make(map[countKey]*MessageCount)}
}

func (s *Statistics) record(direction Direction, address protocol.ObjectAddress, messageType protocol.MessageType, size int) {
	key := countKey{direction: direction, address: address, messageType: messageType}
	count, ok := s.counts[key]
	if !ok {
		count = &MessageCount{Direction: direction, Address: address, Type: messageType}
		s.counts[key] = count
	}
	count.Messages++
	count.Bytes += int64(size)
}

// Snapshot returns every counter, ordered by direction, address and
// type.
func (s *Statistics) Snapshot() []MessageCount {
	counts := make([]MessageCount, 0, len(s.counts))
	for _, count := range s.counts {
		counts = append(counts, *count)
	}
	slices.SortFunc(counts, func(a, b MessageCount) int {
		return cmp.Or(
			cmp.Compare(a.Direction, b.Direction),
			cmp.Compare(a.Address, b.Address),
			cmp.Compare(a.Type, b.Type),
		)
	})
	return counts
}

// Total sums the counters for one direction.
func (s *Statistics) Total(direction Direction) (messages, bytes int64) {
	for key, count := range s.counts {
		if key.direction == direction {
			messages += count.Messages
			bytes += count.Bytes
		}
	}
	return messages, bytes
}

// Reset clears every counter.
func (s *Statistics) Reset() {
	clear(s.counts)
}
