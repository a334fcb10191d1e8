// Copyright 2024 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package miner

import (
	"math"
	"sync/atomic"
)

// nonceCursor hands out consecutive, non-overlapping nonce ranges to workers
type nonceCursor struct {
	next      atomic.Uint64
	chunkSize uint64
}

func newNonceCursor(chunkSize uint64) *nonceCursor {
	return &nonceCursor{chunkSize: max(1, chunkSize)}
}

// claim returns the half-open range [start, end) for the caller to scan
func (c *nonceCursor) claim() (uint64, uint64) {
	end := c.next.Add(c.chunkSize)
	start := end - c.chunkSize
	if end < start {
		// Counter rollover
		end = math.MaxUint64
	}
	return start, end
}

// bestNonce tracks the lowest nonce found so far across all workers
type bestNonce struct {
	value atomic.Uint64
}

func newBestNonce() *bestNonce {
	b := &bestNonce{}
	b.value.Store(math.MaxUint64)
	return b
}

func (b *bestNonce) load() uint64 {
	return b.value.Load()
}

// offer records nonce if it is lower than the current best
func (b *bestNonce) offer(nonce uint64) {
	for {
		current := b.value.Load()
		if nonce >= current {
			return
		}
		if b.value.CompareAndSwap(current, nonce) {
			return
		}
	}
}

func (b *bestNonce) get() (uint64, bool) {
	val := b.value.Load()
	return val, val != math.MaxUint64
}
