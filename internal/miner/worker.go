// Copyright 2025 Blink Labs Software
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
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/hasher"
	"github.com/blinklabs-io/hashchain/internal/metrics"
)

var errNoNonce = errors.New("nonce search ended without a result")

// search finds the lowest nonce whose digest meets the difficulty.
//
// Workers claim chunks from a shared cursor and scan each one in ascending
// order, stopping at the first hit in the chunk. A worker exits once it claims
// a chunk that starts at or above the best hit so far. Every chunk below the
// final best has therefore been scanned up to its own first hit, so the result
// is the same nonce a sequential search would return.
func (m *Miner) search(
	ctx context.Context,
	tmpl block.Template,
	difficulty int,
) (uint64, error) {
	cursor := newNonceCursor(m.chunkSize)
	best := newBestNonce()
	g, gctx := errgroup.WithContext(ctx)
	for range m.workerCount {
		g.Go(func() error {
			trial := m.hasher.NewTrial(tmpl)
			for {
				// Check for shutdown
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				start, end := cursor.claim()
				if start >= best.load() {
					return nil
				}
				var hashes uint64
				for nonce := start; nonce < end; nonce++ {
					hashes++
					if hasher.SumMeetsDifficulty(trial.Sum(nonce), difficulty) {
						best.offer(nonce)
						break
					}
				}
				m.hashCounter.Add(hashes)
				metrics.AddHashes(hashes)
			}
		})
	}
	if err := g.Wait(); err != nil {
		// A hit may exist, but lower chunks could still be unscanned
		return 0, err
	}
	nonce, ok := best.get()
	if !ok {
		return 0, errNoNonce
	}
	return nonce, nil
}
