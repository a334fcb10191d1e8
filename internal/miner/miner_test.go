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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/hasher"
)

var genesisTemplate = block.Template{
	Index:     0,
	Timestamp: 1700000000.0,
	Payload:   block.String("GENESIS"),
	PrevHash:  "",
}

func TestMineKnownNonces(t *testing.T) {
	newHasher := func(algorithm hasher.Algorithm, opts ...hasher.HasherOptionFunc) *hasher.Hasher {
		h, err := hasher.New(algorithm, opts...)
		require.NoError(t, err)
		return h
	}
	sha256 := hasher.Default()
	blake2b := newHasher(hasher.AlgorithmBlake2b256)
	legacySha256 := newHasher(hasher.AlgorithmSHA256, hasher.WithLegacyPayloads())
	legacyBlake2b := newHasher(hasher.AlgorithmBlake2b256, hasher.WithLegacyPayloads())
	tests := []struct {
		difficulty int
		hasher     *hasher.Hasher
		nonce      uint64
		hash       string
	}{
		{
			difficulty: 0,
			hasher:     sha256,
			nonce:      0,
			hash:       "d98442b0c22d44140d2cf84fa37916f2e28b06c335d285eee8ea5ea73231ca3d",
		},
		{
			difficulty: 1,
			hasher:     sha256,
			nonce:      30,
			hash:       "06154b6d6b5dc9f66ef6c3fb9c7178e3a1c2fb34cce14eb10b30ee269cd484a5",
		},
		{
			difficulty: 2,
			hasher:     sha256,
			nonce:      118,
			hash:       "00733af488fa32ce96e05ee213bdd5abe3cf9d16d08d8b5bf9855b800aa15dd9",
		},
		{
			difficulty: 3,
			hasher:     sha256,
			nonce:      222,
			hash:       "0009767dbfad8f9bd3a3304ea09885b5ca0189dbb7edaaf048f4d94248cdf95a",
		},
		{
			difficulty: 3,
			hasher:     blake2b,
			nonce:      5933,
			hash:       "00031b28e6fc82c0d7b4a1bca8c6d835c6cc69f19234917bb2ac481fee97e59a",
		},
		{
			difficulty: 1,
			hasher:     legacySha256,
			nonce:      0,
			hash:       "01871fa1a2188f6537e8770256e1fbc9eb102e1dab4ecb5b7bde7c46abdcf1eb",
		},
		{
			difficulty: 2,
			hasher:     legacySha256,
			nonce:      395,
			hash:       "002911a8939ef64652235969f0315d1b5d3302a73bc13afc15ebe81179d6d6e0",
		},
		{
			difficulty: 3,
			hasher:     legacySha256,
			nonce:      798,
			hash:       "0008c2b9551d61c935d5768edcaf6d35023c34547afb90272f7809b6234c6ca4",
		},
		{
			difficulty: 4,
			hasher:     legacySha256,
			nonce:      134512,
			hash:       "0000222d849cd2c702599dbc9a62201d28d58a3f161862b97d63ab07b3dfb134",
		},
		{
			difficulty: 3,
			hasher:     legacyBlake2b,
			nonce:      7458,
			hash:       "00072b8c7a6642d82c401f70dad62656a66488a8f2c63240aaa16c07cabe68cf",
		},
	}
	for _, test := range tests {
		for _, workers := range []int{1, 4} {
			name := fmt.Sprintf(
				"%s/difficulty %d/%d workers",
				test.hasher,
				test.difficulty,
				workers,
			)
			t.Run(name, func(t *testing.T) {
				m := New(
					WithHasher(test.hasher),
					WithWorkerCount(workers),
					WithChunkSize(64),
				)
				b, err := m.Mine(context.Background(), genesisTemplate, test.difficulty)
				require.NoError(t, err)
				assert.Equal(t, test.nonce, b.Nonce)
				assert.Equal(t, test.hash, b.Hash)
				assert.Equal(t, genesisTemplate, b.Template())
			})
		}
	}
}

func TestMineLowestNonce(t *testing.T) {
	const difficulty = 2
	tmpl := block.Template{
		Index:     1,
		Timestamp: 1700000001.5,
		Payload:   block.Int(91911),
		PrevHash:  "002911a8939ef64652235969f0315d1b5d3302a73bc13afc15ebe81179d6d6e0",
	}
	// Tiny chunks spread neighbouring nonces across workers, so a naive
	// first-to-finish result would often be wrong
	for _, chunkSize := range []uint64{1, 3, 17, 4096} {
		m := New(WithWorkerCount(8), WithChunkSize(chunkSize))
		b, err := m.Mine(context.Background(), tmpl, difficulty)
		require.NoError(t, err)
		assert.True(t, hasher.MeetsDifficulty(b.Hash, difficulty))
		for nonce := uint64(0); nonce < b.Nonce; nonce++ {
			digest := hasher.Digest(tmpl.Index, tmpl.Timestamp, tmpl.Payload, tmpl.PrevHash, nonce)
			require.False(
				t,
				hasher.MeetsDifficulty(digest, difficulty),
				"nonce %d satisfies the target but %d was returned (chunk size %d)",
				nonce,
				b.Nonce,
				chunkSize,
			)
		}
		assert.Equal(
			t,
			hasher.Digest(tmpl.Index, tmpl.Timestamp, tmpl.Payload, tmpl.PrevHash, b.Nonce),
			b.Hash,
		)
	}
}

func TestMineInvalidDifficulty(t *testing.T) {
	m := New()
	for _, difficulty := range []int{-1, hasher.MaxDifficulty + 1} {
		_, err := m.Mine(context.Background(), genesisTemplate, difficulty)
		assert.ErrorIs(t, err, ErrInvalidDifficulty)
	}
	assert.Zero(t, m.HashCount(), "no hashing must happen for an invalid difficulty")
}

func TestMineDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m := New(WithWorkerCount(2))
	start := time.Now()
	_, err := m.Mine(ctx, genesisTemplate, hasher.MaxDifficulty)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMiningDeadline)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotZero(t, m.HashCount())
}

func TestMineCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Mine(ctx, genesisTemplate, 1)
	assert.ErrorIs(t, err, ErrMiningDeadline)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMineHashRateLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m := New(WithHashRateInterval(5 * time.Millisecond))
	_, err := m.Mine(ctx, genesisTemplate, hasher.MaxDifficulty)
	require.ErrorIs(t, err, ErrMiningDeadline)
	m.hashLogMutex.Lock()
	defer m.hashLogMutex.Unlock()
	assert.Nil(t, m.hashLogTimer, "hash rate timer must be stopped after mining")
}

func TestNonceCursor(t *testing.T) {
	cursor := newNonceCursor(10)
	seen := make(map[uint64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				start, end := cursor.claim()
				mu.Lock()
				for n := start; n < end; n++ {
					seen[n] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 8*100*10)
	for n := uint64(0); n < 8000; n++ {
		require.True(t, seen[n], "nonce %d was never handed out", n)
	}
}

func TestBestNonce(t *testing.T) {
	best := newBestNonce()
	_, ok := best.get()
	assert.False(t, ok)
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			best.offer(n)
		}(uint64(1000 - i))
	}
	wg.Wait()
	val, ok := best.get()
	assert.True(t, ok)
	assert.Equal(t, uint64(901), val)
}

func BenchmarkMineDifficulty3(b *testing.B) {
	m := New()
	for i := 0; i < b.N; i++ {
		if _, err := m.Mine(context.Background(), genesisTemplate, 3); err != nil {
			b.Fatal(err)
		}
	}
}
