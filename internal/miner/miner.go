// Copyright 2023 Blink Labs, LLC.
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
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/config"
	"github.com/blinklabs-io/hashchain/internal/hasher"
	"github.com/blinklabs-io/hashchain/internal/logging"
	"github.com/blinklabs-io/hashchain/internal/metrics"
)

const (
	defaultChunkSize = 4096
)

var (
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrMiningDeadline    = errors.New("mining deadline exceeded")
)

type Miner struct {
	logger           *logging.Logger
	hasher           *hasher.Hasher
	workerCount      int
	chunkSize        uint64
	hashRateInterval time.Duration
	hashCounter      *atomic.Uint64
	hashLogMutex     sync.Mutex
	hashLogTimer     *time.Timer
	hashLogLastCount uint64
}

type MinerOptionFunc func(*Miner)

// WithHasher specifies the digest algorithm. SHA-256 is used by default
func WithHasher(h *hasher.Hasher) MinerOptionFunc {
	return func(m *Miner) {
		m.hasher = h
	}
}

// WithWorkerCount specifies how many goroutines share the nonce search
func WithWorkerCount(workerCount int) MinerOptionFunc {
	return func(m *Miner) {
		m.workerCount = max(1, workerCount)
	}
}

// WithChunkSize specifies how many consecutive nonces a worker claims at once
func WithChunkSize(chunkSize uint64) MinerOptionFunc {
	return func(m *Miner) {
		if chunkSize > 0 {
			m.chunkSize = chunkSize
		}
	}
}

// WithHashRateInterval enables periodic hash rate logging while mining
func WithHashRateInterval(interval time.Duration) MinerOptionFunc {
	return func(m *Miner) {
		m.hashRateInterval = interval
	}
}

func WithLogger(logger *logging.Logger) MinerOptionFunc {
	return func(m *Miner) {
		m.logger = logger
	}
}

func New(opts ...MinerOptionFunc) *Miner {
	m := &Miner{
		logger:      logging.GetLogger(),
		hasher:      hasher.Default(),
		workerCount: 1,
		chunkSize:   defaultChunkSize,
		hashCounter: &atomic.Uint64{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewFromConfig creates a miner using the global config
func NewFromConfig() (*Miner, error) {
	cfg := config.GetConfig()
	algorithm, err := hasher.ParseAlgorithm(cfg.Chain.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	var hasherOpts []hasher.HasherOptionFunc
	if cfg.Chain.LegacyPayloads {
		hasherOpts = append(hasherOpts, hasher.WithLegacyPayloads())
	}
	h, err := hasher.New(algorithm, hasherOpts...)
	if err != nil {
		return nil, err
	}
	return New(
		WithHasher(h),
		WithWorkerCount(cfg.Miner.WorkerCount),
		WithChunkSize(cfg.Miner.ChunkSize),
		WithHashRateInterval(
			time.Duration(cfg.Miner.HashRateInterval)*time.Second,
		),
	), nil
}

// ValidateDifficulty checks that difficulty can be satisfied by a digest
func ValidateDifficulty(difficulty int) error {
	if difficulty < 0 || difficulty > hasher.MaxDifficulty {
		return fmt.Errorf(
			"%w: %d is outside 0..%d",
			ErrInvalidDifficulty,
			difficulty,
			hasher.MaxDifficulty,
		)
	}
	return nil
}

func (m *Miner) Hasher() *hasher.Hasher {
	return m.hasher
}

// HashCount returns the number of digests computed by this miner so far
func (m *Miner) HashCount() uint64 {
	return m.hashCounter.Load()
}

// Mine searches for the lowest nonce whose digest has at least difficulty
// leading zero hex characters and returns the sealed block. The search has no
// upper bound; use a context deadline to limit it.
func (m *Miner) Mine(
	ctx context.Context,
	tmpl block.Template,
	difficulty int,
) (block.Block, error) {
	if err := ValidateDifficulty(difficulty); err != nil {
		return block.Block{}, err
	}
	if err := ctx.Err(); err != nil {
		return block.Block{}, fmt.Errorf("%w: %w", ErrMiningDeadline, err)
	}
	m.startHashRateLog()
	defer m.stopHashRateLog()
	startTime := time.Now()
	nonce, err := m.search(ctx, tmpl, difficulty)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return block.Block{}, fmt.Errorf(
				"%w: block %d: %w",
				ErrMiningDeadline,
				tmpl.Index,
				ctxErr,
			)
		}
		return block.Block{}, err
	}
	hash := hex.EncodeToString(m.hasher.NewTrial(tmpl).Sum(nonce))
	metrics.ObserveBlockMined(time.Since(startTime))
	m.logger.Debugf(
		"mined block %d in %s: nonce %d, hash %s",
		tmpl.Index,
		time.Since(startTime),
		nonce,
		hash,
	)
	return tmpl.Seal(nonce, hash), nil
}

func (m *Miner) startHashRateLog() {
	if m.hashRateInterval <= 0 {
		return
	}
	m.hashLogMutex.Lock()
	defer m.hashLogMutex.Unlock()
	m.hashLogLastCount = m.hashCounter.Load()
	m.scheduleHashRateLog()
}

func (m *Miner) stopHashRateLog() {
	m.hashLogMutex.Lock()
	defer m.hashLogMutex.Unlock()
	if m.hashLogTimer != nil {
		m.hashLogTimer.Stop()
		m.hashLogTimer = nil
	}
}

func (m *Miner) scheduleHashRateLog() {
	m.hashLogTimer = time.AfterFunc(
		m.hashRateInterval,
		m.hashRateLog,
	)
}

func (m *Miner) hashRateLog() {
	m.hashLogMutex.Lock()
	defer m.hashLogMutex.Unlock()
	// Mining finished while we were waiting on the lock
	if m.hashLogTimer == nil {
		return
	}
	hashCount := m.hashCounter.Load()
	hashCountDiff := hashCount - m.hashLogLastCount
	m.hashLogLastCount = hashCount
	hashCountPerSec := float64(hashCountDiff) / m.hashRateInterval.Seconds()
	m.logger.Infof("hash rate: %.0f/s", hashCountPerSec)
	m.scheduleHashRateLog()
}
