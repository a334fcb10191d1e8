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

package chain

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/logging"
	"github.com/blinklabs-io/hashchain/internal/miner"
)

// Observer is called with each block as soon as it has been mined
type Observer func(block.Block) error

type Builder struct {
	logger    *logging.Logger
	miner     *miner.Miner
	observers []Observer
}

type BuilderOptionFunc func(*Builder)

func WithObserver(observer Observer) BuilderOptionFunc {
	return func(b *Builder) {
		b.observers = append(b.observers, observer)
	}
}

func WithLogger(logger *logging.Logger) BuilderOptionFunc {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(m *miner.Miner, opts ...BuilderOptionFunc) *Builder {
	b := &Builder{
		logger: logging.GetLogger(),
		miner:  m,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build mines a genesis block carrying genesis followed by one block per
// payload, in order. Each block's timestamp is taken just before it is mined.
func (b *Builder) Build(
	ctx context.Context,
	genesis block.Payload,
	payloads []block.Payload,
	difficulty int,
) ([]block.Block, error) {
	// Fail before any work is done
	if err := miner.ValidateDifficulty(difficulty); err != nil {
		return nil, err
	}
	ret := make([]block.Block, 0, len(payloads)+1)
	genesisBlock, err := b.mine(ctx, block.NewGenesisTemplate(genesis), difficulty)
	if err != nil {
		return nil, err
	}
	ret = append(ret, genesisBlock)
	for _, payload := range payloads {
		prev := ret[len(ret)-1]
		tmpBlock, err := b.mine(ctx, prev.Next(payload), difficulty)
		if err != nil {
			return nil, err
		}
		ret = append(ret, tmpBlock)
	}
	return ret, nil
}

func (b *Builder) mine(
	ctx context.Context,
	tmpl block.Template,
	difficulty int,
) (block.Block, error) {
	tmpBlock, err := b.miner.Mine(ctx, tmpl, difficulty)
	if err != nil {
		return block.Block{}, fmt.Errorf("failed to mine block %d: %w", tmpl.Index, err)
	}
	b.logger.Infof(
		"mined block %d: nonce %d, hash %s",
		tmpBlock.Index,
		tmpBlock.Nonce,
		tmpBlock.Hash,
	)
	for _, observer := range b.observers {
		if err := observer(tmpBlock); err != nil {
			return block.Block{}, err
		}
	}
	return tmpBlock, nil
}

// Build mines a chain with a single-worker SHA-256 miner
func Build(
	ctx context.Context,
	genesis block.Payload,
	payloads []block.Payload,
	difficulty int,
) ([]block.Block, error) {
	return NewBuilder(miner.New()).Build(ctx, genesis, payloads, difficulty)
}
