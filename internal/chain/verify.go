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
	"errors"
	"fmt"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/hasher"
	"github.com/blinklabs-io/hashchain/internal/metrics"
	"github.com/blinklabs-io/hashchain/internal/miner"
)

var ErrEmptyChain = errors.New("chain is empty")

// VerifyError describes the first violation found in a chain
type VerifyError struct {
	Index  int
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Index, e.Reason)
}

type Verifier struct {
	hasher *hasher.Hasher
}

func NewVerifier(h *hasher.Hasher) *Verifier {
	return &Verifier{hasher: h}
}

// Check returns nil if the chain is intact and every block meets difficulty,
// otherwise the first problem found. The chain is not modified.
func (v *Verifier) Check(chain []block.Block, difficulty int) error {
	if err := miner.ValidateDifficulty(difficulty); err != nil {
		return err
	}
	if len(chain) == 0 {
		return ErrEmptyChain
	}
	for i, b := range chain {
		if b.Index != uint64(i) {
			return &VerifyError{
				Index:  i,
				Reason: fmt.Sprintf("index field is %d", b.Index),
			}
		}
		if i == 0 && b.PrevHash != "" {
			return &VerifyError{
				Index:  i,
				Reason: "genesis block has a previous hash",
			}
		}
		if !hasher.MeetsDifficulty(b.Hash, difficulty) {
			return &VerifyError{
				Index: i,
				Reason: fmt.Sprintf(
					"hash %s has fewer than %d leading zeros",
					b.Hash,
					difficulty,
				),
			}
		}
		if digest := v.hasher.DigestBlock(b); digest != b.Hash {
			return &VerifyError{
				Index: i,
				Reason: fmt.Sprintf(
					"stored hash %s does not match computed hash %s",
					b.Hash,
					digest,
				),
			}
		}
		if i > 0 && b.PrevHash != chain[i-1].Hash {
			return &VerifyError{
				Index: i,
				Reason: fmt.Sprintf(
					"previous hash %s does not match hash %s of block %d",
					b.PrevHash,
					chain[i-1].Hash,
					i-1,
				),
			}
		}
	}
	return nil
}

// Audit is Check with the outcome counted in the verification metrics
func (v *Verifier) Audit(chain []block.Block, difficulty int) error {
	err := v.Check(chain, difficulty)
	metrics.ObserveVerification(err == nil)
	return err
}

// Verify reports whether Check finds no problems
func (v *Verifier) Verify(chain []block.Block, difficulty int) bool {
	return v.Audit(chain, difficulty) == nil
}

// Check verifies a SHA-256 chain
func Check(chain []block.Block, difficulty int) error {
	return NewVerifier(hasher.Default()).Check(chain, difficulty)
}

// Verify verifies a SHA-256 chain
func Verify(chain []block.Block, difficulty int) bool {
	return NewVerifier(hasher.Default()).Verify(chain, difficulty)
}
