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

// Package report renders mined chains for people to read.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/blinklabs-io/hashchain/internal/block"
)

type Summary struct {
	BlockCount   int
	MiningTime   time.Duration
	Verified     bool
	OutputPath   string
	HashCount    uint64
	TrieRoot     string
	StoredHashes int
	Difficulty   int
	HashFunction string
}

// Verification describes a check of a previously exported chain
type Verification struct {
	Path         string
	BlockCount   int
	Difficulty   int
	HashFunction string
	// Err is the first problem found, or nil if the chain is intact
	Err          error
	// StoreChecked is set when the chain was compared against the badger sink
	StoreChecked bool
	StoreErr     error
}

func RenderBlock(w io.Writer, b block.Block) error {
	_, err := fmt.Fprintf(
		w,
		"--- Block #%d ---\n"+
			"timestamp : %.6f\n"+
			"payload   : %s\n"+
			"prev_hash : %s\n"+
			"nonce     : %d\n"+
			"hash      : %s\n",
		b.Index,
		b.Timestamp,
		b.Payload,
		b.PrevHash,
		b.Nonce,
		b.Hash,
	)
	return err
}

func RenderChain(w io.Writer, chain []block.Block) error {
	for i, b := range chain {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := RenderBlock(w, b); err != nil {
			return err
		}
	}
	return nil
}

func WriteSummary(w io.Writer, s Summary) error {
	verifyResult := "FAIL"
	if s.Verified {
		verifyResult = "OK"
	}
	lines := []string{
		fmt.Sprintf("Blocks created (including genesis): %d", s.BlockCount),
		fmt.Sprintf("Mining time: %.2f sec", s.MiningTime.Seconds()),
	}
	if s.HashFunction != "" {
		lines = append(
			lines,
			fmt.Sprintf("Difficulty: %d (%s)", s.Difficulty, s.HashFunction),
		)
	}
	if s.HashCount > 0 {
		lines = append(lines, fmt.Sprintf("Hashes computed: %d", s.HashCount))
	}
	lines = append(lines, fmt.Sprintf("Chain verification: %s", verifyResult))
	if s.OutputPath != "" {
		lines = append(lines, fmt.Sprintf("File saved: %s", s.OutputPath))
	}
	if s.TrieRoot != "" {
		lines = append(
			lines,
			fmt.Sprintf("Block hash trie root: %s", s.TrieRoot),
			fmt.Sprintf("Block hashes committed: %d", s.StoredHashes),
		)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func WriteVerification(w io.Writer, v Verification) error {
	lines := []string{
		fmt.Sprintf("Chain file: %s", v.Path),
		fmt.Sprintf("Blocks: %d", v.BlockCount),
		fmt.Sprintf("Difficulty: %d (%s)", v.Difficulty, v.HashFunction),
	}
	if v.Err != nil {
		lines = append(lines, fmt.Sprintf("Chain verification: FAIL (%s)", v.Err))
	} else {
		lines = append(lines, "Chain verification: OK")
	}
	if v.StoreChecked {
		if v.StoreErr != nil {
			lines = append(lines, fmt.Sprintf("Stored chain: differs (%s)", v.StoreErr))
		} else {
			lines = append(lines, "Stored chain: matches")
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
