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

package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/hashchain/internal/block"
)

func TestRenderChain(t *testing.T) {
	chain := []block.Block{
		{
			Index:     0,
			Timestamp: 1700000000.5,
			Payload:   block.String("GENESIS"),
			Nonce:     395,
			Hash:      "0029",
		},
		{
			Index:     1,
			Timestamp: 1700000001.25,
			Payload:   block.Int(91911),
			PrevHash:  "0029",
			Nonce:     29,
			Hash:      "0071",
		},
	}
	var buf bytes.Buffer
	require.NoError(t, RenderChain(&buf, chain))
	expected := "--- Block #0 ---\n" +
		"timestamp : 1700000000.500000\n" +
		"payload   : GENESIS\n" +
		"prev_hash : \n" +
		"nonce     : 395\n" +
		"hash      : 0029\n" +
		"\n" +
		"--- Block #1 ---\n" +
		"timestamp : 1700000001.250000\n" +
		"payload   : 91911\n" +
		"prev_hash : 0029\n" +
		"nonce     : 29\n" +
		"hash      : 0071\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteSummary(t *testing.T) {
	tests := []struct {
		name     string
		summary  Summary
		expected string
	}{
		{
			name: "minimal",
			summary: Summary{
				BlockCount: 1,
				MiningTime: 1500 * time.Millisecond,
				Verified:   false,
			},
			expected: "Blocks created (including genesis): 1\n" +
				"Mining time: 1.50 sec\n" +
				"Chain verification: FAIL\n",
		},
		{
			name: "full",
			summary: Summary{
				BlockCount:   8,
				MiningTime:   12340 * time.Millisecond,
				Verified:     true,
				OutputPath:   "out/chain.json",
				HashCount:    1048576,
				TrieRoot:     "abcd",
				StoredHashes: 8,
				Difficulty:   5,
				HashFunction: "sha256",
			},
			expected: "Blocks created (including genesis): 8\n" +
				"Mining time: 12.34 sec\n" +
				"Difficulty: 5 (sha256)\n" +
				"Hashes computed: 1048576\n" +
				"Chain verification: OK\n" +
				"File saved: out/chain.json\n" +
				"Block hash trie root: abcd\n" +
				"Block hashes committed: 8\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteSummary(&buf, test.summary))
			assert.Equal(t, test.expected, buf.String())
		})
	}
}

func TestWriteVerification(t *testing.T) {
	tests := []struct {
		name         string
		verification Verification
		expected     string
	}{
		{
			name: "ok",
			verification: Verification{
				Path:         "out/simple_pow_blockchain.json",
				BlockCount:   8,
				Difficulty:   5,
				HashFunction: "sha256",
			},
			expected: "Chain file: out/simple_pow_blockchain.json\n" +
				"Blocks: 8\n" +
				"Difficulty: 5 (sha256)\n" +
				"Chain verification: OK\n",
		},
		{
			name: "fail with store mismatch",
			verification: Verification{
				Path:         "chain.json",
				BlockCount:   2,
				Difficulty:   3,
				HashFunction: "sha256 (legacy payloads)",
				Err:          errors.New("block 1: bad hash"),
				StoreChecked: true,
				StoreErr:     errors.New("stored chain has 3 blocks, got 2"),
			},
			expected: "Chain file: chain.json\n" +
				"Blocks: 2\n" +
				"Difficulty: 3 (sha256 (legacy payloads))\n" +
				"Chain verification: FAIL (block 1: bad hash)\n" +
				"Stored chain: differs (stored chain has 3 blocks, got 2)\n",
		},
		{
			name: "store matches",
			verification: Verification{
				Path:         "chain.json",
				BlockCount:   1,
				HashFunction: "sha256",
				StoreChecked: true,
			},
			expected: "Chain file: chain.json\n" +
				"Blocks: 1\n" +
				"Difficulty: 0 (sha256)\n" +
				"Chain verification: OK\n" +
				"Stored chain: matches\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteVerification(&buf, test.verification))
			assert.Equal(t, test.expected, buf.String())
		})
	}
}
