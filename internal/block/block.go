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

package block

import (
	"time"
)

// now is swapped out in tests
var now = time.Now

// Template is an unmined block. It carries everything the digest covers
// except the nonce.
type Template struct {
	Index     uint64
	Timestamp float64
	Payload   Payload
	PrevHash  string
}

// Block is a mined link in the chain
type Block struct {
	Index     uint64  `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Payload   Payload `json:"payload"`
	PrevHash  string  `json:"prev_hash"`
	Nonce     uint64  `json:"nonce"`
	Hash      string  `json:"hash"`
}

// NewTemplate creates an unmined block, capturing the current time as its
// timestamp
func NewTemplate(index uint64, payload Payload, prevHash string) Template {
	return Template{
		Index:     index,
		Timestamp: Timestamp(now()),
		Payload:   payload,
		PrevHash:  prevHash,
	}
}

// NewGenesisTemplate creates the unmined first block of a chain
func NewGenesisTemplate(payload Payload) Template {
	return NewTemplate(0, payload, "")
}

// Next creates the unmined successor of b
func (b Block) Next(payload Payload) Template {
	return NewTemplate(b.Index+1, payload, b.Hash)
}

// Seal produces the mined block for the given search result
func (t Template) Seal(nonce uint64, hash string) Block {
	return Block{
		Index:     t.Index,
		Timestamp: t.Timestamp,
		Payload:   t.Payload,
		PrevHash:  t.PrevHash,
		Nonce:     nonce,
		Hash:      hash,
	}
}

// Template returns the unmined form of the block
func (b Block) Template() Template {
	return Template{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		Payload:   b.Payload,
		PrevHash:  b.PrevHash,
	}
}

func (b Block) IsGenesis() bool {
	return b.Index == 0 && b.PrevHash == ""
}

// Timestamp converts t to fractional seconds since the Unix epoch
func Timestamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
