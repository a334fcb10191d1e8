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

// Package hasher computes block digests.
//
// The digest input is the UTF-8 string
//
//	{index}|{timestamp with 6 decimals}|{payload}|{prev_hash}|{nonce}
//
// and the output is the lowercase hex encoding of the hash. Changing the field
// order or the timestamp precision changes which nonces satisfy a difficulty
// target, so both are fixed.
//
// String payloads are written as quoted Go string literals, numbers in their
// canonical decimal form and structured payloads as canonical JSON, so no two
// payload variants share an encoding. Hashers created with
// WithLegacyPayloads write every payload unquoted, which reproduces the digests
// of chains built by the earlier Python tooling but lets the string "1" and
// the number 1 collide.
package hasher

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/blinklabs-io/hashchain/internal/block"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
)

type Algorithm string

const (
	AlgorithmSHA256     Algorithm = "sha256"
	AlgorithmBlake2b256 Algorithm = "blake2b-256"
)

const (
	// DigestSize is the raw digest length in bytes for every supported algorithm
	DigestSize = 32
	// HexLength is the length of a rendered digest
	HexLength = DigestSize * 2
	// MaxDifficulty is the largest satisfiable count of leading zero hex characters
	MaxDifficulty = HexLength

	fieldSeparator    = '|'
	timestampDecimals = 6
)

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// ParseAlgorithm resolves a configured algorithm name. An empty name selects
// SHA-256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "", AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBlake2b256, "blake2b":
		return AlgorithmBlake2b256, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
}

type Hasher struct {
	algorithm      Algorithm
	newHash        func() hash.Hash
	legacyPayloads bool
}

type HasherOptionFunc func(*Hasher)

// WithLegacyPayloads writes payloads without a variant marker
func WithLegacyPayloads() HasherOptionFunc {
	return func(h *Hasher) {
		h.legacyPayloads = true
	}
}

var defaultHasher = &Hasher{
	algorithm: AlgorithmSHA256,
	newHash:   sha256.New,
}

func New(algorithm Algorithm, opts ...HasherOptionFunc) (*Hasher, error) {
	h := &Hasher{
		algorithm: algorithm,
	}
	switch algorithm {
	case AlgorithmSHA256:
		h.newHash = sha256.New
	case AlgorithmBlake2b256:
		h.newHash = newBlake2b256
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Default returns the SHA-256 hasher
func Default() *Hasher {
	return defaultHasher
}

func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *Hasher) LegacyPayloads() bool {
	return h.legacyPayloads
}

func (h *Hasher) String() string {
	if h.legacyPayloads {
		return string(h.algorithm) + " (legacy payloads)"
	}
	return string(h.algorithm)
}

// Digest hashes the given block fields
func (h *Hasher) Digest(
	index uint64,
	timestamp float64,
	payload block.Payload,
	prevHash string,
	nonce uint64,
) string {
	tmpHash := h.newHash()
	tmpHash.Write(h.Serialize(index, timestamp, payload, prevHash, nonce))
	return hex.EncodeToString(tmpHash.Sum(nil))
}

// DigestBlock recomputes the digest of a mined block from its stored fields
func (h *Hasher) DigestBlock(b block.Block) string {
	return h.Digest(b.Index, b.Timestamp, b.Payload, b.PrevHash, b.Nonce)
}

// Digest hashes the given block fields with SHA-256
func Digest(
	index uint64,
	timestamp float64,
	payload block.Payload,
	prevHash string,
	nonce uint64,
) string {
	return defaultHasher.Digest(index, timestamp, payload, prevHash, nonce)
}

// Serialize returns the digest input for the block fields
func (h *Hasher) Serialize(
	index uint64,
	timestamp float64,
	payload block.Payload,
	prevHash string,
	nonce uint64,
) []byte {
	buf := h.appendPrefix(nil, index, timestamp, payload, prevHash)
	return strconv.AppendUint(buf, nonce, 10)
}

// Serialize returns the SHA-256 hasher's digest input for the block fields
func Serialize(
	index uint64,
	timestamp float64,
	payload block.Payload,
	prevHash string,
	nonce uint64,
) []byte {
	return defaultHasher.Serialize(index, timestamp, payload, prevHash, nonce)
}

func (h *Hasher) appendPrefix(
	buf []byte,
	index uint64,
	timestamp float64,
	payload block.Payload,
	prevHash string,
) []byte {
	buf = strconv.AppendUint(buf, index, 10)
	buf = append(buf, fieldSeparator)
	buf = strconv.AppendFloat(buf, timestamp, 'f', timestampDecimals, 64)
	buf = append(buf, fieldSeparator)
	buf = h.appendPayload(buf, payload)
	buf = append(buf, fieldSeparator)
	buf = append(buf, prevHash...)
	buf = append(buf, fieldSeparator)
	return buf
}

// appendPayload writes the payload so that its variant can be told apart from
// the bytes alone. Numbers never start with a quote, brace or bracket.
func (h *Hasher) appendPayload(buf []byte, payload block.Payload) []byte {
	if payload.Kind() == block.KindString && !h.legacyPayloads {
		return strconv.AppendQuote(buf, payload.Canonical())
	}
	return append(buf, payload.Canonical()...)
}

func newBlake2b256() hash.Hash {
	tmpHash, err := blake2b.New256(nil)
	if err != nil {
		// This should never happen
		panic(err.Error())
	}
	return tmpHash
}
