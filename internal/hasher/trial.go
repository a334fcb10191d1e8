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

package hasher

import (
	"hash"
	"strconv"

	"github.com/blinklabs-io/hashchain/internal/block"
)

// Trial hashes a fixed template with varying nonces. Only the nonce is
// serialized per call. A Trial is not safe for concurrent use; each mining
// worker creates its own.
type Trial struct {
	hash      hash.Hash
	buf       []byte
	prefixLen int
	sum       []byte
}

func (h *Hasher) NewTrial(t block.Template) *Trial {
	// Leave room for the largest possible nonce
	prefix := h.appendPrefix(
		make([]byte, 0, 128),
		t.Index,
		t.Timestamp,
		t.Payload,
		t.PrevHash,
	)
	return &Trial{
		hash:      h.newHash(),
		buf:       prefix,
		prefixLen: len(prefix),
		sum:       make([]byte, 0, DigestSize),
	}
}

// Sum returns the raw digest for the nonce. The returned slice is reused by
// the next call.
func (t *Trial) Sum(nonce uint64) []byte {
	t.buf = strconv.AppendUint(t.buf[:t.prefixLen], nonce, 10)
	t.hash.Reset()
	t.hash.Write(t.buf)
	t.sum = t.hash.Sum(t.sum[:0])
	return t.sum
}
