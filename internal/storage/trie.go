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

package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	mpf "github.com/blinklabs-io/merkle-patricia-forestry"
	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"
)

// HashTrie commits to a set of block hashes with a merkle-patricia-forestry
// trie. Each hash is stored under the blake2b-256 of its bytes, and every
// entry is mirrored into badger so the trie survives a restart.
type HashTrie struct {
	mu      sync.Mutex
	db      *badger.DB
	trie    *mpf.Trie
	dbKeyNs string
	count   int
}

func NewHashTrie(db *badger.DB, name string) (*HashTrie, error) {
	t := &HashTrie{
		db:      db,
		trie:    mpf.NewTrie(),
		dbKeyNs: fmt.Sprintf("trie_%s_", name),
	}
	if err := t.restore(); err != nil {
		return nil, err
	}
	return t, nil
}

// restore rebuilds the in-memory trie from the persisted entries
func (t *HashTrie) restore() error {
	prefix := []byte(t.dbKeyNs)
	return t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			trieKey, err := hex.DecodeString(
				string(item.Key()[len(prefix):]),
			)
			if err != nil {
				return fmt.Errorf("corrupt trie key %q: %w", item.Key(), err)
			}
			blockHash, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			t.trie.Set(trieKey, blockHash)
			t.count++
		}
		return nil
	})
}

// Insert adds a raw block hash. Inserting a hash twice leaves the root
// unchanged.
func (t *HashTrie) Insert(blockHash []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	trieKey := trieKeyFor(blockHash)
	dbKey := t.dbKey(trieKey)
	isNew := false
	err := t.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(dbKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			isNew = true
		case err != nil:
			return err
		}
		return txn.Set(dbKey, blockHash)
	})
	if err != nil {
		return err
	}
	t.trie.Set(trieKey, blockHash)
	if isNew {
		t.count++
	}
	return nil
}

// Reset empties the trie and drops its persisted entries
func (t *HashTrie) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.db.DropPrefix([]byte(t.dbKeyNs)); err != nil {
		return err
	}
	t.trie = mpf.NewTrie()
	t.count = 0
	return nil
}

// Root returns the trie root hash
func (t *HashTrie) Root() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trie.Hash().Bytes()
}

// Len returns the number of distinct hashes in the trie
func (t *HashTrie) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func (t *HashTrie) dbKey(trieKey []byte) []byte {
	return []byte(t.dbKeyNs + hex.EncodeToString(trieKey))
}

func trieKeyFor(blockHash []byte) []byte {
	sum := blake2b.Sum256(blockHash)
	return sum[:]
}
