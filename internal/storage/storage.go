// Copyright 2023 Blink Labs Software
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

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/config"
	"github.com/blinklabs-io/hashchain/internal/logging"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/dgraph-io/badger/v4"
)

const (
	blockKeyPrefix = "block_"
	chainMetaKey   = "chain_meta"
	trieName       = "block_hashes"
)

var (
	ErrNotLoaded     = errors.New("storage has not been loaded")
	ErrNoStoredChain = errors.New("no chain has been stored")
)

type Storage struct {
	db     *badger.DB
	hashes *HashTrie
}

// ChainMeta describes how the stored chain was mined
type ChainMeta struct {
	Difficulty     int
	HashAlgorithm  string
	LegacyPayloads bool
	BlockCount     uint64
	TipHash        string
}

type blockRecord struct {
	Index       uint64
	Timestamp   float64
	PayloadKind uint8
	Payload     string
	PrevHash    string
	Nonce       uint64
	Hash        string
}

var globalStorage = &Storage{}

// Load opens the database in the configured storage directory
func (s *Storage) Load() error {
	cfg := config.GetConfig()
	badgerOpts := badger.DefaultOptions(cfg.Storage.Directory).
		WithLogger(NewBadgerLogger()).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	return s.open(badgerOpts)
}

func (s *Storage) open(badgerOpts badger.Options) error {
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	hashes, err := NewHashTrie(db, trieName)
	if err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	s.hashes = hashes
	return nil
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.hashes = nil
	return err
}

// Reset removes any previously exported chain
func (s *Storage) Reset() error {
	if s.db == nil {
		return ErrNotLoaded
	}
	if err := s.db.DropPrefix([]byte(blockKeyPrefix)); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(chainMetaKey))
	})
	if err != nil {
		return err
	}
	return s.hashes.Reset()
}

// PutBlock records a mined block and adds its hash to the trie
func (s *Storage) PutBlock(b block.Block) error {
	if s.db == nil {
		return ErrNotLoaded
	}
	hashBytes, err := hex.DecodeString(b.Hash)
	if err != nil {
		return fmt.Errorf("block %d has a malformed hash: %w", b.Index, err)
	}
	record := blockRecord{
		Index:       b.Index,
		Timestamp:   b.Timestamp,
		PayloadKind: uint8(b.Payload.Kind()),
		Payload:     b.Payload.Canonical(),
		PrevHash:    b.PrevHash,
		Nonce:       b.Nonce,
		Hash:        b.Hash,
	}
	recordCbor, err := cbor.Encode(&record)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(b.Index), recordCbor)
	})
	if err != nil {
		return err
	}
	return s.hashes.Insert(hashBytes)
}

// Blocks returns the stored chain ordered by index
func (s *Storage) Blocks() ([]block.Block, error) {
	if s.db == nil {
		return nil, ErrNotLoaded
	}
	var ret []block.Block
	keyPrefix := []byte(blockKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var record blockRecord
				if _, err := cbor.Decode(v, &record); err != nil {
					return err
				}
				payload, err := block.FromCanonical(
					block.Kind(record.PayloadKind),
					record.Payload,
				)
				if err != nil {
					return err
				}
				ret = append(ret, block.Block{
					Index:     record.Index,
					Timestamp: record.Timestamp,
					Payload:   payload,
					PrevHash:  record.PrevHash,
					Nonce:     record.Nonce,
					Hash:      record.Hash,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Storage) UpdateChainMeta(meta ChainMeta) error {
	if s.db == nil {
		return ErrNotLoaded
	}
	metaCbor, err := cbor.Encode(&meta)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(chainMetaKey), metaCbor)
	})
	return err
}

// GetChainMeta returns the stored chain metadata, or nil if there is none
func (s *Storage) GetChainMeta() (*ChainMeta, error) {
	if s.db == nil {
		return nil, ErrNotLoaded
	}
	var ret *ChainMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(chainMetaKey))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var meta ChainMeta
			if _, err := cbor.Decode(v, &meta); err != nil {
				return err
			}
			ret = &meta
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ret, nil
}

// Compare checks chain against the stored chain, block hash by block hash,
// and returns the first difference
func (s *Storage) Compare(chain []block.Block) error {
	meta, err := s.GetChainMeta()
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrNoStoredChain
	}
	if meta.BlockCount != uint64(len(chain)) {
		return fmt.Errorf(
			"stored chain has %d blocks, got %d",
			meta.BlockCount,
			len(chain),
		)
	}
	if len(chain) > 0 && chain[len(chain)-1].Hash != meta.TipHash {
		return fmt.Errorf(
			"stored tip hash is %s, got %s",
			meta.TipHash,
			chain[len(chain)-1].Hash,
		)
	}
	stored, err := s.Blocks()
	if err != nil {
		return err
	}
	if len(stored) != len(chain) {
		return fmt.Errorf(
			"stored chain metadata lists %d blocks but %d are stored",
			meta.BlockCount,
			len(stored),
		)
	}
	for i, b := range stored {
		if b.Hash != chain[i].Hash {
			return fmt.Errorf(
				"block %d: stored hash is %s, got %s",
				i,
				b.Hash,
				chain[i].Hash,
			)
		}
	}
	return nil
}

// TrieRoot returns the hex root hash of the trie over stored block hashes
func (s *Storage) TrieRoot() string {
	if s.hashes == nil {
		return ""
	}
	return hex.EncodeToString(s.hashes.Root())
}

// HashCount returns the number of distinct block hashes in the trie
func (s *Storage) HashCount() int {
	if s.hashes == nil {
		return 0
	}
	return s.hashes.Len()
}

func blockKey(index uint64) []byte {
	// Zero padding keeps lexical key order equal to index order
	return []byte(fmt.Sprintf("%s%020d", blockKeyPrefix, index))
}

func GetStorage() *Storage {
	return globalStorage
}

// BadgerLogger is a wrapper type to give our logger the expected interface
type BadgerLogger struct {
	*logging.Logger
}

func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{
		Logger: logging.GetLogger(),
	}
}

func (b *BadgerLogger) Warningf(msg string, args ...any) {
	b.Logger.Warnf(msg, args...)
}
