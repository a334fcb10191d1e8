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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/hashchain/internal/block"
)

// importRecord mirrors block.Block, also accepting "data" for the payload
type importRecord struct {
	Index     *uint64        `json:"index"`
	Timestamp *float64       `json:"timestamp"`
	Payload   *block.Payload `json:"payload"`
	Data      *block.Payload `json:"data"`
	PrevHash  *string        `json:"prev_hash"`
	Nonce     *uint64        `json:"nonce"`
	Hash      *string        `json:"hash"`
}

// Encode writes the chain as an indented JSON array
func Encode(w io.Writer, chain []block.Block) error {
	if chain == nil {
		chain = []block.Block{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(chain)
}

// Decode reads a chain written by Encode
func Decode(r io.Reader) ([]block.Block, error) {
	var records []importRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode chain: %w", err)
	}
	ret := make([]block.Block, 0, len(records))
	for i, record := range records {
		tmpBlock, err := record.toBlock()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		ret = append(ret, tmpBlock)
	}
	return ret, nil
}

func (r importRecord) toBlock() (block.Block, error) {
	payload := r.Payload
	if payload == nil {
		payload = r.Data
	}
	switch {
	case r.Index == nil:
		return block.Block{}, errors.New("missing index")
	case r.Timestamp == nil:
		return block.Block{}, errors.New("missing timestamp")
	case payload == nil:
		return block.Block{}, errors.New("missing payload")
	case r.PrevHash == nil:
		return block.Block{}, errors.New("missing prev_hash")
	case r.Nonce == nil:
		return block.Block{}, errors.New("missing nonce")
	case r.Hash == nil:
		return block.Block{}, errors.New("missing hash")
	}
	return block.Block{
		Index:     *r.Index,
		Timestamp: *r.Timestamp,
		Payload:   *payload,
		PrevHash:  *r.PrevHash,
		Nonce:     *r.Nonce,
		Hash:      *r.Hash,
	}, nil
}

// WriteFile exports the chain to path, creating parent directories. The file
// is replaced atomically.
func WriteFile(path string, chain []block.Block) error {
	var buf bytes.Buffer
	if err := Encode(&buf, chain); err != nil {
		return err
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return err
	}
	return nil
}

// ReadFile loads a chain exported by WriteFile
func ReadFile(path string) ([]block.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
