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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

var (
	ErrInvalidNumber      = errors.New("invalid number payload")
	ErrNotStructured      = errors.New("structured payload must be a JSON object or array")
	ErrUnsupportedPayload = errors.New("unsupported payload type")
)

// Payload is the application data carried by a block. The zero value is an
// empty string payload.
type Payload struct {
	kind Kind
	// text holds the canonical rendering used for hashing
	text string
}

func String(s string) Payload {
	return Payload{kind: KindString, text: s}
}

func Int(n int64) Payload {
	return Payload{kind: KindNumber, text: strconv.FormatInt(n, 10)}
}

func Float(f float64) (Payload, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidNumber, f)
	}
	return Payload{kind: KindNumber, text: formatFloat(f)}, nil
}

// Number builds a number payload from its decimal (JSON number) text
func Number(text string) (Payload, error) {
	canonical, err := canonicalNumber(text)
	if err != nil {
		return Payload{}, err
	}
	return Payload{kind: KindNumber, text: canonical}, nil
}

// Structured builds a payload from any value that marshals to a JSON object
// or array
func Structured(v any) (Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return structuredFromJSON(raw)
}

// ParsePayload interprets command-line text. JSON numbers become number
// payloads, JSON objects and arrays become structured payloads and anything
// else is kept verbatim as a string.
func ParsePayload(s string) Payload {
	if p, err := Number(s); err == nil {
		return p
	}
	if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
		if p, err := structuredFromJSON([]byte(s)); err == nil {
			return p
		}
	}
	return String(s)
}

// FromCanonical rebuilds a payload from its kind and canonical text
func FromCanonical(kind Kind, text string) (Payload, error) {
	switch kind {
	case KindString:
		return String(text), nil
	case KindNumber:
		return Number(text)
	case KindStructured:
		return structuredFromJSON([]byte(text))
	default:
		return Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedPayload, kind)
	}
}

func (p Payload) Kind() Kind {
	return p.kind
}

// Canonical returns the text that takes part in the block digest
func (p Payload) Canonical() string {
	return p.text
}

func (p Payload) String() string {
	return p.text
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case KindNumber, KindStructured:
		return []byte(p.text), nil
	default:
		return json.Marshal(p.text)
	}
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrUnsupportedPayload)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = String(s)
	case '{', '[':
		tmp, err := structuredFromJSON(data)
		if err != nil {
			return err
		}
		*p = tmp
	case 'n', 't', 'f':
		return fmt.Errorf("%w: %s", ErrUnsupportedPayload, data)
	default:
		tmp, err := Number(string(data))
		if err != nil {
			return err
		}
		*p = tmp
	}
	return nil
}

func structuredFromJSON(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Payload{}, err
	}
	if dec.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrNotStructured)
	}
	switch v.(type) {
	case map[string]any, []any:
	default:
		return Payload{}, ErrNotStructured
	}
	v, err := canonicalValue(v)
	if err != nil {
		return Payload{}, err
	}
	// Map keys are emitted in sorted order, which makes the output canonical
	out, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{kind: KindStructured, text: string(out)}, nil
}

func canonicalValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			tmp, err := canonicalValue(item)
			if err != nil {
				return nil, err
			}
			val[k] = tmp
		}
		return val, nil
	case []any:
		for i, item := range val {
			tmp, err := canonicalValue(item)
			if err != nil {
				return nil, err
			}
			val[i] = tmp
		}
		return val, nil
	case json.Number:
		tmp, err := canonicalNumber(string(val))
		if err != nil {
			return nil, err
		}
		return json.Number(tmp), nil
	default:
		return val, nil
	}
}

func canonicalNumber(text string) (string, error) {
	if !isJSONNumber(text) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}
	// Integers keep their exact value regardless of size
	if n, ok := new(big.Int).SetString(text, 10); ok {
		return n.String(), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}
	return formatFloat(f), nil
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// isJSONNumber reports whether s matches the JSON number grammar
func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '-' {
		i++
		if i == len(s) {
			return false
		}
	}
	switch {
	case s[i] == '0':
		i++
	case s[i] >= '1' && s[i] <= '9':
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}
