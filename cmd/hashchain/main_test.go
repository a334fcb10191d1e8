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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/config"
)

func TestParseFlagsValues(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "space separated",
			args:     []string{"--values", "1", "2", "3"},
			expected: []string{"1", "2", "3"},
		},
		{
			name:     "repeated flag",
			args:     []string{"-v", "1", "-v", "hello"},
			expected: []string{"1", "hello"},
		},
		{
			name:     "json object",
			args:     []string{`--values={"a":1,"b":2}`},
			expected: []string{`{"a":1,"b":2}`},
		},
		{
			name:     "commas are kept",
			args:     []string{"--values", "91911,90954"},
			expected: []string{"91911,90954"},
		},
		{
			name:     "other flags after values",
			args:     []string{"--values", "1", "2", "-d", "3"},
			expected: []string{"1", "2"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fs, flags, err := parseFlags(test.args)
			require.NoError(t, err)
			assert.True(t, fs.Changed("values"))
			assert.Equal(t, test.expected, flags.values)
		})
	}
}

func TestParseFlagsStructuredValue(t *testing.T) {
	_, flags, err := parseFlags([]string{"--values", `{"b":2,"a":1}`, "[1,2]"})
	require.NoError(t, err)
	require.Len(t, flags.values, 2)
	first := block.ParsePayload(flags.values[0])
	assert.Equal(t, block.KindStructured, first.Kind())
	assert.Equal(t, `{"a":1,"b":2}`, first.Canonical())
	assert.Equal(t, block.KindStructured, block.ParsePayload(flags.values[1]).Kind())
}

func TestParseFlagsUnexpectedArguments(t *testing.T) {
	_, _, err := parseFlags([]string{"-d", "3", "stray"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected arguments: stray")
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Output.Path = "keep.json"
	cfg.Chain.Difficulty = 5
	cfg.Chain.Values = []string{"9"}
	fs, flags, err := parseFlags([]string{
		"-d", "3",
		"--hash", "blake2b-256",
		"--legacy-payloads",
		"-w", "2",
	})
	require.NoError(t, err)
	applyFlags(fs, flags, cfg)
	assert.Equal(t, 3, cfg.Chain.Difficulty)
	assert.Equal(t, "blake2b-256", cfg.Chain.HashAlgorithm)
	assert.True(t, cfg.Chain.LegacyPayloads)
	assert.Equal(t, 2, cfg.Miner.WorkerCount)
	// Flags that weren't given leave the config alone
	assert.Equal(t, "keep.json", cfg.Output.Path)
	assert.Equal(t, []string{"9"}, cfg.Chain.Values)
}

func TestRunAndVerifyFile(t *testing.T) {
	cfg := config.GetConfig()
	saved := *cfg
	t.Cleanup(func() { *cfg = saved })
	outDir := t.TempDir()
	cfg.Chain.Difficulty = 1
	cfg.Chain.Values = []string{"1", "hello", `{"a":1}`}
	cfg.Miner.WorkerCount = 2
	cfg.Miner.HashRateInterval = 0
	cfg.Output.Path = filepath.Join(outDir, "chain.json")
	cfg.Output.Print = true
	cfg.Storage.Directory = filepath.Join(outDir, "db")

	var runOut bytes.Buffer
	require.NoError(t, run(context.Background(), &runOut))
	assert.Contains(t, runOut.String(), "--- Block #3 ---")
	assert.Contains(t, runOut.String(), "Blocks created (including genesis): 4")
	assert.Contains(t, runOut.String(), "Chain verification: OK")
	assert.Contains(t, runOut.String(), "Block hashes committed: 4")

	okBefore := verificationCount(t, "ok")
	var verifyOut bytes.Buffer
	ok, err := verifyFile(&verifyOut, cfg.Output.Path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, verifyOut.String(), "Chain verification: OK")
	assert.Contains(t, verifyOut.String(), "Stored chain: matches")
	assert.Equal(t, okBefore+1, verificationCount(t, "ok"))

	// Turning the number payload into a string keeps the text but not the hash
	raw, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"payload": 1,`)
	tamperedPath := filepath.Join(outDir, "tampered.json")
	tampered := strings.Replace(string(raw), `"payload": 1,`, `"payload": "1",`, 1)
	require.NoError(t, os.WriteFile(tamperedPath, []byte(tampered), 0o644))

	failBefore := verificationCount(t, "fail")
	verifyOut.Reset()
	ok, err = verifyFile(&verifyOut, tamperedPath)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, verifyOut.String(), "Chain verification: FAIL")
	assert.Equal(t, failBefore+1, verificationCount(t, "fail"))
}

func TestVerifyFileWithoutStoredChain(t *testing.T) {
	cfg := config.GetConfig()
	saved := *cfg
	t.Cleanup(func() { *cfg = saved })
	outDir := t.TempDir()
	cfg.Chain.Difficulty = 0
	cfg.Chain.Values = nil
	cfg.Output.Path = filepath.Join(outDir, "chain.json")
	cfg.Output.Print = false
	cfg.Storage.Directory = ""
	require.NoError(t, run(context.Background(), &bytes.Buffer{}))

	cfg.Storage.Directory = filepath.Join(outDir, "empty-db")
	var out bytes.Buffer
	ok, err := verifyFile(&out, cfg.Output.Path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "Stored chain: differs (no chain has been stored)")
}

func TestVerifyFileMissing(t *testing.T) {
	ok, err := verifyFile(&bytes.Buffer{}, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.False(t, ok)
}

func verificationCount(t *testing.T, result string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "hashchain_chain_verifications_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
