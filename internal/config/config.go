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

package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/blinklabs-io/hashchain/internal/hasher"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	DefaultGenesisData = "GENESIS"
	DefaultDifficulty  = 5
	DefaultOutputPath  = "out/simple_pow_blockchain.json"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Miner   MinerConfig   `yaml:"miner"`
	Chain   ChainConfig   `yaml:"chain"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Debug bool `yaml:"debug" envconfig:"LOGGING_DEBUG"`
}

type StorageConfig struct {
	// An empty directory disables the badger export sink
	Directory string `yaml:"dir" envconfig:"STORAGE_DIR"`
}

type MinerConfig struct {
	WorkerCount      int           `yaml:"workers"          envconfig:"WORKER_COUNT"`
	HashRateInterval int           `yaml:"hashRateInterval" envconfig:"HASH_RATE_INTERVAL"`
	ChunkSize        uint64        `yaml:"chunkSize"        envconfig:"MINER_CHUNK_SIZE"`
	Timeout          time.Duration `yaml:"timeout"          envconfig:"MINER_TIMEOUT"`
}

type ChainConfig struct {
	Difficulty    int      `yaml:"difficulty"     envconfig:"DIFFICULTY"`
	GenesisData   string   `yaml:"genesisData"    envconfig:"GENESIS_DATA"`
	Values        []string `yaml:"values"         envconfig:"CHAIN_VALUES"`
	HashAlgorithm string   `yaml:"hashAlgorithm"  envconfig:"HASH_ALGORITHM"`

	// Hash payloads without a variant marker, matching chains built by the
	// earlier Python tooling
	LegacyPayloads bool `yaml:"legacyPayloads" envconfig:"LEGACY_PAYLOADS"`
}

type OutputConfig struct {
	Path  string `yaml:"path"  envconfig:"OUTPUT_PATH"`
	Print bool   `yaml:"print" envconfig:"OUTPUT_PRINT"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"address" envconfig:"METRICS_LISTEN_ADDRESS"`
	// A zero port disables the metrics listener
	ListenPort uint `yaml:"port" envconfig:"METRICS_LISTEN_PORT"`
}

// Singleton config instance with default values
var globalConfig = newDefaultConfig()

func newDefaultConfig() *Config {
	return &Config{
		// The default worker config is somewhat conservative: worker count is set
		// to half of the available logical CPUs
		Miner: MinerConfig{
			WorkerCount:      max(1, runtime.NumCPU()/2),
			HashRateInterval: 60,
			ChunkSize:        4096,
		},
		Chain: ChainConfig{
			Difficulty:  DefaultDifficulty,
			GenesisData: DefaultGenesisData,
			Values: []string{
				"91911",
				"90954",
				"95590",
				"97390",
				"96578",
				"97211",
				"95090",
			},
			HashAlgorithm: string(hasher.AlgorithmSHA256),
		},
		Output: OutputConfig{
			Path: DefaultOutputPath,
		},
		Metrics: MetricsConfig{
			ListenAddress: "",
			ListenPort:    0,
		},
	}
}

func Load(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}

// Validate checks the config for values that would make mining impossible or
// meaningless. It must be called after any command-line overrides are applied.
func (c *Config) Validate() error {
	var errs []error
	if c.Chain.Difficulty < 0 || c.Chain.Difficulty > hasher.MaxDifficulty {
		errs = append(
			errs,
			fmt.Errorf(
				"difficulty must be between 0 and %d, got %d",
				hasher.MaxDifficulty,
				c.Chain.Difficulty,
			),
		)
	}
	if _, err := hasher.ParseAlgorithm(c.Chain.HashAlgorithm); err != nil {
		errs = append(errs, err)
	}
	if c.Miner.WorkerCount < 1 {
		errs = append(
			errs,
			fmt.Errorf("worker count must be at least 1, got %d", c.Miner.WorkerCount),
		)
	}
	if c.Miner.ChunkSize == 0 {
		errs = append(errs, errors.New("miner chunk size must be non-zero"))
	}
	if c.Miner.HashRateInterval < 0 {
		errs = append(
			errs,
			fmt.Errorf("hash rate interval must not be negative, got %d", c.Miner.HashRateInterval),
		)
	}
	if c.Miner.Timeout < 0 {
		errs = append(
			errs,
			fmt.Errorf("miner timeout must not be negative, got %s", c.Miner.Timeout),
		)
	}
	if c.Output.Path == "" {
		errs = append(errs, errors.New("output path must not be empty"))
	}
	return errors.Join(errs...)
}
