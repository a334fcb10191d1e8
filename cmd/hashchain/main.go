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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/blinklabs-io/hashchain/internal/block"
	"github.com/blinklabs-io/hashchain/internal/chain"
	"github.com/blinklabs-io/hashchain/internal/config"
	"github.com/blinklabs-io/hashchain/internal/logging"
	"github.com/blinklabs-io/hashchain/internal/metrics"
	"github.com/blinklabs-io/hashchain/internal/miner"
	"github.com/blinklabs-io/hashchain/internal/report"
	"github.com/blinklabs-io/hashchain/internal/storage"
	"github.com/blinklabs-io/hashchain/internal/version"
)

type cmdlineFlags struct {
	configFile     string
	difficulty     int
	outputPath     string
	values         []string
	genesisData    string
	print          bool
	workers        int
	timeout        time.Duration
	hash           string
	legacyPayloads bool
	storageDir     string
	verifyFile     string
	version        bool
}

// parseFlags parses the command line. Values for --values may be given as
// repeated flags or as trailing arguments after the first one, so
// "--values 1 2 3" yields three values.
func parseFlags(args []string) (*pflag.FlagSet, *cmdlineFlags, error) {
	flags := &cmdlineFlags{}
	fs := pflag.NewFlagSet("hashchain", pflag.ContinueOnError)
	fs.StringVar(&flags.configFile, "config", "", "path to config file to load")
	fs.IntVarP(&flags.difficulty, "difficulty", "d", config.DefaultDifficulty, "number of leading zero hex characters required in each block hash")
	fs.StringVarP(&flags.outputPath, "out", "o", config.DefaultOutputPath, "path of the JSON chain export")
	fs.StringArrayVarP(&flags.values, "values", "v", nil, "payloads for the blocks after genesis")
	fs.StringVar(&flags.genesisData, "genesis-data", config.DefaultGenesisData, "payload of the genesis block")
	fs.BoolVar(&flags.print, "print", false, "print every block after mining")
	fs.IntVarP(&flags.workers, "workers", "w", 0, "number of nonce search workers")
	fs.DurationVar(&flags.timeout, "timeout", 0, "give up mining after this long (0 for no limit)")
	fs.StringVar(&flags.hash, "hash", "", "hash function (sha256 or blake2b-256)")
	fs.BoolVar(&flags.legacyPayloads, "legacy-payloads", false, "hash payloads without a variant marker, as the Python tooling did")
	fs.StringVar(&flags.storageDir, "storage-dir", "", "badger database directory for exporting mined blocks")
	fs.StringVar(&flags.verifyFile, "verify-file", "", "verify an existing chain export instead of mining")
	fs.BoolVar(&flags.version, "version", false, "show version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		if !fs.Changed("values") {
			return nil, nil, fmt.Errorf(
				"unexpected arguments: %s",
				strings.Join(fs.Args(), " "),
			)
		}
		flags.values = append(flags.values, fs.Args()...)
	}
	return fs, flags, nil
}

// applyFlags overrides config file and environment values with any flags that
// were explicitly provided
func applyFlags(fs *pflag.FlagSet, flags *cmdlineFlags, cfg *config.Config) {
	if fs.Changed("difficulty") {
		cfg.Chain.Difficulty = flags.difficulty
	}
	if fs.Changed("out") {
		cfg.Output.Path = flags.outputPath
	}
	if fs.Changed("values") {
		cfg.Chain.Values = flags.values
	}
	if fs.Changed("genesis-data") {
		cfg.Chain.GenesisData = flags.genesisData
	}
	if fs.Changed("print") {
		cfg.Output.Print = flags.print
	}
	if fs.Changed("workers") {
		cfg.Miner.WorkerCount = flags.workers
	}
	if fs.Changed("timeout") {
		cfg.Miner.Timeout = flags.timeout
	}
	if fs.Changed("hash") {
		cfg.Chain.HashAlgorithm = flags.hash
	}
	if fs.Changed("legacy-payloads") {
		cfg.Chain.LegacyPayloads = flags.legacyPayloads
	}
	if fs.Changed("storage-dir") {
		cfg.Storage.Directory = flags.storageDir
	}
}

func main() {
	fs, flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("Failed to parse command line: %s\n", err)
		os.Exit(1)
	}

	if flags.version {
		fmt.Printf("hashchain %s\n", version.GetVersionString())
		os.Exit(0)
	}

	// Load config
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}
	applyFlags(fs, flags, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %s\n", err)
		os.Exit(1)
	}

	// Configure logging
	logging.Setup()
	logger := logging.GetLogger()
	// Sync logger on exit
	defer func() {
		if err := logger.Sync(); err != nil {
			// We don't actually care about the error here, but we have to do something
			// to appease the linter
			return
		}
	}()

	logger.Infof("hashchain %s started", version.GetVersionString())

	// Match GOMAXPROCS to any container CPU quota before starting workers
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Infof)); err != nil {
		logger.Warnf("failed to set GOMAXPROCS: %s", err)
	}

	if err := metrics.Start(); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if flags.verifyFile != "" {
		ok, err := verifyFile(os.Stdout, flags.verifyFile)
		if err != nil {
			logger.Errorf("%s", err)
		}
		if err != nil || !ok {
			// Deferred functions don't run on os.Exit
			_ = logger.Sync()
			stop()
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, os.Stdout); err != nil {
		logger.Errorf("%s", err)
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}

// run mines the configured chain, exports it and writes the summary to w
func run(ctx context.Context, w io.Writer) error {
	cfg := config.GetConfig()
	logger := logging.GetLogger()

	m, err := miner.NewFromConfig()
	if err != nil {
		return err
	}

	payloads := make([]block.Payload, 0, len(cfg.Chain.Values))
	for _, value := range cfg.Chain.Values {
		payloads = append(payloads, block.ParsePayload(value))
	}

	builderOpts := []chain.BuilderOptionFunc{}
	var store *storage.Storage
	if cfg.Storage.Directory != "" {
		store = storage.GetStorage()
		if err := store.Load(); err != nil {
			return fmt.Errorf("failed to load storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Errorf("failed to close storage: %s", err)
			}
		}()
		if err := store.Reset(); err != nil {
			return fmt.Errorf("failed to reset storage: %w", err)
		}
		builderOpts = append(builderOpts, chain.WithObserver(store.PutBlock))
	}

	if cfg.Miner.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Miner.Timeout)
		defer cancel()
	}

	logger.Infof(
		"mining %d blocks at difficulty %d using %s with %d worker(s)",
		len(payloads)+1,
		cfg.Chain.Difficulty,
		m.Hasher(),
		cfg.Miner.WorkerCount,
	)
	startTime := time.Now()
	blocks, err := chain.NewBuilder(m, builderOpts...).Build(
		ctx,
		block.String(cfg.Chain.GenesisData),
		payloads,
		cfg.Chain.Difficulty,
	)
	if err != nil {
		return err
	}
	miningTime := time.Since(startTime)

	verified := chain.NewVerifier(m.Hasher()).Verify(blocks, cfg.Chain.Difficulty)

	if err := chain.WriteFile(cfg.Output.Path, blocks); err != nil {
		return fmt.Errorf("failed to write chain export: %w", err)
	}

	summary := report.Summary{
		BlockCount:   len(blocks),
		MiningTime:   miningTime,
		Verified:     verified,
		OutputPath:   cfg.Output.Path,
		HashCount:    m.HashCount(),
		Difficulty:   cfg.Chain.Difficulty,
		HashFunction: m.Hasher().String(),
	}
	if store != nil {
		tip := blocks[len(blocks)-1]
		err := store.UpdateChainMeta(storage.ChainMeta{
			Difficulty:     cfg.Chain.Difficulty,
			HashAlgorithm:  string(m.Hasher().Algorithm()),
			LegacyPayloads: m.Hasher().LegacyPayloads(),
			BlockCount:     uint64(len(blocks)),
			TipHash:        tip.Hash,
		})
		if err != nil {
			return fmt.Errorf("failed to update chain metadata: %w", err)
		}
		summary.TrieRoot = store.TrieRoot()
		summary.StoredHashes = store.HashCount()
	}

	if cfg.Output.Print {
		if err := report.RenderChain(w, blocks); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return report.WriteSummary(w, summary)
}

// verifyFile checks a previously exported chain against the configured
// difficulty and hash function, and against the badger sink when one is
// configured. It reports whether the chain is intact.
func verifyFile(w io.Writer, path string) (bool, error) {
	cfg := config.GetConfig()
	logger := logging.GetLogger()

	blocks, err := chain.ReadFile(path)
	if err != nil {
		return false, err
	}
	m, err := miner.NewFromConfig()
	if err != nil {
		return false, err
	}
	result := report.Verification{
		Path:         path,
		BlockCount:   len(blocks),
		Difficulty:   cfg.Chain.Difficulty,
		HashFunction: m.Hasher().String(),
		Err: chain.NewVerifier(m.Hasher()).Audit(
			blocks,
			cfg.Chain.Difficulty,
		),
	}
	if result.Err != nil {
		logger.Warnf("verification of %s failed: %s", path, result.Err)
	}

	if cfg.Storage.Directory != "" {
		store := storage.GetStorage()
		if err := store.Load(); err != nil {
			return false, fmt.Errorf("failed to load storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Errorf("failed to close storage: %s", err)
			}
		}()
		result.StoreChecked = true
		result.StoreErr = store.Compare(blocks)
	}

	if err := report.WriteVerification(w, result); err != nil {
		return false, err
	}
	return result.Err == nil, nil
}
