// Copyright 2023 Blink Labs, LLC.
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

package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/hashchain/internal/config"
	"github.com/blinklabs-io/hashchain/internal/logging"
)

const (
	namespace = "hashchain"

	resultOK   = "ok"
	resultFail = "fail"
)

var (
	hashesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hashes_processed_total",
		Help:      "The total number of hashes processed",
	})

	blocksMined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_mined_total",
		Help:      "The total number of blocks mined",
	})

	blockMiningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "block_mining_duration_seconds",
		Help:      "Time spent searching for the nonce of a single block.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
	})

	chainVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_verifications_total",
		Help:      "Count of chain verifications by result.",
	}, []string{"result"})
)

func AddHashes(count uint64) {
	hashesProcessed.Add(float64(count))
}

func ObserveBlockMined(elapsed time.Duration) {
	blocksMined.Inc()
	blockMiningDuration.Observe(elapsed.Seconds())
}

func ObserveVerification(ok bool) {
	result := resultOK
	if !ok {
		result = resultFail
	}
	chainVerifications.WithLabelValues(result).Inc()
}

// Start serves the metrics endpoint in the background when a listen port is
// configured
func Start() error {
	cfg := config.GetConfig()
	if cfg.Metrics.ListenPort == 0 {
		return nil
	}
	logger := logging.GetLogger()
	listenAddr := fmt.Sprintf(
		"%s:%d",
		cfg.Metrics.ListenAddress,
		cfg.Metrics.ListenPort,
	)
	// Bind synchronously so that a bad address is reported to the caller
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to start metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics listener failed: %s", err)
		}
	}()
	logger.Infof("serving metrics on %s", listenAddr)
	return nil
}
