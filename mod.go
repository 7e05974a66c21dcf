// Package vault publishes gated content: creators encrypt files under an
// on-chain policy, store the ciphertext on a blob network and let allowlisted
// addresses or subscribers fetch and decrypt them with keys released by a set
// of threshold key servers.
//
// The package only holds the process-wide logger and the list of Prometheus
// collectors that components register themselves into.
package vault

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const envLogLevel = "VAULT_LOG_LEVEL"

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(levelFromEnv())

// PromCollectors exposes Prometheus collectors created by the components. A
// server can register them to expose the metrics.
var PromCollectors []prometheus.Collector

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(os.Getenv(envLogLevel))
	if err != nil || os.Getenv(envLogLevel) == "" {
		return zerolog.InfoLevel
	}

	return lvl
}
