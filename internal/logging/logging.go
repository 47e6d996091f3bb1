// Package logging wraps go.uber.org/zap. The process entry point builds one
// structured logger and passes it explicitly to the helpers that log,
// instead of reaching for a package-level global. The teacher's own CLI detects its run mode from an
// env var (internal/cli.DetectMode, ARCSIGN_MODE); this package follows
// the same pattern for choosing between a human-readable development
// encoder and a JSON production encoder.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Env is the deployment mode, mirroring the teacher's Mode type.
type Env string

const (
	EnvDevelopment Env = "development"
	EnvProduction  Env = "production"
)

// DetectEnv reads LEDGERFLOW_ENV (case-insensitive), defaulting to
// EnvDevelopment for unset or unrecognized values — the same
// default-to-safe-default posture as the teacher's DetectMode.
func DetectEnv() Env {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGERFLOW_ENV")))
	if v == "production" || v == "prod" {
		return EnvProduction
	}
	return EnvDevelopment
}

// New builds a *zap.Logger appropriate for env. Production uses the JSON
// encoder at info level; development uses the human-readable console
// encoder at debug level.
func New(env Env) (*zap.Logger, error) {
	var cfg zap.Config
	if env == EnvProduction {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}

// Must is New, panicking on failure — acceptable only at process
// bootstrap (cmd/ledgerflow/main.go), never inside the core.
func Must(env Env) *zap.Logger {
	l, err := New(env)
	if err != nil {
		panic(err)
	}
	return l
}
