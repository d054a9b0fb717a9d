// Package envconfig reads runtime configuration from environment variables.
//
// Settings:
//   - ZT_VERBOSE: enables progress printing in the CLI surfaces (spec §6).
//   - ZT_WORKERS: overrides the index-source worker-pool size.
//   - ZT_INDEX_DIR: default folder for persisted frame indices.
package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Var returns an environment variable value, trimming surrounding
// whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// Verbose reports whether ZT_VERBOSE enables progress printing.
func Verbose() bool {
	if s := Var("ZT_VERBOSE"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return true
		}
		return b
	}
	return false
}

// Workers returns the worker-pool size for the index source.
// Defaults to GOMAXPROCS when ZT_WORKERS is unset or invalid.
func Workers() int {
	if s := Var("ZT_WORKERS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			slog.Warn("invalid ZT_WORKERS, using default", "value", s)
		} else {
			return n
		}
	}
	return runtime.GOMAXPROCS(0)
}

// IndexDir returns the default folder for persisted frame indices.
func IndexDir() string {
	if s := Var("ZT_INDEX_DIR"); s != "" {
		return s
	}
	return "."
}
