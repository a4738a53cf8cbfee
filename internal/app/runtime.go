package app

import (
	"log/slog"
	"os"
	"sync"
)

// TestModeEnv makes the binaries return before touching Postgres or Redis.
const TestModeEnv = "INVOICING_TEST_MODE"

var (
	testModeMu  sync.Mutex
	testMode    bool
	testModeSet bool
)

// InTestMode reports whether INVOICING_TEST_MODE=1. The value is read once
// and cached until RefreshTestMode.
func InTestMode() bool {
	testModeMu.Lock()
	defer testModeMu.Unlock()
	if !testModeSet {
		testMode = os.Getenv(TestModeEnv) == "1"
		testModeSet = true
	}
	return testMode
}

// RefreshTestMode re-reads the environment on the next InTestMode call.
func RefreshTestMode() {
	testModeMu.Lock()
	testModeSet = false
	testModeMu.Unlock()
}

// SkipStartup logs and returns true when binary should not start in test mode.
func SkipStartup(logger *slog.Logger, binary string) bool {
	if !InTestMode() {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode: skipping startup", slog.String("binary", binary))
	return true
}
