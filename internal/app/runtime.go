package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv disables runtime side effects of the binaries when set to "1".
const TestModeEnv = "SERVICELINE_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether servers and workers should skip startup.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
