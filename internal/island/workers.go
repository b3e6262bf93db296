package island

import (
	"os"
	"runtime"
	"strconv"
)

// WorkersFromEnv returns the archipelago's default process-parallel
// worker count: the NUM_THREADS environment variable if it parses as
// a positive integer, otherwise runtime.NumCPU(). Read once by the
// caller at startup, matching the spec's "environment variable sets
// the default archipelago worker count" (§6.3).
func WorkersFromEnv() int {
	if v := os.Getenv("NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}
