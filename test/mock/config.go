// Package mock provides an environment-configurable mock SMB file server and
// an in-memory mount simulation for testing the supervisor end to end.
//
// Environment Variables:
//
// Timing Control:
//   - MOCK_SMB_REALISTIC_TIMING: Enable realistic timing simulation (default: false)
//   - MOCK_SMB_MOUNT_DELAY_MS: Mount operation delay in ms (default: 300)
//   - MOCK_SMB_UNMOUNT_DELAY_MS: Unmount operation delay in ms (default: 100)
//   - MOCK_SMB_PROBE_LATENCY_MS: Probe latency on a healthy mount in ms (default: 20)
//
// Error Injection:
//   - MOCK_SMB_ERROR_MODE: Error injection mode (none|host_down|logon_failure|not_permitted|invalid_argument)
//   - MOCK_SMB_ERROR_AFTER_N: Fail after N mount operations (default: 0 = immediate)
package mock

import (
	"os"
	"strconv"
)

// MockSMBConfig holds configuration for mock SMB server and mounter behavior
type MockSMBConfig struct {
	// Timing control
	RealisticTiming bool // MOCK_SMB_REALISTIC_TIMING (default: false)
	MountDelayMs    int  // MOCK_SMB_MOUNT_DELAY_MS (default: 300)
	UnmountDelayMs  int  // MOCK_SMB_UNMOUNT_DELAY_MS (default: 100)
	ProbeLatencyMs  int  // MOCK_SMB_PROBE_LATENCY_MS (default: 20)

	// Error injection
	ErrorMode   string // MOCK_SMB_ERROR_MODE
	ErrorAfterN int    // MOCK_SMB_ERROR_AFTER_N (fail after N operations, default: 0 = immediate)
}

// LoadConfigFromEnv loads mock SMB configuration from environment variables
func LoadConfigFromEnv() MockSMBConfig {
	return MockSMBConfig{
		RealisticTiming: getEnvBool("MOCK_SMB_REALISTIC_TIMING", false),
		MountDelayMs:    getEnvInt("MOCK_SMB_MOUNT_DELAY_MS", 300),
		UnmountDelayMs:  getEnvInt("MOCK_SMB_UNMOUNT_DELAY_MS", 100),
		ProbeLatencyMs:  getEnvInt("MOCK_SMB_PROBE_LATENCY_MS", 20),
		ErrorMode:       getEnvString("MOCK_SMB_ERROR_MODE", "none"),
		ErrorAfterN:     getEnvInt("MOCK_SMB_ERROR_AFTER_N", 0),
	}
}

// getEnvBool reads a boolean environment variable with a default value
func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// getEnvInt reads an integer environment variable with a default value
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvString reads a string environment variable with a default value
func getEnvString(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}
