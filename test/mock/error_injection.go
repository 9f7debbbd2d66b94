package mock

import (
	"sync"

	"k8s.io/klog/v2"
)

// ErrorMode defines the type of error to inject
type ErrorMode int

const (
	// ErrorModeNone indicates no error injection
	ErrorModeNone ErrorMode = iota
	// ErrorModeHostDown simulates "mount error(112): Host is down"
	ErrorModeHostDown
	// ErrorModeLogonFailure simulates the server rejecting credentials
	ErrorModeLogonFailure
	// ErrorModeNotPermitted simulates mounting without privileges
	ErrorModeNotPermitted
	// ErrorModeInvalidArgument simulates an unclassified mount.cifs failure
	ErrorModeInvalidArgument
)

// mount.cifs output for each error mode
var errorOutputs = map[ErrorMode]string{
	ErrorModeHostDown:        "mount error(112): Host is down\nRefer to the mount.cifs(8) manual page (e.g. man mount.cifs) and kernel log messages (dmesg)\n",
	ErrorModeLogonFailure:    "mount error(13): Permission denied\nRefer to the mount.cifs(8) manual page (e.g. man mount.cifs) and kernel log messages (dmesg)\n",
	ErrorModeNotPermitted:    "mount error(1): Operation not permitted\nRefer to the mount.cifs(8) manual page (e.g. man mount.cifs) and kernel log messages (dmesg)\n",
	ErrorModeInvalidArgument: "mount error(22): Invalid argument\nRefer to the mount.cifs(8) manual page (e.g. man mount.cifs) and kernel log messages (dmesg)\n",
}

// ErrorInjector manages error injection for testing
type ErrorInjector struct {
	mode         ErrorMode
	operationNum int
	triggerAfter int
	mu           sync.Mutex // Protect operation counter
}

// NewErrorInjector creates a new error injector from configuration
func NewErrorInjector(config MockSMBConfig) *ErrorInjector {
	return &ErrorInjector{
		mode:         ParseErrorMode(config.ErrorMode),
		triggerAfter: config.ErrorAfterN,
	}
}

// ParseErrorMode converts string error mode to ErrorMode constant
func ParseErrorMode(s string) ErrorMode {
	switch s {
	case "host_down":
		return ErrorModeHostDown
	case "logon_failure":
		return ErrorModeLogonFailure
	case "not_permitted":
		return ErrorModeNotPermitted
	case "invalid_argument":
		return ErrorModeInvalidArgument
	case "none", "":
		return ErrorModeNone
	default:
		klog.Warningf("Unknown error mode %q, using none", s)
		return ErrorModeNone
	}
}

// SetMode switches the injection mode and resets the counter
func (e *ErrorInjector) SetMode(mode ErrorMode, triggerAfter int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.triggerAfter = triggerAfter
	e.operationNum = 0
}

// ShouldFailMount returns whether a mount should fail and the mount.cifs output
func (e *ErrorInjector) ShouldFailMount() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ErrorModeNone {
		return false, ""
	}

	e.operationNum++
	if e.operationNum <= e.triggerAfter {
		return false, ""
	}
	return true, errorOutputs[e.mode]
}

// Reset resets the operation counter for test isolation
func (e *ErrorInjector) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operationNum = 0
}
