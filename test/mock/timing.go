package mock

import (
	"time"

	"k8s.io/klog/v2"
)

// TimingSimulator adds realistic delays to mock mount operations
type TimingSimulator struct {
	enabled      bool
	mountDelay   time.Duration
	unmountDelay time.Duration
	probeLatency time.Duration
}

// NewTimingSimulator creates a new timing simulator from configuration
func NewTimingSimulator(config MockSMBConfig) *TimingSimulator {
	return &TimingSimulator{
		enabled:      config.RealisticTiming,
		mountDelay:   time.Duration(config.MountDelayMs) * time.Millisecond,
		unmountDelay: time.Duration(config.UnmountDelayMs) * time.Millisecond,
		probeLatency: time.Duration(config.ProbeLatencyMs) * time.Millisecond,
	}
}

// SimulateOperation sleeps for the configured delay of opType (mount, unmount or probe)
func (t *TimingSimulator) SimulateOperation(opType string) {
	if !t.enabled {
		return
	}

	var delay time.Duration
	switch opType {
	case "mount":
		delay = t.mountDelay
	case "unmount":
		delay = t.unmountDelay
	case "probe":
		delay = t.probeLatency
	default:
		return
	}

	if delay == 0 {
		return
	}

	klog.V(4).Infof("Mock SMB timing: %s operation simulation %dms", opType, delay.Milliseconds())
	time.Sleep(delay)
}
