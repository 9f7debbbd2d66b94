// Package scheduler runs the check-and-repair cycle on a fixed interval and
// reports liveness to systemd.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

// CycleFunc is one scheduled invocation. ctx carries the invocation timeout.
type CycleFunc func(ctx context.Context) error

// Notifier receives service manager notifications
type Notifier interface {
	Notify(state string)
}

// SystemdNotifier sends sd_notify messages. Outside systemd it does nothing.
type SystemdNotifier struct{}

// Notify implements Notifier
func (SystemdNotifier) Notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		klog.Warningf("sd_notify %s failed: %v", state, err)
		return
	}
	klog.V(5).Infof("sd_notify %s sent=%v", state, sent)
}

// Scheduler invokes a CycleFunc every Interval until its context ends
type Scheduler struct {
	// Interval between the end of one cycle and the start of the next
	Interval time.Duration

	// Timeout bounds each cycle. Zero means Interval/2.
	Timeout time.Duration

	// Notifier defaults to SystemdNotifier
	Notifier Notifier
}

// New creates a Scheduler for interval
func New(interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", interval)
	}
	return &Scheduler{Interval: interval, Notifier: SystemdNotifier{}}, nil
}

func (s *Scheduler) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return s.Interval / 2
}

func (s *Scheduler) notify(state string) {
	if s.Notifier != nil {
		s.Notifier.Notify(state)
	}
}

// Run blocks until ctx is done. The first cycle starts immediately. A failed
// cycle is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context, fn CycleFunc) {
	timeout := s.timeout()
	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 && wd < s.Interval+timeout {
		klog.Warningf("systemd watchdog interval %v is shorter than one cycle (%v + %v timeout)", wd, s.Interval, timeout)
	}

	klog.Infof("Starting check-and-repair loop (interval %v, timeout %v)", s.Interval, timeout)

	cycle := 0
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		cycle++
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := fn(runCtx)
		cancel()

		if err != nil {
			klog.Errorf("Cycle %d failed after %v: %v", cycle, time.Since(start), err)
		} else {
			klog.V(4).Infof("Cycle %d completed in %v", cycle, time.Since(start))
		}

		if cycle == 1 {
			s.notify(daemon.SdNotifyReady)
		}
		s.notify(daemon.SdNotifyWatchdog)
	}, s.Interval)

	s.notify(daemon.SdNotifyStopping)
	klog.Infof("Check-and-repair loop stopped after %d cycle(s)", cycle)
}
