package e2e

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/mountsup/pkg/scheduler"
	"git.srvlab.io/whiskey/mountsup/pkg/supervisor"
)

// recordingNotifier captures sd_notify states sent by the scheduler
type recordingNotifier struct {
	mu     sync.Mutex
	states []string
}

func (n *recordingNotifier) Notify(state string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
}

func (n *recordingNotifier) get() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.states...)
}

var _ = Describe("Watch Mode", func() {
	It("keeps retrying on its interval until the server comes back", func() {
		spec := shareSpec(testShare, "watch", testCredentialRef)
		Expect(smbServer.SetOnline(false)).To(Succeed())

		notifier := &recordingNotifier{}
		s := &scheduler.Scheduler{
			Interval: 50 * time.Millisecond,
			Timeout:  time.Second,
			Notifier: notifier,
		}

		var cycles, failures atomic.Int32
		watchCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			s.Run(watchCtx, func(cycleCtx context.Context) error {
				cycles.Add(1)
				err := sup.CheckAndRepair(cycleCtx, spec)
				if err != nil {
					failures.Add(1)
				}
				return err
			})
		}()
		DeferCleanup(func() {
			stop()
			<-done
		})

		By("Failing while the server is offline")
		Eventually(failures.Load).WithTimeout(5 * time.Second).WithPolling(pollInterval).Should(BeNumerically(">=", 2))
		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Unmounted))
		Expect(notifier.get()).To(ContainElement(daemon.SdNotifyReady))

		By("Mounting on a later cycle once the server is back")
		Expect(smbServer.SetOnline(true)).To(Succeed())
		Eventually(func() supervisor.MountState {
			return sup.CheckHealth(ctx, spec)
		}).WithTimeout(5 * time.Second).WithPolling(pollInterval).Should(Equal(supervisor.Mounted))

		By("Leaving a healthy mount alone on further cycles")
		mounts := len(mounter.GetMountCalls())
		seen := cycles.Load()
		Eventually(cycles.Load).WithTimeout(5 * time.Second).WithPolling(pollInterval).Should(BeNumerically(">=", seen+2))
		Expect(mounter.GetMountCalls()).To(HaveLen(mounts))

		By("Stopping")
		stop()
		Eventually(done).WithTimeout(5 * time.Second).Should(BeClosed())

		states := notifier.get()
		Expect(states[0]).To(Equal(daemon.SdNotifyReady))
		Expect(states[len(states)-1]).To(Equal(daemon.SdNotifyStopping))
		Expect(states).To(ContainElement(daemon.SdNotifyWatchdog))
	})
})
