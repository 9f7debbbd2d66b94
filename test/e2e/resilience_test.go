package e2e

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/mountsup/pkg/credentials"
	"git.srvlab.io/whiskey/mountsup/pkg/supervisor"
	"git.srvlab.io/whiskey/mountsup/test/mock"
)

var _ = Describe("Failure Handling", func() {
	Describe("Unreachable file server", func() {
		It("fails with Unreachable and leaves the mount point unmounted", func() {
			spec := shareSpec(testShare, "unreachable", testCredentialRef)
			Expect(smbServer.SetOnline(false)).To(Succeed())

			err := sup.EnsureMounted(ctx, spec)
			expectKind(err, supervisor.KindUnreachable)
			Expect(supervisor.ExitCode(err)).To(Equal(1))

			Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Unmounted))
			Expect(mounter.GetMountCalls()).To(BeEmpty(), "no mount is attempted against an unreachable server")
		})

		It("recovers on a later cycle once the server is back", func() {
			spec := shareSpec(testShare, "unreachable-recover", testCredentialRef)
			Expect(smbServer.SetOnline(false)).To(Succeed())
			expectKind(sup.CheckAndRepair(ctx, spec), supervisor.KindUnreachable)

			By("Bringing the server back")
			Expect(smbServer.SetOnline(true)).To(Succeed())
			Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
			Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Mounted))
		})

		It("detaches a mount whose server went away", func() {
			spec := shareSpec(testShare, "server-lost", testCredentialRef)
			Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())

			Expect(smbServer.SetOnline(false)).To(Succeed())
			report := sup.Inspect(ctx, spec)
			Expect(report.State).To(Equal(supervisor.Degraded))
			Expect(report.Reason).To(Equal(supervisor.ReasonProbeFailed))

			expectKind(sup.CheckAndRepair(ctx, spec), supervisor.KindUnreachable)
			Expect(mounter.GetUnmountCalls()).To(HaveLen(1))
			Expect(mounter.GetUnmountCalls()[0].Lazy).To(BeTrue())
			Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Unmounted))
		})
	})

	Describe("Credentials", func() {
		It("fails with AuthFailed for an unknown reference and does not retry", func() {
			spec := shareSpec(testShare, "auth-missing", missingRef)

			err := sup.EnsureMounted(ctx, spec)
			expectKind(err, supervisor.KindAuthFailed)
			Expect(errors.Is(err, credentials.ErrNotFound)).To(BeTrue())
			Expect(mounter.GetMountCalls()).To(BeEmpty())
		})

		It("fails with AuthFailed when the server rejects the password", func() {
			spec := shareSpec(testShare, "auth-rejected", wrongPasswordRef)

			err := sup.EnsureMounted(ctx, spec)
			expectKind(err, supervisor.KindAuthFailed)
			Expect(supervisor.ExitCode(err)).To(Equal(2))
			Expect(mounter.GetMountCalls()).To(HaveLen(1))
			Expect(err.Error()).NotTo(ContainSubstring("nope"), "passwords never appear in errors")

			Expect(counterValue(metrics, "mountsup_security_events_total",
				map[string]string{"category": "authentication", "outcome": "denied"})).To(Equal(1.0))
		})

		It("leaves a mismatched mount alone when credentials cannot be resolved", func() {
			spec := shareSpec(testShare, "auth-keep", missingRef)
			mounter.AddEntry(spec.MountPoint, "//"+smbServer.Address()+"/"+otherShare, "cifs")

			expectKind(sup.CheckAndRepair(ctx, spec), supervisor.KindAuthFailed)
			Expect(mounter.GetUnmountCalls()).To(BeEmpty())
			Expect(mounter.EntryCount(spec.MountPoint)).To(Equal(1))
		})

		It("still mounts with a group-readable credentials file but reports it", func() {
			const ref = "ref-loose"
			writeCredentialFile(ref, testCredentialFile, 0644)
			spec := shareSpec(testShare, "auth-loose", ref)

			Expect(sup.EnsureMounted(ctx, spec)).To(Succeed())
			Expect(counterValue(metrics, "mountsup_security_events_total",
				map[string]string{"category": "authentication", "outcome": "unknown"})).To(BeNumerically(">=", 1))
		})
	})

	Describe("Credential rotation", func() {
		It("picks up rotated credentials on the next cycle", func() {
			creds := mock.NewMockStore()
			creds.Set("rotating", credentials.Credentials{Username: testUsername, Password: "old", Domain: "CORP"})

			rotating, err := supervisor.New(supervisor.Config{
				Mounter:      mounter,
				Table:        mounter,
				Prober:       mounter,
				Store:        creds,
				Reachability: supervisor.DialReachability(time.Second),
				Metrics:      metrics,
			})
			Expect(err).NotTo(HaveOccurred())
			spec := shareSpec(testShare, "rotation", "rotating")

			expectKind(rotating.CheckAndRepair(ctx, spec), supervisor.KindAuthFailed)

			By("Rotating the password in the store")
			creds.Set("rotating", credentials.Credentials{Username: testUsername, Password: testPassword, Domain: "CORP"})
			Expect(rotating.CheckAndRepair(ctx, spec)).To(Succeed())
			Expect(creds.Resolves()).To(Equal(2))

			calls := mounter.GetMountCalls()
			Expect(calls).To(HaveLen(2))
			Expect(calls[1].Options).To(ContainElement("domain=CORP"))

			By("Removing the reference leaves the healthy mount alone")
			creds.Delete("rotating")
			Expect(rotating.CheckAndRepair(ctx, spec)).To(Succeed())
			Expect(creds.Resolves()).To(Equal(2), "a healthy mount needs no credentials")
		})
	})

	Describe("Injected mount failures", func() {
		DescribeTable("classifies mount.cifs failures",
			func(mode mock.ErrorMode, kind supervisor.ErrorKind, exitCode int) {
				spec := shareSpec(testShare, "inject", testCredentialRef)
				mounter.ErrorInjector().SetMode(mode, 0)
				DeferCleanup(mounter.ClearErrors)

				err := sup.CheckAndRepair(ctx, spec)
				expectKind(err, kind)
				Expect(supervisor.ExitCode(err)).To(Equal(exitCode))
				Expect(mounter.EntryCount(spec.MountPoint)).To(Equal(0))

				By("Clearing the failure, the next cycle succeeds")
				mounter.ClearErrors()
				Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
			},
			Entry("host down", mock.ErrorModeHostDown, supervisor.KindUnreachable, 1),
			Entry("logon failure", mock.ErrorModeLogonFailure, supervisor.KindAuthFailed, 2),
			Entry("not permitted", mock.ErrorModeNotPermitted, supervisor.KindPermissionDenied, 3),
			Entry("invalid argument", mock.ErrorModeInvalidArgument, supervisor.KindUnknown, 4),
		)

		It("reports an unreadable mount table as Degraded and fails the repair with Unknown", func() {
			spec := shareSpec(testShare, "table-error", testCredentialRef)
			mounter.SetTableError(errors.New("mount table read timed out after 10s"))
			DeferCleanup(mounter.ClearErrors)

			report := sup.Inspect(ctx, spec)
			Expect(report.State).To(Equal(supervisor.Degraded))
			Expect(report.Reason).To(Equal(supervisor.ReasonMountTableUnavailable))

			expectKind(sup.CheckAndRepair(ctx, spec), supervisor.KindUnknown)
			Expect(mounter.GetMountCalls()).To(BeEmpty())
		})
	})
})
