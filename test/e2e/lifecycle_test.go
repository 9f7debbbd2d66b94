package e2e

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/mountsup/pkg/supervisor"
)

var _ = Describe("Mount Lifecycle", func() {
	It("mounts a reachable share with valid credentials", func() {
		spec := shareSpec(testShare, "lifecycle-basic", testCredentialRef)

		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Unmounted))

		By("Ensuring the share is mounted")
		Expect(sup.EnsureMounted(ctx, spec)).To(Succeed())
		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Mounted))

		calls := mounter.GetMountCalls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Source).To(Equal("//" + smbServer.Address() + "/" + testShare))
		Expect(calls[0].FSType).To(Equal("cifs"))
		Expect(calls[0].Options).To(Equal([]string{"vers=3.0"}))
		Expect(calls[0].Username).To(Equal(testUsername))
		Expect(mounter.GetUnmountCalls()).To(BeEmpty(), "an empty mount point needs no unmount")
	})

	It("is idempotent when the share is already mounted", func() {
		spec := shareSpec(testShare, "lifecycle-idempotent", testCredentialRef)
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
		mountsBefore := len(mounter.GetMountCalls())

		By("Running two more check-and-repair cycles")
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())

		Expect(mounter.GetMountCalls()).To(HaveLen(mountsBefore))
		Expect(mounter.GetUnmountCalls()).To(BeEmpty())
		Expect(mounter.EntryCount(spec.MountPoint)).To(Equal(1))
	})

	It("handles the reference scenario: one mount on the first check, none on the second", func() {
		spec := shareSpec(testShare, "share", "ref-1")

		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
		Expect(mounter.GetMountCalls()).To(HaveLen(1))

		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
		Expect(mounter.GetMountCalls()).To(HaveLen(1))
		Expect(mounter.GetUnmountCalls()).To(BeEmpty())
	})

	It("repairs a hung mount with exactly one lazy unmount and one mount", func() {
		spec := shareSpec(testShare, "lifecycle-hung", testCredentialRef)
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())

		By("Making the mount stop answering")
		mounter.SetHung(spec.MountPoint, true)
		report := sup.Inspect(ctx, spec)
		Expect(report.State).To(Equal(supervisor.Degraded))
		Expect(report.Reason).To(Equal(supervisor.ReasonProbeTimeout))

		By("Repairing")
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())

		Expect(mounter.GetUnmountCalls()).To(HaveLen(1))
		Expect(mounter.GetUnmountCalls()[0].Lazy).To(BeTrue())
		Expect(mounter.GetMountCalls()).To(HaveLen(2))
		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Mounted))
		Expect(mounter.EntryCount(spec.MountPoint)).To(Equal(1))
	})

	It("replaces a different share mounted at the mount point", func() {
		spec := shareSpec(testShare, "lifecycle-mismatch", testCredentialRef)
		mounter.AddEntry(spec.MountPoint, "//"+smbServer.Address()+"/"+otherShare, "cifs")

		report := sup.Inspect(ctx, spec)
		Expect(report.State).To(Equal(supervisor.Degraded))
		Expect(report.Reason).To(Equal(supervisor.ReasonSourceMismatch))

		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
		Expect(mounter.GetUnmountCalls()).To(HaveLen(1))
		Expect(mounter.GetUnmountCalls()[0].Lazy).To(BeFalse())
		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Mounted))
	})

	It("collapses stacked mounts to a single entry", func() {
		spec := shareSpec(testShare, "lifecycle-stacked", testCredentialRef)
		source := "//" + smbServer.Address() + "/" + testShare
		mounter.AddEntry(spec.MountPoint, source, "cifs")
		mounter.AddEntry(spec.MountPoint, source, "cifs")

		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Degraded))
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())

		Expect(mounter.GetUnmountCalls()).To(HaveLen(2))
		Expect(mounter.EntryCount(spec.MountPoint)).To(Equal(1))
	})

	It("mounts a subdirectory of a share", func() {
		spec := shareSpec(testShare+"/projects/2024", "lifecycle-subdir", testCredentialRef)
		Expect(spec.Source()).To(HaveSuffix("/share/projects/2024"))

		Expect(sup.EnsureMounted(ctx, spec)).To(Succeed())
		Expect(sup.CheckHealth(ctx, spec)).To(Equal(supervisor.Mounted))
	})

	It("records health checks, mount operations and repairs in metrics", func() {
		spec := shareSpec(testShare, "lifecycle-metrics", testCredentialRef)
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())
		Expect(sup.CheckAndRepair(ctx, spec)).To(Succeed())

		Expect(counterValue(metrics, "mountsup_health_checks_total",
			map[string]string{"state": "unmounted", "reason": "not_mounted"})).To(Equal(1.0))
		Expect(counterValue(metrics, "mountsup_health_checks_total",
			map[string]string{"state": "mounted"})).To(Equal(1.0))
		Expect(counterValue(metrics, "mountsup_mount_operations_total",
			map[string]string{"operation": "mount", "status": "success"})).To(Equal(1.0))
		Expect(counterValue(metrics, "mountsup_repairs_total",
			map[string]string{"result": "success"})).To(Equal(1.0))
	})
})
