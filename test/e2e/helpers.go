package e2e

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/gomega"
	dto "github.com/prometheus/client_model/go"

	"git.srvlab.io/whiskey/mountsup/pkg/observability"
	"git.srvlab.io/whiskey/mountsup/pkg/supervisor"
)

// Constants for test configuration
const (
	defaultTimeout = 30 * time.Second
	pollInterval   = 20 * time.Millisecond
)

// testMountPoint creates a unique mount point for the current test
func testMountPoint(name string) string {
	return fmt.Sprintf("/mnt/%s-%s", testRunID, name)
}

// shareSpec builds a validated spec for share on the mock server.
// The remote uses the bare host/share form.
func shareSpec(share, name, ref string) supervisor.MountSpec {
	host, shareName, err := supervisor.ParseRemote(smbServer.Address() + "/" + share)
	Expect(err).NotTo(HaveOccurred())

	spec := supervisor.MountSpec{
		Host:          host,
		Share:         shareName,
		MountPoint:    testMountPoint(name),
		CredentialRef: ref,
		Options:       map[string]string{"vers": "3.0"},
		Port:          smbServer.Port(),
	}
	Expect(spec.Validate()).To(Succeed())
	return spec
}

// writeCredentialFile writes a credentials file into the suite's credential directory
func writeCredentialFile(ref, content string, mode fs.FileMode) {
	path := filepath.Join(credDir, ref)
	Expect(os.WriteFile(path, []byte(content), mode)).To(Succeed())
	Expect(os.Chmod(path, mode)).To(Succeed())
}

// expectKind asserts err is a MountError of kind
func expectKind(err error, kind supervisor.ErrorKind) {
	Expect(err).To(HaveOccurred())
	var mErr *supervisor.MountError
	Expect(err).To(BeAssignableToTypeOf(mErr))
	Expect(supervisor.KindOf(err)).To(Equal(kind), "unexpected error: %v", err)
}

// counterValue returns the value of the counter name with labels, or 0
func counterValue(m *observability.Metrics, name string, labels map[string]string) float64 {
	families, err := m.Registry().Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok {
			if want != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}
