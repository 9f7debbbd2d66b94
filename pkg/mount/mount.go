package mount

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

const (
	// FSTypeCIFS is the only filesystem type the supervisor mounts
	FSTypeCIFS = "cifs"

	// MountPointMode is the permission used when creating a missing mount point
	MountPointMode = 0750
)

// Secret carries the credentials handed to mount.cifs.
// They travel through the child environment (USER/PASSWD) so they never show up in argv.
type Secret struct {
	Username string
	Password string
}

// env returns the environment entries mount.cifs reads credentials from.
// PASSWD is always set so an empty password never falls back to an inherited
// PASSWD or an interactive prompt.
func (s *Secret) env() []string {
	if s == nil {
		return nil
	}
	return []string{"USER=" + s.Username, "PASSWD=" + s.Password}
}

// Mounter handles mount and unmount operations
type Mounter interface {
	// Mount mounts source to target with the given fsType and options
	Mount(source, target, fsType string, options []string, secret *Secret) error

	// Unmount unmounts the target. A target that is not mounted is not an error.
	// lazy detaches the mount even if the remote side is unresponsive.
	Unmount(target string, lazy bool) error
}

// CommandError is returned when mount or umount exits non-zero
type CommandError struct {
	Command string
	Err     error
	// Output is the combined output with secrets redacted
	Output string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed: %v, output: %s", e.Command, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// mounter implements Mounter interface using system commands
type mounter struct {
	execCommand func(name string, args ...string) *exec.Cmd
	mkdirAll    func(path string, perm os.FileMode) error
}

// NewMounter creates a new mounter backed by mount(8) and umount(8)
func NewMounter() Mounter {
	return &mounter{
		execCommand: exec.Command,
		mkdirAll:    os.MkdirAll,
	}
}

// Mount mounts source to target with the given filesystem type and options
func (m *mounter) Mount(source, target, fsType string, options []string, secret *Secret) error {
	klog.V(2).Infof("Mounting %s to %s (fsType: %s, options: %v)", source, target, fsType, options)

	// Create target directory if it doesn't exist
	if err := m.mkdirAll(target, MountPointMode); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	args := []string{}
	if fsType != "" {
		args = append(args, "-t", fsType)
	}
	if len(options) > 0 {
		args = append(args, "-o", strings.Join(options, ","))
	}
	args = append(args, source, target)

	cmd := m.execCommand("mount", args...)
	if extra := secret.env(); len(extra) > 0 {
		env := cmd.Env
		if env == nil {
			env = os.Environ()
		}
		cmd.Env = append(env, extra...)
	}

	output, err := cmd.CombinedOutput()
	out := utils.RedactSecrets(string(output))
	if err != nil {
		return &CommandError{Command: "mount", Err: err, Output: out}
	}

	klog.V(5).Infof("mount output: %s", out)
	klog.V(2).Infof("Successfully mounted %s to %s", source, target)
	return nil
}

// Unmount unmounts the target path
func (m *mounter) Unmount(target string, lazy bool) error {
	klog.V(2).Infof("Unmounting %s (lazy: %v)", target, lazy)

	args := []string{}
	if lazy {
		args = append(args, "-l")
	}
	args = append(args, target)

	cmd := m.execCommand("umount", args...)
	output, err := cmd.CombinedOutput()
	out := utils.RedactSecrets(string(output))
	if err != nil {
		if IsNotMountedOutput(out) {
			klog.V(2).Infof("Path %s is not mounted, nothing to unmount", target)
			return nil
		}
		return &CommandError{Command: "umount", Err: err, Output: out}
	}

	klog.V(5).Infof("umount output: %s", out)
	klog.V(2).Infof("Successfully unmounted %s", target)
	return nil
}

// IsNotMountedOutput reports whether umount output says the target was not mounted
func IsNotMountedOutput(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "not mounted") ||
		strings.Contains(lower, "no mount point specified") ||
		strings.Contains(lower, "not found in /proc/mounts")
}
