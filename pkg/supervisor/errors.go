package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"golang.org/x/sys/unix"

	"git.srvlab.io/whiskey/mountsup/pkg/mount"
)

// ErrorKind classifies a failed mount
type ErrorKind int

const (
	// KindUnreachable means the file server could not be contacted
	KindUnreachable ErrorKind = iota + 1

	// KindAuthFailed means the credentials were missing or rejected
	KindAuthFailed

	// KindPermissionDenied means the local mount point could not be bound
	KindPermissionDenied

	// KindUnknown covers every unclassified failure
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "Unreachable"
	case KindAuthFailed:
		return "AuthFailed"
	case KindPermissionDenied:
		return "PermissionDenied"
	default:
		return "Unknown"
	}
}

// ExitCode is the process exit status for the kind
func (k ErrorKind) ExitCode() int {
	switch k {
	case KindUnreachable:
		return 1
	case KindAuthFailed:
		return 2
	case KindPermissionDenied:
		return 3
	default:
		return 4
	}
}

// MountError is the error returned by every supervisor operation
type MountError struct {
	Kind ErrorKind
	// Op is the step that failed, e.g. "mount" or "resolve credentials"
	Op  string
	Err error
}

func (e *MountError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// Is matches any *MountError of the same kind, so the Err* values work with errors.Is
func (e *MountError) Is(target error) bool {
	t, ok := target.(*MountError)
	if !ok {
		return false
	}
	return t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrUnreachable      = &MountError{Kind: KindUnreachable}
	ErrAuthFailed       = &MountError{Kind: KindAuthFailed}
	ErrPermissionDenied = &MountError{Kind: KindPermissionDenied}
	ErrUnknown          = &MountError{Kind: KindUnknown}
)

// KindOf returns the kind of err. Errors that are not MountErrors are Unknown.
func KindOf(err error) ErrorKind {
	var me *MountError
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// ExitCode maps an operation result to a process exit status; nil is 0
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}

func newMountError(kind ErrorKind, op string, err error) *MountError {
	return &MountError{Kind: kind, Op: op, Err: err}
}

// Output patterns reported by mount.cifs and mount(8), checked in this order.
// mount.cifs reports a rejected logon as error(13) "Permission denied", so auth
// patterns must be matched before the local permission patterns.
var (
	authPatterns = []string{
		"mount error(13):",
		"mount error(126):",
		"logon failure",
		"status_logon_failure",
		"status_account_",
		"status_password_",
		"status_wrong_password",
		"key has been rejected",
	}

	unreachablePatterns = []string{
		"mount error(101):",
		"mount error(110):",
		"mount error(111):",
		"mount error(112):",
		"mount error(113):",
		"mount error(115):",
		"could not resolve address",
		"unable to find suitable address",
		"host is down",
		"no route to host",
		"network is unreachable",
		"connection refused",
		"connection timed out",
		"connection reset",
	}

	permissionPatterns = []string{
		"mount error(1):",
		"only root can",
		"must be superuser",
		"operation not permitted",
		"permission denied",
		"read-only file system",
	}
)

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// classifyMountError maps an error from Mounter.Mount to a MountError
func classifyMountError(err error) *MountError {
	var cmdErr *mount.CommandError
	if errors.As(err, &cmdErr) {
		out := strings.ToLower(cmdErr.Output)
		switch {
		case containsAny(out, authPatterns):
			return newMountError(KindAuthFailed, "mount", err)
		case containsAny(out, unreachablePatterns):
			return newMountError(KindUnreachable, "mount", err)
		case containsAny(out, permissionPatterns):
			return newMountError(KindPermissionDenied, "mount", err)
		}
		return newMountError(KindUnknown, "mount", err)
	}

	// Not a command failure: creating the mount point failed
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, unix.EROFS) {
		return newMountError(KindPermissionDenied, "create mount point", err)
	}
	return newMountError(KindUnknown, "mount", err)
}

// classifyUnmountError maps an error from Mounter.Unmount to a MountError
func classifyUnmountError(err error) *MountError {
	var cmdErr *mount.CommandError
	if errors.As(err, &cmdErr) {
		out := strings.ToLower(cmdErr.Output)
		if containsAny(out, []string{"must be superuser", "only root can", "operation not permitted", "permission denied"}) {
			return newMountError(KindPermissionDenied, "unmount", err)
		}
	}
	return newMountError(KindUnknown, "unmount", err)
}
