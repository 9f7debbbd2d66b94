package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestErrorKind_ExitCode(t *testing.T) {
	assert.Equal(t, 1, KindUnreachable.ExitCode())
	assert.Equal(t, 2, KindAuthFailed.ExitCode())
	assert.Equal(t, 3, KindPermissionDenied.ExitCode())
	assert.Equal(t, 4, KindUnknown.ExitCode())
	assert.Equal(t, 4, ErrorKind(0).ExitCode())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(newMountError(KindUnreachable, "mount", errors.New("x"))))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", newMountError(KindAuthFailed, "mount", nil))))
	assert.Equal(t, 4, ExitCode(errors.New("not a mount error")))
}

func TestMountError_Is(t *testing.T) {
	err := newMountError(KindPermissionDenied, "mount", errors.New("mount error(1): Operation not permitted"))

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrAuthFailed)
	assert.NotErrorIs(t, err, ErrUnknown)
	assert.Equal(t, "PermissionDenied: mount: mount error(1): Operation not permitted", err.Error())
	assert.Equal(t, "Unreachable", ErrUnreachable.Error())
}

func TestClassifyMountError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect ErrorKind
	}{
		{"logon failure", commandError("mount error(13): Permission denied\nRefer to the mount.cifs(8) manual page"), KindAuthFailed},
		{"key rejected", commandError("mount error(126): Required key not available"), KindAuthFailed},
		{"nt status", commandError("Status code returned 0xc000006d STATUS_LOGON_FAILURE"), KindAuthFailed},
		{"expired password", commandError("STATUS_PASSWORD_EXPIRED"), KindAuthFailed},
		{"host down", commandError("mount error(112): Host is down"), KindUnreachable},
		{"no route", commandError("mount error(113): No route to host"), KindUnreachable},
		{"refused", commandError("mount error(111): could not connect to 10.0.0.5Unable to find suitable address."), KindUnreachable},
		{"dns", commandError("mount error: could not resolve address for nas.lan: Unknown error"), KindUnreachable},
		{"timeout", commandError("mount error(110): Connection timed out"), KindUnreachable},
		{"not permitted", commandError("mount error(1): Operation not permitted"), KindPermissionDenied},
		{"not root", commandError("mount: only root can use \"--options\" option"), KindPermissionDenied},
		{"superuser", commandError("mount.cifs: permission denied: must be superuser"), KindPermissionDenied},
		{"invalid argument", commandError("mount error(22): Invalid argument"), KindUnknown},
		{"no such file", commandError("mount error(2): No such file or directory"), KindUnknown},
		{"mkdir eacces", fmt.Errorf("failed to create target directory: %w", &fs.PathError{Op: "mkdir", Path: "/mnt/x", Err: unix.EACCES}), KindPermissionDenied},
		{"mkdir erofs", fmt.Errorf("failed to create target directory: %w", &fs.PathError{Op: "mkdir", Path: "/mnt/x", Err: unix.EROFS}), KindPermissionDenied},
		{"mkdir enospc", fmt.Errorf("failed to create target directory: %w", &fs.PathError{Op: "mkdir", Path: "/mnt/x", Err: unix.ENOSPC}), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyMountError(tt.err)
			assert.Equal(t, tt.expect, got.Kind, "classified %q", tt.err)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyUnmountError(t *testing.T) {
	assert.Equal(t, KindPermissionDenied, classifyUnmountError(commandError("umount: /mnt/x: must be superuser to unmount.")).Kind)
	assert.Equal(t, KindUnknown, classifyUnmountError(commandError("umount: /mnt/x: target is busy.")).Kind)
	assert.Equal(t, KindUnknown, classifyUnmountError(errors.New("exec: umount not found")).Kind)
}
