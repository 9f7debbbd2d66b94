package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

const (
	// DefaultDir is where FileStore looks for credential files by default
	DefaultDir = "/etc/mountsup/credentials"

	// maxCredentialFileSize bounds how much of a credential file is read
	maxCredentialFileSize = 64 * 1024
)

// FileStore resolves a reference to the credentials file <Dir>/<ref>
type FileStore struct {
	Dir string

	// OnInsecureMode is called when a credentials file is readable by group or others
	OnInsecureMode func(path string, mode fs.FileMode)
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{Dir: dir}
}

// Name implements Store
func (s *FileStore) Name() string {
	return "file"
}

// Resolve implements Store
func (s *FileStore) Resolve(ctx context.Context, ref string) (Credentials, error) {
	if err := utils.ValidateCredentialRef(ref); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	path := filepath.Join(s.Dir, ref)
	klog.V(4).Infof("Resolving credential reference %s from %s", ref, path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: no credentials file for reference %s", ErrNotFound, ref)
		}
		return Credentials{}, fmt.Errorf("%w: failed to stat credentials file: %v", ErrInvalid, err)
	}

	if !info.Mode().IsRegular() {
		return Credentials{}, fmt.Errorf("%w: credentials for reference %s is not a regular file", ErrInvalid, ref)
	}

	if info.Size() > maxCredentialFileSize {
		return Credentials{}, fmt.Errorf("%w: credentials file for reference %s is too large", ErrInvalid, ref)
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		klog.Warningf("Credentials file %s is accessible by group or others (mode %04o)", path, mode)
		if s.OnInsecureMode != nil {
			s.OnInsecureMode(path, mode)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: failed to read credentials file: %v", ErrInvalid, err)
	}

	creds, err := Parse(string(data))
	if err != nil {
		return Credentials{}, fmt.Errorf("credentials for reference %s: %w", ref, err)
	}

	klog.V(4).Infof("Resolved credential reference %s (username: %s)", ref, creds.Username)
	return creds, nil
}
