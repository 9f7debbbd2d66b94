package supervisor

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"git.srvlab.io/whiskey/mountsup/pkg/mount"
	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

// DefaultPort is the SMB port used for the reachability check
const DefaultPort = 445

// MountSpec describes one share and where it is mounted.
// It is built once at startup and treated as immutable afterwards.
type MountSpec struct {
	// Host is the file server name or address
	Host string

	// Share is the share name plus optional subdirectory, without leading slash
	Share string

	// MountPoint is the absolute local path the share is attached to
	MountPoint string

	// CredentialRef is the opaque handle resolved by the credential store
	CredentialRef string

	// Options are extra mount options; an empty value renders as a bare flag
	Options map[string]string

	// Port is the SMB port probed before mounting. Zero means DefaultPort.
	Port int
}

// ParseRemote splits a remote address into host and share.
// Accepted forms: //host/share, host/share, \\host\share, optionally with a subpath.
func ParseRemote(remote string) (host, share string, err error) {
	r := strings.TrimSpace(remote)
	r = strings.ReplaceAll(r, `\`, "/")
	r = strings.TrimPrefix(r, "//")
	r = strings.TrimRight(r, "/")

	host, share, ok := strings.Cut(r, "/")
	if !ok || host == "" || share == "" {
		return "", "", fmt.Errorf("remote %q must look like //host/share", remote)
	}
	if strings.Contains(share, "//") {
		return "", "", fmt.Errorf("remote %q has an empty path element", remote)
	}
	return host, share, nil
}

// Source returns the canonical //host/share form passed to mount.cifs
func (s MountSpec) Source() string {
	return "//" + s.Host + "/" + s.Share
}

// FSType returns the filesystem type, always cifs
func (s MountSpec) FSType() string {
	return mount.FSTypeCIFS
}

// Address returns host:port for the reachability check
func (s MountSpec) Address() string {
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	host := strings.TrimSuffix(strings.TrimPrefix(s.Host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// MountOptions renders Options as mount -o elements in sorted key order
func (s MountSpec) MountOptions() []string {
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := s.Options[k]; v != "" {
			opts = append(opts, k+"="+v)
		} else {
			opts = append(opts, k)
		}
	}
	return opts
}

// Clone returns a deep copy with its own Options map
func (s MountSpec) Clone() MountSpec {
	c := s
	if s.Options != nil {
		c.Options = make(map[string]string, len(s.Options))
		for k, v := range s.Options {
			c.Options[k] = v
		}
	}
	return c
}

// Validate checks every field before the MountSpec is used
func (s MountSpec) Validate() error {
	if s.Host == "" || s.Share == "" {
		return fmt.Errorf("remote host and share are required")
	}
	if strings.ContainsAny(s.Host, " /,") {
		return fmt.Errorf("invalid remote host %q", s.Host)
	}
	if err := utils.ValidateMountPoint(s.MountPoint); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}
	if err := utils.ValidateCredentialRef(s.CredentialRef); err != nil {
		return fmt.Errorf("invalid credential reference: %w", err)
	}
	for k, v := range s.Options {
		if err := utils.ValidateMountOption(k, v); err != nil {
			return fmt.Errorf("invalid mount option: %w", err)
		}
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	return nil
}

// String describes the MountSpec for logs
func (s MountSpec) String() string {
	return fmt.Sprintf("%s -> %s (credential: %s)", s.Source(), s.MountPoint, s.CredentialRef)
}

// sameSource compares two //host/share sources the way SMB does: case-insensitively,
// ignoring trailing slashes and backslash separators.
func sameSource(a, b string) bool {
	norm := func(s string) string {
		s = strings.ReplaceAll(s, `\`, "/")
		s = strings.TrimRight(s, "/")
		return strings.ToLower(s)
	}
	return norm(a) == norm(b)
}
