package mount

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/moby/sys/mountinfo"
	"k8s.io/klog/v2"
)

const (
	// ProcmountsTimeout is the maximum time to wait for mount table parsing
	ProcmountsTimeout = 10 * time.Second
)

// Entry represents a single mount table entry
type Entry struct {
	// Source is the remote share or device, e.g. //10.0.0.5/share
	Source string

	// Target is the mount point path
	Target string

	// FSType is the filesystem type
	FSType string

	// Options are the per-mount options
	Options string

	// VFSOptions are the per-superblock options (cifs reports vers, addr, username here)
	VFSOptions string
}

// MountTable answers questions about the OS mount table
type MountTable interface {
	// Entries returns every mount entry whose mount point is target, in mount order
	Entries(ctx context.Context, target string) ([]Entry, error)
}

// ProcMountTable reads /proc/self/mountinfo through moby/sys/mountinfo
type ProcMountTable struct {
	// Timeout bounds a single read of the table. Zero means ProcmountsTimeout.
	Timeout time.Duration

	getMounts func(mountinfo.FilterFunc) ([]*mountinfo.Info, error)
}

// NewProcMountTable creates a mount table reader for the running kernel
func NewProcMountTable() *ProcMountTable {
	return &ProcMountTable{
		Timeout:   ProcmountsTimeout,
		getMounts: mountinfo.GetMounts,
	}
}

// targetFilter keeps every entry mounted exactly at target
func targetFilter(target string) mountinfo.FilterFunc {
	return func(info *mountinfo.Info) (skip, stop bool) {
		return info.Mountpoint != target, false
	}
}

// Entries returns the mount entries at target.
// The read runs in a goroutine so a wedged kernel read cannot block past the timeout.
func (t *ProcMountTable) Entries(ctx context.Context, target string) ([]Entry, error) {
	target = filepath.Clean(target)

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = ProcmountsTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		mounts []*mountinfo.Info
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		mounts, err := t.getMounts(targetFilter(target))
		resultCh <- result{mounts: mounts, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to read mount table: %w", res.err)
		}
		entries := make([]Entry, 0, len(res.mounts))
		for _, m := range res.mounts {
			entries = append(entries, ConvertMobyMount(m))
		}
		klog.V(4).Infof("Found %d mount entries at %s", len(entries), target)
		return entries, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("mount table read timed out after %v: %w", timeout, ctx.Err())
	}
}

// ConvertMobyMount converts moby/sys/mountinfo.Info to our Entry type
func ConvertMobyMount(m *mountinfo.Info) Entry {
	return Entry{
		Source:     m.Source,
		Target:     m.Mountpoint,
		FSType:     m.FSType,
		Options:    m.Options,
		VFSOptions: m.VFSOptions,
	}
}
