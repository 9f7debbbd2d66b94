package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"k8s.io/klog/v2"
)

const (
	// DefaultProbeTimeout is how long a probe may take before the mount counts as unresponsive
	DefaultProbeTimeout = 5 * time.Second

	// SMB superblock magic numbers as reported by statfs(2)
	cifsMagic = 0xFF534D42
	smb2Magic = 0xFE534D42
)

// ErrProbeTimeout is returned when the probe did not finish within its timeout
var ErrProbeTimeout = errors.New("probe timed out")

// Prober checks that a mounted path answers reads
type Prober interface {
	Probe(ctx context.Context, path string) error
}

// DirProber probes a mount point with statfs plus a one-entry directory read
type DirProber struct {
	Timeout time.Duration

	// RequireSMB rejects a mount point whose statfs magic is not CIFS/SMB2
	RequireSMB bool
}

// NewDirProber creates a prober with the given timeout
func NewDirProber(timeout time.Duration) *DirProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &DirProber{Timeout: timeout, RequireSMB: true}
}

// Probe runs the read probe against path.
// The read happens in a goroutine because a dead SMB share blocks in the kernel;
// that goroutine is abandoned if it does not return within the timeout.
func (p *DirProber) Probe(ctx context.Context, path string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	klog.V(4).Infof("Probing %s (timeout: %v)", path, timeout)
	startTime := time.Now()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.read(path)
	}()

	select {
	case err := <-errCh:
		duration := time.Since(startTime)
		if duration > timeout/2 {
			klog.Warningf("Probe of %s took %v (timeout %v)", path, duration, timeout)
		}
		if err != nil {
			return err
		}
		klog.V(4).Infof("Probe of %s passed (duration: %v)", path, duration)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w after %v on %s: %v", ErrProbeTimeout, timeout, path, ctx.Err())
	}
}

func (p *DirProber) read(path string) error {
	if p.RequireSMB {
		magic, err := fsMagic(path)
		if err != nil {
			return fmt.Errorf("statfs %s: %w", path, err)
		}
		if magic != 0 && magic != cifsMagic && magic != smb2Magic {
			return fmt.Errorf("%s is not backed by an SMB filesystem (magic 0x%X)", path, magic)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("readdir %s: %w", path, err)
	}
	return nil
}
