// Package units renders systemd service and timer units that run one
// check-and-repair per timer tick.
package units

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/unit"
	"k8s.io/klog/v2"
)

const (
	// DefaultBinary is where packages install the CLI
	DefaultBinary = "/usr/local/bin/mountsup"

	// DefaultBootDelay is how long after boot the first check runs
	DefaultBootDelay = 30 * time.Second

	// UnitFileMode is the permission of written unit files
	UnitFileMode = 0644
)

// Options describes the units to generate
type Options struct {
	// MountPoint names the units and appears in the description
	MountPoint string

	// Remote appears in the description
	Remote string

	// Binary is the absolute path of the CLI. Empty means DefaultBinary.
	Binary string

	// ConfigPath is passed as --config
	ConfigPath string

	// Interval between checks
	Interval time.Duration

	// BootDelay before the first check. Zero means DefaultBootDelay.
	BootDelay time.Duration
}

// File is a rendered unit
type File struct {
	Name    string
	Content []byte
}

// Name returns the unit base name for a mount point, e.g. mountsup-mnt-share
func Name(mountPoint string) string {
	return "mountsup-" + unit.UnitNamePathEscape(mountPoint)
}

// systemdDuration renders d in whole seconds, rounding up
func systemdDuration(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(math.Ceil(d.Seconds())))
}

func (o Options) validate() error {
	if !filepath.IsAbs(o.MountPoint) {
		return fmt.Errorf("mount point %q must be absolute", o.MountPoint)
	}
	if !filepath.IsAbs(o.ConfigPath) {
		return fmt.Errorf("config path %q must be absolute", o.ConfigPath)
	}
	if o.Binary != "" && !filepath.IsAbs(o.Binary) {
		return fmt.Errorf("binary %q must be absolute", o.Binary)
	}
	for _, p := range []string{o.ConfigPath, o.Binary} {
		if strings.ContainsAny(p, " \t\n\"'\\") {
			return fmt.Errorf("path %q contains characters that need quoting", p)
		}
	}
	if o.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %v", o.Interval)
	}
	return nil
}

// Generate renders the service and timer units for opts
func Generate(opts Options) ([]File, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid unit options: %w", err)
	}
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	bootDelay := opts.BootDelay
	if bootDelay <= 0 {
		bootDelay = DefaultBootDelay
	}

	name := Name(opts.MountPoint)
	description := fmt.Sprintf("Keep %s mounted at %s", opts.Remote, opts.MountPoint)
	if opts.Remote == "" {
		description = fmt.Sprintf("Keep %s mounted", opts.MountPoint)
	}

	service := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", description),
		unit.NewUnitOption("Unit", "Wants", "network-online.target"),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "ExecStart", fmt.Sprintf("%s --config=%s", binary, opts.ConfigPath)),
		unit.NewUnitOption("Service", "TimeoutStartSec", systemdDuration(opts.Interval)),
	}

	timer := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "Periodic check of "+opts.MountPoint),
		unit.NewUnitOption("Timer", "OnBootSec", systemdDuration(bootDelay)),
		unit.NewUnitOption("Timer", "OnUnitActiveSec", systemdDuration(opts.Interval)),
		unit.NewUnitOption("Timer", "Persistent", "true"),
		unit.NewUnitOption("Timer", "Unit", name+".service"),
		unit.NewUnitOption("Install", "WantedBy", "timers.target"),
	}

	serviceContent, err := io.ReadAll(unit.Serialize(service))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize service unit: %w", err)
	}
	timerContent, err := io.ReadAll(unit.Serialize(timer))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize timer unit: %w", err)
	}

	return []File{
		{Name: name + ".service", Content: serviceContent},
		{Name: name + ".timer", Content: timerContent},
	}, nil
}

// Write writes files into dir, creating it if needed
func Write(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Content, UnitFileMode); err != nil {
			return fmt.Errorf("failed to write unit %s: %w", path, err)
		}
		// WriteFile keeps the mode of an existing file
		if err := os.Chmod(path, UnitFileMode); err != nil {
			return fmt.Errorf("failed to set mode on %s: %w", path, err)
		}
		klog.V(2).Infof("Wrote unit %s", path)
	}
	return nil
}
