package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/mountsup/pkg/credentials"
	"git.srvlab.io/whiskey/mountsup/pkg/mount"
	"git.srvlab.io/whiskey/mountsup/pkg/observability"
	"git.srvlab.io/whiskey/mountsup/pkg/security"
)

// DefaultDialTimeout bounds the TCP reachability check
const DefaultDialTimeout = 5 * time.Second

// ReachabilityFunc checks that address (host:port) accepts connections
type ReachabilityFunc func(ctx context.Context, address string) error

// DialReachability returns a ReachabilityFunc that opens and closes a TCP connection
func DialReachability(timeout time.Duration) ReachabilityFunc {
	return func(ctx context.Context, address string) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Config holds the collaborators of a Supervisor.
// Store is required; everything else has a working default.
type Config struct {
	Mounter      mount.Mounter
	Table        mount.MountTable
	Prober       mount.Prober
	Store        credentials.Store
	Reachability ReachabilityFunc
	Metrics      *observability.Metrics
	Events       *security.Logger
}

// Supervisor keeps one share mounted. It holds no state between calls:
// every operation re-derives the mount state from the OS.
type Supervisor struct {
	mounter    mount.Mounter
	table      mount.MountTable
	prober     mount.Prober
	store      credentials.Store
	reach      ReachabilityFunc
	metrics    *observability.Metrics
	events     *security.Logger
	newCheckID func() string
}

// New creates a Supervisor from cfg
func New(cfg Config) (*Supervisor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	s := &Supervisor{
		mounter:    cfg.Mounter,
		table:      cfg.Table,
		prober:     cfg.Prober,
		store:      cfg.Store,
		reach:      cfg.Reachability,
		metrics:    cfg.Metrics,
		events:     cfg.Events,
		newCheckID: uuid.NewString,
	}
	if s.mounter == nil {
		s.mounter = mount.NewMounter()
	}
	if s.table == nil {
		s.table = mount.NewProcMountTable()
	}
	if s.prober == nil {
		s.prober = mount.NewDirProber(mount.DefaultProbeTimeout)
	}
	if s.reach == nil {
		s.reach = DialReachability(DefaultDialTimeout)
	}
	if s.events == nil {
		s.events = security.NewLogger(nil)
	}
	return s, nil
}

// Inspect derives the state of spec.MountPoint from the mount table and a probe
func (s *Supervisor) Inspect(ctx context.Context, spec MountSpec) HealthReport {
	report := s.inspect(ctx, spec)
	if s.metrics != nil {
		s.metrics.RecordHealthCheck(spec.MountPoint, report.State.String(), string(report.Reason))
	}
	return report
}

func (s *Supervisor) inspect(ctx context.Context, spec MountSpec) HealthReport {
	entries, err := s.table.Entries(ctx, spec.MountPoint)
	if err != nil {
		klog.Warningf("Cannot read mount table for %s: %v", spec.MountPoint, err)
		return HealthReport{State: Degraded, Reason: ReasonMountTableUnavailable, Entries: -1, Err: err}
	}

	switch len(entries) {
	case 0:
		klog.V(4).Infof("No mount entry at %s", spec.MountPoint)
		return HealthReport{State: Unmounted, Reason: ReasonNotMounted}
	case 1:
	default:
		klog.V(2).Infof("Found %d mount entries stacked at %s", len(entries), spec.MountPoint)
		return HealthReport{State: Degraded, Reason: ReasonDuplicateEntries, Entries: len(entries), Source: entries[0].Source}
	}

	entry := entries[0]
	report := HealthReport{Entries: 1, Source: entry.Source}

	if entry.FSType != mount.FSTypeCIFS && entry.FSType != "smb3" {
		klog.V(2).Infof("Mount at %s has filesystem %s, expected %s", spec.MountPoint, entry.FSType, spec.FSType())
		report.State, report.Reason = Degraded, ReasonFSTypeMismatch
		return report
	}
	if !sameSource(entry.Source, spec.Source()) {
		klog.V(2).Infof("Mount at %s has source %s, expected %s", spec.MountPoint, entry.Source, spec.Source())
		report.State, report.Reason = Degraded, ReasonSourceMismatch
		return report
	}

	if err := s.prober.Probe(ctx, spec.MountPoint); err != nil {
		report.State, report.Reason, report.Err = Degraded, ReasonProbeFailed, err
		if errors.Is(err, mount.ErrProbeTimeout) {
			report.Reason = ReasonProbeTimeout
		}
		klog.V(2).Infof("Mount at %s is unresponsive (%s): %v", spec.MountPoint, report.Reason, err)
		return report
	}

	klog.V(4).Infof("Mount at %s is healthy", spec.MountPoint)
	report.State = Mounted
	return report
}

// CheckHealth returns the current state of spec.MountPoint without changing anything
func (s *Supervisor) CheckHealth(ctx context.Context, spec MountSpec) MountState {
	return s.Inspect(ctx, spec).State
}

// EnsureMounted mounts the share unless it is already healthy.
// A Degraded mount is detached first. The returned error is always a *MountError.
func (s *Supervisor) EnsureMounted(ctx context.Context, spec MountSpec) error {
	checkID := s.newCheckID()
	report := s.Inspect(ctx, spec)
	if report.State == Mounted {
		klog.V(4).Infof("[%s] %s already mounted", checkID, spec.MountPoint)
		return nil
	}
	return s.ensureMounted(ctx, spec, checkID, report)
}

// CheckAndRepair checks the mount point and repairs it if it is not Mounted.
// It never retries internally; the caller re-invokes it on its own schedule.
func (s *Supervisor) CheckAndRepair(ctx context.Context, spec MountSpec) error {
	start := time.Now()
	checkID := s.newCheckID()

	report := s.Inspect(ctx, spec)
	klog.V(2).Infof("[%s] %s is %s", checkID, spec.MountPoint, describe(report))

	var err error
	if report.State != Mounted {
		err = s.ensureMounted(ctx, spec, checkID, report)
		if s.metrics != nil {
			s.metrics.RecordRepair(resultLabel(err))
		}
		if err != nil {
			klog.Errorf("[%s] Repair of %s failed: %v", checkID, spec.MountPoint, err)
		} else {
			klog.V(2).Infof("[%s] Repaired %s (was %s)", checkID, spec.MountPoint, report.State)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCheckAndRepair(resultLabel(err), time.Since(start))
	}
	return err
}

// ensureMounted runs the repair sequence: resolve credentials, detach existing
// entries, check reachability, mount, verify.
func (s *Supervisor) ensureMounted(ctx context.Context, spec MountSpec, checkID string, report HealthReport) error {
	// Credentials first so a bad reference leaves existing mounts alone
	creds, err := s.store.Resolve(ctx, spec.CredentialRef)
	if err == nil {
		// Stores other than the file and keyring ones skip Parse
		err = creds.Validate()
	}
	s.events.LogCredentialResolve(checkID, spec.CredentialRef, s.store.Name(), creds.Username, err)
	if err != nil {
		return newMountError(KindAuthFailed, "resolve credentials", err)
	}

	if err := s.detach(ctx, spec, checkID, report.unresponsive()); err != nil {
		return err
	}

	if err := deadlineError(ctx, "check reachability"); err != nil {
		return err
	}
	if err := s.reach(ctx, spec.Address()); err != nil {
		s.events.LogRemoteUnreachable(checkID, spec.Source(), err)
		if ctx.Err() != nil {
			return newMountError(KindUnknown, "check reachability", fmt.Errorf("deadline reached while dialing %s: %w", spec.Address(), err))
		}
		return newMountError(KindUnreachable, "check reachability", fmt.Errorf("%s: %w", spec.Address(), err))
	}

	if err := deadlineError(ctx, "mount"); err != nil {
		return err
	}
	if err := s.mount(spec, checkID, creds); err != nil {
		return err
	}

	return s.verify(ctx, spec)
}

// detach unmounts every entry at the mount point, one call per entry
func (s *Supervisor) detach(ctx context.Context, spec MountSpec, checkID string, lazy bool) error {
	entries, err := s.table.Entries(ctx, spec.MountPoint)
	if err != nil {
		return newMountError(KindUnknown, "read mount table", err)
	}

	for range entries {
		if err := deadlineError(ctx, "unmount"); err != nil {
			return err
		}

		klog.V(4).Infof("[%s] Unmounting %s (lazy=%v)", checkID, spec.MountPoint, lazy)
		start := time.Now()
		s.events.LogUnmount(checkID, spec.MountPoint, security.OutcomeUnknown, nil, 0)
		err := s.mounter.Unmount(spec.MountPoint, lazy)
		if s.metrics != nil {
			s.metrics.RecordMountOp("unmount", err)
		}
		if err != nil {
			s.events.LogUnmount(checkID, spec.MountPoint, security.OutcomeFailure, err, time.Since(start))
			return classifyUnmountError(err)
		}
		s.events.LogUnmount(checkID, spec.MountPoint, security.OutcomeSuccess, nil, time.Since(start))
	}
	return nil
}

func (s *Supervisor) mount(spec MountSpec, checkID string, creds credentials.Credentials) error {
	options := spec.MountOptions()
	if _, ok := spec.Options["domain"]; !ok && creds.Domain != "" {
		options = append(options, "domain="+creds.Domain)
	}
	secret := &mount.Secret{Username: creds.Username, Password: creds.Password}

	klog.V(4).Infof("[%s] Mounting %s at %s with options %v", checkID, spec.Source(), spec.MountPoint, options)
	start := time.Now()
	s.events.LogMount(checkID, spec.Source(), spec.MountPoint, security.OutcomeUnknown, nil, 0)
	err := s.mounter.Mount(spec.Source(), spec.MountPoint, spec.FSType(), options, secret)
	if s.metrics != nil {
		s.metrics.RecordMountOp("mount", err)
	}
	if err != nil {
		s.events.LogMount(checkID, spec.Source(), spec.MountPoint, security.OutcomeFailure, err, time.Since(start))
		mErr := classifyMountError(err)
		if mErr.Kind == KindAuthFailed {
			s.events.LogShareAuthFailure(checkID, spec.Source(), spec.MountPoint, spec.CredentialRef, creds.Username, err)
		}
		return mErr
	}
	s.events.LogMount(checkID, spec.Source(), spec.MountPoint, security.OutcomeSuccess, nil, time.Since(start))
	return nil
}

// verify checks that the mount produced exactly one entry. It ignores the
// invocation deadline: a mount that completed after the deadline is still
// reported as it is, and the table read is bounded by its own timeout.
func (s *Supervisor) verify(ctx context.Context, spec MountSpec) error {
	entries, err := s.table.Entries(context.WithoutCancel(ctx), spec.MountPoint)
	if err != nil {
		return newMountError(KindUnknown, "verify mount", err)
	}
	if len(entries) != 1 {
		return newMountError(KindUnknown, "verify mount",
			fmt.Errorf("expected one mount entry at %s after mounting, found %d", spec.MountPoint, len(entries)))
	}
	return nil
}

// deadlineError reports an exhausted invocation deadline before op starts.
// Operations already in flight are allowed to finish.
func deadlineError(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return newMountError(KindUnknown, op, fmt.Errorf("deadline reached before %s: %w", op, err))
	}
	return nil
}

// resultLabel is the metrics label for an operation result
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(KindOf(err).String())
}

func describe(r HealthReport) string {
	if r.Reason == ReasonNone {
		return r.State.String()
	}
	return fmt.Sprintf("%s (%s)", r.State, r.Reason)
}
