package supervisor

// MountState is derived from the OS on every check and never stored
type MountState int

const (
	// Unmounted means no mount entry exists at the mount point
	Unmounted MountState = iota

	// Mounted means exactly one matching entry exists and it answers reads
	Mounted

	// Degraded means an entry exists but is unresponsive or wrong
	Degraded
)

func (s MountState) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case Degraded:
		return "degraded"
	default:
		return "invalid"
	}
}

// Reason describes why a mount point is in its state
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNotMounted            Reason = "not_mounted"
	ReasonProbeFailed           Reason = "probe_failed"
	ReasonProbeTimeout          Reason = "probe_timeout"
	ReasonSourceMismatch        Reason = "source_mismatch"
	ReasonFSTypeMismatch        Reason = "fstype_mismatch"
	ReasonDuplicateEntries      Reason = "duplicate_entries"
	ReasonMountTableUnavailable Reason = "mount_table_unavailable"
)

// HealthReport is the detailed result of a health check
type HealthReport struct {
	State  MountState
	Reason Reason

	// Entries is the number of mount table entries at the mount point (-1 if unknown)
	Entries int

	// Source is the source of the first entry, if any
	Source string

	// Err is the probe or mount table error behind a Degraded state
	Err error
}

// unresponsive reports whether unmounting should detach lazily
func (r HealthReport) unresponsive() bool {
	switch r.Reason {
	case ReasonProbeFailed, ReasonProbeTimeout, ReasonMountTableUnavailable:
		return true
	}
	return false
}
