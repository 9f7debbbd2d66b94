package security

import "time"

// EventCategory represents the category of a security event
type EventCategory string

const (
	// CategoryAuthentication represents credential resolution and share logons
	CategoryAuthentication EventCategory = "authentication"

	// CategoryDataAccess represents mount and unmount operations
	CategoryDataAccess EventCategory = "data_access"

	// CategoryNetworkAccess represents reachability checks against the file server
	CategoryNetworkAccess EventCategory = "network_access"

	// CategoryConfigChange represents credential storage changes
	CategoryConfigChange EventCategory = "config_change"
)

// EventSeverity represents the severity level of a security event
type EventSeverity string

const (
	// SeverityInfo represents informational events
	SeverityInfo EventSeverity = "info"

	// SeverityWarning represents warning events
	SeverityWarning EventSeverity = "warning"

	// SeverityError represents error events
	SeverityError EventSeverity = "error"

	// SeverityCritical represents critical security events
	SeverityCritical EventSeverity = "critical"
)

// EventOutcome represents the outcome of a security event
type EventOutcome string

const (
	// OutcomeSuccess indicates the operation succeeded
	OutcomeSuccess EventOutcome = "success"

	// OutcomeFailure indicates the operation failed
	OutcomeFailure EventOutcome = "failure"

	// OutcomeDenied indicates the operation was denied
	OutcomeDenied EventOutcome = "denied"

	// OutcomeUnknown indicates the outcome is unknown
	OutcomeUnknown EventOutcome = "unknown"
)

// EventType represents specific types of security events
type EventType string

const (
	// Credential events
	EventCredentialResolveSuccess EventType = "credential_resolve_success"
	EventCredentialResolveFailure EventType = "credential_resolve_failure"
	EventCredentialFileInsecure   EventType = "credential_file_insecure"
	EventCredentialStored         EventType = "credential_stored"

	// Share logon outcome as reported by mount.cifs
	EventShareAuthFailure EventType = "share_auth_failure"

	// Reachability events
	EventRemoteUnreachable EventType = "remote_unreachable"

	// Data access events
	EventMountAttempt   EventType = "mount_attempt"
	EventMountSuccess   EventType = "mount_success"
	EventMountFailure   EventType = "mount_failure"
	EventUnmountAttempt EventType = "unmount_attempt"
	EventUnmountSuccess EventType = "unmount_success"
	EventUnmountFailure EventType = "unmount_failure"
)

// SecurityEvent represents a security-relevant event in the system
type SecurityEvent struct {
	// Core event fields
	Timestamp time.Time     `json:"timestamp"`
	EventType EventType     `json:"event_type"`
	Category  EventCategory `json:"category"`
	Severity  EventSeverity `json:"severity"`
	Outcome   EventOutcome  `json:"outcome"`
	Message   string        `json:"message"`

	// CheckID correlates every event emitted by one check-and-repair invocation
	CheckID string `json:"check_id,omitempty"`

	// Identity fields. Only the username and reference; never a secret.
	Username      string `json:"username,omitempty"`
	CredentialRef string `json:"credential_ref,omitempty"`
	Store         string `json:"store,omitempty"`

	// Resource fields
	Remote    string `json:"remote,omitempty"`
	MountPath string `json:"mount_path,omitempty"`

	// Operation details
	Operation string            `json:"operation,omitempty"`
	Duration  time.Duration     `json:"duration_ms,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSecurityEvent creates a new security event with timestamp
func NewSecurityEvent(eventType EventType, category EventCategory, severity EventSeverity, message string) *SecurityEvent {
	return &SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Category:  category,
		Severity:  severity,
		Message:   message,
		Details:   make(map[string]string),
	}
}

// WithOutcome sets the outcome for the event
func (e *SecurityEvent) WithOutcome(outcome EventOutcome) *SecurityEvent {
	e.Outcome = outcome
	return e
}

// WithCheckID sets the correlation ID for the event
func (e *SecurityEvent) WithCheckID(checkID string) *SecurityEvent {
	e.CheckID = checkID
	return e
}

// WithCredential sets credential identity information for the event
func (e *SecurityEvent) WithCredential(ref, store, username string) *SecurityEvent {
	e.CredentialRef = ref
	e.Store = store
	e.Username = username
	return e
}

// WithMount sets the share and mount point for the event
func (e *SecurityEvent) WithMount(remote, mountPath string) *SecurityEvent {
	e.Remote = remote
	e.MountPath = mountPath
	return e
}

// WithOperation sets operation details
func (e *SecurityEvent) WithOperation(operation string, duration time.Duration) *SecurityEvent {
	e.Operation = operation
	e.Duration = duration
	return e
}

// WithError sets error information
func (e *SecurityEvent) WithError(err error) *SecurityEvent {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDetail adds a custom detail field
func (e *SecurityEvent) WithDetail(key, value string) *SecurityEvent {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}
