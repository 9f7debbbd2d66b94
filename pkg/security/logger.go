package security

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

// EventRecorder counts security events, typically the Prometheus metrics
type EventRecorder interface {
	RecordSecurityEvent(category, outcome string)
}

// Logger provides centralized security event logging
type Logger struct {
	recorder EventRecorder
}

// NewLogger creates a new security logger. recorder may be nil.
func NewLogger(recorder EventRecorder) *Logger {
	return &Logger{recorder: recorder}
}

// severityLog maps EventSeverity to the klog function that emits it
var severityLog = map[EventSeverity]func(args ...interface{}){
	SeverityInfo:     func(args ...interface{}) { klog.V(2).Info(args...) },
	SeverityWarning:  klog.Warning,
	SeverityError:    klog.Error,
	SeverityCritical: klog.Error,
}

// LogEvent logs a security event with structured logging
func (l *Logger) LogEvent(event *SecurityEvent) {
	if l == nil {
		return
	}

	if l.recorder != nil {
		l.recorder.RecordSecurityEvent(string(event.Category), string(event.Outcome))
	}

	logFunc, ok := severityLog[event.Severity]
	if !ok {
		logFunc = severityLog[SeverityInfo]
	}
	logFunc(FormatEvent(event))

	// For critical events, also log as JSON for easy parsing
	if event.Severity == SeverityCritical {
		if jsonBytes, err := json.Marshal(event); err == nil {
			klog.Errorf("CRITICAL_SECURITY_EVENT: %s", string(jsonBytes))
		}
	}
}

// FormatEvent formats a security event as a structured log message.
// Error text is redacted again here since it may carry mount helper output.
func FormatEvent(event *SecurityEvent) string {
	msg := fmt.Sprintf("[SECURITY] category=%s type=%s severity=%s outcome=%s msg=\"%s\"",
		event.Category, event.EventType, event.Severity, event.Outcome, event.Message)

	if event.CheckID != "" {
		msg += fmt.Sprintf(" check_id=%s", event.CheckID)
	}
	if event.Username != "" {
		msg += fmt.Sprintf(" username=%s", event.Username)
	}
	if event.CredentialRef != "" {
		msg += fmt.Sprintf(" credential_ref=%s", event.CredentialRef)
	}
	if event.Store != "" {
		msg += fmt.Sprintf(" store=%s", event.Store)
	}
	if event.Remote != "" {
		msg += fmt.Sprintf(" remote=%s", event.Remote)
	}
	if event.MountPath != "" {
		msg += fmt.Sprintf(" mount_path=%s", event.MountPath)
	}
	if event.Operation != "" {
		msg += fmt.Sprintf(" operation=%s", event.Operation)
	}
	if event.Duration > 0 {
		msg += fmt.Sprintf(" duration_ms=%d", event.Duration.Milliseconds())
	}
	if event.Error != "" {
		msg += fmt.Sprintf(" error=\"%s\"", utils.RedactSecrets(event.Error))
	}

	keys := make([]string, 0, len(event.Details))
	for key := range event.Details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		msg += fmt.Sprintf(" %s=\"%s\"", key, event.Details[key])
	}

	msg += fmt.Sprintf(" timestamp=%s", event.Timestamp.Format("2006-01-02T15:04:05.000Z"))
	return msg
}

// LogCredentialResolve logs the outcome of resolving a credential reference
func (l *Logger) LogCredentialResolve(checkID, ref, store, username string, err error) {
	var event *SecurityEvent
	if err == nil {
		event = NewSecurityEvent(EventCredentialResolveSuccess, CategoryAuthentication, SeverityInfo,
			"Credential reference resolved").WithOutcome(OutcomeSuccess)
	} else {
		event = NewSecurityEvent(EventCredentialResolveFailure, CategoryAuthentication, SeverityError,
			"Credential reference could not be resolved").WithOutcome(OutcomeFailure).WithError(err)
	}
	l.LogEvent(event.WithCheckID(checkID).WithCredential(ref, store, username))
}

// LogInsecureCredentialFile logs a credentials file readable by group or others.
// A world-readable file is critical: any local user can read the password.
func (l *Logger) LogInsecureCredentialFile(path string, mode fs.FileMode) {
	l.LogEvent(insecureCredentialFileEvent(path, mode))
}

func insecureCredentialFileEvent(path string, mode fs.FileMode) *SecurityEvent {
	severity, msg := SeverityWarning, "Credentials file is accessible by group"
	if mode.Perm()&0o004 != 0 {
		severity, msg = SeverityCritical, "Credentials file is readable by every local user"
	}
	return NewSecurityEvent(EventCredentialFileInsecure, CategoryAuthentication, severity, msg).
		WithOutcome(OutcomeUnknown).
		WithDetail("path", path).
		WithDetail("mode", fmt.Sprintf("%04o", mode.Perm()))
}

// LogCredentialStored logs credentials being written to a store
func (l *Logger) LogCredentialStored(ref, store, username string, err error) {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if err != nil {
		outcome, severity = OutcomeFailure, SeverityError
	}
	event := NewSecurityEvent(EventCredentialStored, CategoryConfigChange, severity, "Credentials stored").
		WithOutcome(outcome).
		WithCredential(ref, store, username).
		WithError(err)
	l.LogEvent(event)
}

// LogShareAuthFailure logs the file server rejecting credentials
func (l *Logger) LogShareAuthFailure(checkID, remote, mountPath, ref, username string, err error) {
	event := NewSecurityEvent(EventShareAuthFailure, CategoryAuthentication, SeverityError,
		"File server rejected credentials").
		WithOutcome(OutcomeDenied).
		WithCheckID(checkID).
		WithCredential(ref, "", username).
		WithMount(remote, mountPath).
		WithError(err)
	l.LogEvent(event)
}

// LogRemoteUnreachable logs a failed reachability check
func (l *Logger) LogRemoteUnreachable(checkID, remote string, err error) {
	event := NewSecurityEvent(EventRemoteUnreachable, CategoryNetworkAccess, SeverityWarning,
		"File server is unreachable").
		WithOutcome(OutcomeFailure).
		WithCheckID(checkID).
		WithMount(remote, "").
		WithError(err)
	l.LogEvent(event)
}

// operationLogConfig defines the events emitted around one operation
type operationLogConfig struct {
	Operation   string
	RequestType EventType
	SuccessType EventType
	FailureType EventType
	SuccessMsg  string
	FailureMsg  string
	RequestMsg  string
}

var (
	mountOperation = operationLogConfig{
		Operation: "mount", RequestType: EventMountAttempt, SuccessType: EventMountSuccess, FailureType: EventMountFailure,
		SuccessMsg: "Share mounted", FailureMsg: "Share mount failed", RequestMsg: "Share mount requested",
	}
	unmountOperation = operationLogConfig{
		Operation: "unmount", RequestType: EventUnmountAttempt, SuccessType: EventUnmountSuccess, FailureType: EventUnmountFailure,
		SuccessMsg: "Share unmounted", FailureMsg: "Share unmount failed", RequestMsg: "Share unmount requested",
	}
)

func (l *Logger) logOperation(config operationLogConfig, outcome EventOutcome, checkID, remote, mountPath string, err error, duration time.Duration) {
	var event *SecurityEvent
	switch outcome {
	case OutcomeSuccess:
		event = NewSecurityEvent(config.SuccessType, CategoryDataAccess, SeverityInfo, config.SuccessMsg)
	case OutcomeFailure:
		event = NewSecurityEvent(config.FailureType, CategoryDataAccess, SeverityError, config.FailureMsg)
	default:
		event = NewSecurityEvent(config.RequestType, CategoryDataAccess, SeverityInfo, config.RequestMsg)
	}
	event.WithOutcome(outcome).
		WithCheckID(checkID).
		WithMount(remote, mountPath).
		WithOperation(config.Operation, duration).
		WithError(err)
	l.LogEvent(event)
}

// LogMount logs mount events
func (l *Logger) LogMount(checkID, remote, mountPath string, outcome EventOutcome, err error, duration time.Duration) {
	l.logOperation(mountOperation, outcome, checkID, remote, mountPath, err, duration)
}

// LogUnmount logs unmount events
func (l *Logger) LogUnmount(checkID, mountPath string, outcome EventOutcome, err error, duration time.Duration) {
	l.logOperation(unmountOperation, outcome, checkID, "", mountPath, err, duration)
}
