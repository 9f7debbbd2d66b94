package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"git.srvlab.io/whiskey/mountsup/pkg/mount"
)

// DefaultProbeTimeout bounds a probe of a hung mount
const DefaultProbeTimeout = 200 * time.Millisecond

// MockMounter simulates the kernel side of CIFS mounts. It implements
// mount.Mounter, mount.MountTable and mount.Prober over one in-memory table,
// and checks mounts against a MockSMBServer when one is attached.
type MockMounter struct {
	mu sync.RWMutex

	server        *MockSMBServer
	timing        *TimingSimulator
	errorInjector *ErrorInjector

	// ProbeTimeout bounds a probe of a hung mount
	ProbeTimeout time.Duration

	// Mount table: target path -> stacked entries
	entries map[string][]mount.Entry

	// Mount points whose probes block
	hung map[string]bool

	// Error injection
	mountErr   error
	unmountErr error
	tableErr   error

	// Call tracking
	mountCalls   []MountCall
	unmountCalls []UnmountCall
	probeCalls   int
}

// MountCall tracks a Mount operation. The password is never recorded.
type MountCall struct {
	Source   string
	Target   string
	FSType   string
	Options  []string
	Username string
}

// UnmountCall tracks an Unmount operation
type UnmountCall struct {
	Target string
	Lazy   bool
}

// NewMockMounter creates a new mock mounter. server may be nil, in which case
// every mount is accepted.
func NewMockMounter(server *MockSMBServer) *MockMounter {
	config := LoadConfigFromEnv()
	return &MockMounter{
		server:        server,
		timing:        NewTimingSimulator(config),
		errorInjector: NewErrorInjector(config),
		ProbeTimeout:  DefaultProbeTimeout,
		entries:       make(map[string][]mount.Entry),
		hung:          make(map[string]bool),
	}
}

func commandError(command, output string) error {
	return &mount.CommandError{
		Command: command,
		Err:     errors.New("exit status 32"),
		Output:  strings.TrimSpace(output),
	}
}

// Mount implements mount.Mounter
func (m *MockMounter) Mount(source, target, fsType string, options []string, secret *mount.Secret) error {
	m.timing.SimulateOperation("mount")

	m.mu.Lock()
	defer m.mu.Unlock()

	call := MountCall{Source: source, Target: target, FSType: fsType, Options: append([]string(nil), options...)}
	var username, password string
	if secret != nil {
		username, password = secret.Username, secret.Password
		call.Username = username
	}
	m.mountCalls = append(m.mountCalls, call)

	if m.mountErr != nil {
		return m.mountErr
	}
	if fail, output := m.errorInjector.ShouldFailMount(); fail {
		return commandError("mount", output)
	}

	if m.server != nil {
		host, share, ok := strings.Cut(strings.TrimPrefix(source, "//"), "/")
		if !ok || host != m.server.Address() {
			return commandError("mount", "mount error: could not resolve address for "+host+": Unknown error")
		}
		if output, ok := m.server.connect(share, username, password); !ok {
			return commandError("mount", output)
		}
	}

	m.entries[target] = append(m.entries[target], mount.Entry{
		Source:  source,
		Target:  target,
		FSType:  fsType,
		Options: strings.Join(options, ","),
	})
	m.hung[target] = false
	return nil
}

// Unmount implements mount.Mounter. A plain unmount of a hung mount fails
// with "target is busy", as umount does on a dead share.
func (m *MockMounter) Unmount(target string, lazy bool) error {
	m.timing.SimulateOperation("unmount")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.unmountCalls = append(m.unmountCalls, UnmountCall{Target: target, Lazy: lazy})

	if m.unmountErr != nil {
		return m.unmountErr
	}

	stack := m.entries[target]
	if len(stack) == 0 {
		return nil
	}
	if m.hung[target] && !lazy {
		return commandError("umount", "umount: "+target+": target is busy.")
	}

	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(m.entries, target)
		delete(m.hung, target)
		return nil
	}
	m.entries[target] = stack
	return nil
}

// Entries implements mount.MountTable
func (m *MockMounter) Entries(ctx context.Context, target string) ([]mount.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.tableErr != nil {
		return nil, m.tableErr
	}
	entries := make([]mount.Entry, len(m.entries[target]))
	copy(entries, m.entries[target])
	return entries, nil
}

// Probe implements mount.Prober
func (m *MockMounter) Probe(ctx context.Context, path string) error {
	m.mu.Lock()
	m.probeCalls++
	hung := m.hung[path]
	mounted := len(m.entries[path]) > 0
	timeout := m.ProbeTimeout
	m.mu.Unlock()

	if hung {
		select {
		case <-ctx.Done():
		case <-time.After(timeout):
		}
		return fmt.Errorf("%w after %v on %s", mount.ErrProbeTimeout, timeout, path)
	}

	m.timing.SimulateOperation("probe")
	if mounted && m.server != nil && !m.server.Online() {
		return fmt.Errorf("failed to read %s: host is down", path)
	}
	return nil
}

// Test helper methods

// AddEntry puts an entry in the table without going through Mount
func (m *MockMounter) AddEntry(target, source, fsType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[target] = append(m.entries[target], mount.Entry{Source: source, Target: target, FSType: fsType})
}

// SetHung makes probes of target block until they time out
func (m *MockMounter) SetHung(target string, hung bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hung[target] = hung
}

// SetMountError sets an error to return on Mount operations
func (m *MockMounter) SetMountError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mountErr = err
}

// SetUnmountError sets an error to return on Unmount operations
func (m *MockMounter) SetUnmountError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmountErr = err
}

// SetTableError sets an error to return when reading the mount table
func (m *MockMounter) SetTableError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableErr = err
}

// ErrorInjector returns the injector driving mount failures
func (m *MockMounter) ErrorInjector() *ErrorInjector {
	return m.errorInjector
}

// ClearErrors clears all error injection
func (m *MockMounter) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mountErr = nil
	m.unmountErr = nil
	m.tableErr = nil
	m.errorInjector.SetMode(ErrorModeNone, 0)
}

// GetMountCalls returns the history of Mount calls
func (m *MockMounter) GetMountCalls() []MountCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]MountCall, len(m.mountCalls))
	copy(calls, m.mountCalls)
	return calls
}

// GetUnmountCalls returns the history of Unmount calls
func (m *MockMounter) GetUnmountCalls() []UnmountCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]UnmountCall, len(m.unmountCalls))
	copy(calls, m.unmountCalls)
	return calls
}

// ProbeCalls returns how many probes ran
func (m *MockMounter) ProbeCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.probeCalls
}

// EntryCount returns the number of entries at target
func (m *MockMounter) EntryCount(target string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[target])
}

// Reset clears all state for test isolation
func (m *MockMounter) Reset() {
	m.mu.Lock()
	m.entries = make(map[string][]mount.Entry)
	m.hung = make(map[string]bool)
	m.mountCalls = nil
	m.unmountCalls = nil
	m.probeCalls = 0
	m.mu.Unlock()
	m.ClearErrors()
}
