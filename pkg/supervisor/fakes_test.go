package supervisor

import (
	"context"
	"errors"
	"sync"

	"git.srvlab.io/whiskey/mountsup/pkg/credentials"
	"git.srvlab.io/whiskey/mountsup/pkg/mount"
)

// fakeTable is an in-memory mount table keyed by mount point
type fakeTable struct {
	mu      sync.Mutex
	entries map[string][]mount.Entry
	err     error

	// failOnDone makes reads fail once ctx is done, like a bounded table read
	failOnDone bool
}

func newFakeTable() *fakeTable {
	return &fakeTable{entries: make(map[string][]mount.Entry)}
}

func (t *fakeTable) Entries(ctx context.Context, target string) ([]mount.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	if t.failOnDone && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := make([]mount.Entry, len(t.entries[target]))
	copy(out, t.entries[target])
	return out, nil
}

func (t *fakeTable) add(target, source, fsType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[target] = append(t.entries[target], mount.Entry{Source: source, Target: target, FSType: fsType})
}

func (t *fakeTable) count(target string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[target])
}

func (t *fakeTable) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// fakeMounter updates a fakeTable the way the kernel would
type fakeMounter struct {
	mu    sync.Mutex
	table *fakeTable

	mountErr   error
	unmountErr error

	// onMount runs while Mount is in flight
	onMount func()

	mounts      int
	unmounts    int
	lazy        []bool
	lastOptions []string
	lastSecret  *mount.Secret
	lastSource  string
}

func (m *fakeMounter) Mount(source, target, fsType string, options []string, secret *mount.Secret) error {
	m.mu.Lock()
	m.mounts++
	m.lastSource = source
	m.lastOptions = append([]string(nil), options...)
	m.lastSecret = secret
	err, onMount := m.mountErr, m.onMount
	m.mu.Unlock()

	if onMount != nil {
		onMount()
	}
	if err != nil {
		return err
	}
	m.table.add(target, source, fsType)
	return nil
}

func (m *fakeMounter) Unmount(target string, lazy bool) error {
	m.mu.Lock()
	m.unmounts++
	m.lazy = append(m.lazy, lazy)
	err := m.unmountErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.table.mu.Lock()
	defer m.table.mu.Unlock()
	if n := len(m.table.entries[target]); n > 0 {
		m.table.entries[target] = m.table.entries[target][:n-1]
	}
	return nil
}

func (m *fakeMounter) calls() (mounts, unmounts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounts, m.unmounts
}

// fakeProber returns err, or blocks until ctx is done when block is set
type fakeProber struct {
	mu     sync.Mutex
	err    error
	block  bool
	probes int
}

func (p *fakeProber) Probe(ctx context.Context, path string) error {
	p.mu.Lock()
	p.probes++
	err, block := p.err, p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return mount.ErrProbeTimeout
	}
	return err
}

func (p *fakeProber) set(err error, block bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err, p.block = err, block
}

// fakeStore resolves every reference to creds unless err is set
type fakeStore struct {
	creds    credentials.Credentials
	err      error
	resolves int
}

func (s *fakeStore) Resolve(ctx context.Context, ref string) (credentials.Credentials, error) {
	s.resolves++
	if s.err != nil {
		return credentials.Credentials{}, s.err
	}
	return s.creds, nil
}

func (s *fakeStore) Name() string {
	return "fake"
}

// harness wires a Supervisor to fakes
type harness struct {
	sup      *Supervisor
	table    *fakeTable
	mounter  *fakeMounter
	prober   *fakeProber
	store    *fakeStore
	reachErr error
	dials    int
	spec     MountSpec
}

func newHarness() *harness {
	h := &harness{
		table:  newFakeTable(),
		prober: &fakeProber{},
		store:  &fakeStore{creds: credentials.Credentials{Username: "svc-backup", Password: "s3cr3t pass"}},
		spec: MountSpec{
			Host:          "fileserver.lan",
			Share:         "backups",
			MountPoint:    "/mnt/backups",
			CredentialRef: "backup",
			Options:       map[string]string{"vers": "3.0", "ro": ""},
		},
	}
	h.mounter = &fakeMounter{table: h.table}

	sup, err := New(Config{
		Mounter: h.mounter,
		Table:   h.table,
		Prober:  h.prober,
		Store:   h.store,
		Reachability: func(ctx context.Context, address string) error {
			h.dials++
			return h.reachErr
		},
	})
	if err != nil {
		panic(err)
	}
	sup.newCheckID = func() string { return "test-check" }
	h.sup = sup
	return h
}

// commandError builds the error the real mounter returns for a failed command
func commandError(output string) error {
	return &mount.CommandError{
		Command: "mount",
		Err:     errors.New("exit status 32"),
		Output:  output,
	}
}

var errStoreMissing = errors.New("credential not found")
