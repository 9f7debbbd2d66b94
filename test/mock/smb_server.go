package mock

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// MockSMBServer simulates an SMB file server for testing. It accepts TCP
// connections so reachability checks succeed, and it holds the shares and
// accounts the MockMounter checks mounts against.
type MockSMBServer struct {
	address     string
	port        int
	listener    net.Listener
	config      MockSMBConfig
	shares      map[string]bool   // share names, lower case
	users       map[string]string // username -> password
	connections atomic.Int64
	mu          sync.RWMutex
	shutdown    chan struct{}
}

// NewMockSMBServer creates a new mock SMB server. Port 0 picks a free port on Start.
func NewMockSMBServer(port int) *MockSMBServer {
	return &MockSMBServer{
		address:  "127.0.0.1",
		port:     port,
		config:   LoadConfigFromEnv(),
		shares:   make(map[string]bool),
		users:    make(map[string]string),
		shutdown: make(chan struct{}),
	}
}

// Start starts listening
func (s *MockSMBServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenLocked()
}

func (s *MockSMBServer) listenLocked() error {
	addr := net.JoinHostPort(s.address, fmt.Sprintf("%d", s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	// Update port if it was 0 (random port assignment)
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}

	klog.Infof("Mock SMB server listening on %s:%d", s.address, s.port)
	go s.acceptConnections(listener)
	return nil
}

// Stop stops the mock SMB server
func (s *MockSMBServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		return nil
	default:
	}
	close(s.shutdown)
	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}

// SetOnline closes or reopens the listener on the same port, simulating the
// file server going away and coming back.
func (s *MockSMBServer) SetOnline(online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !online {
		if s.listener == nil {
			return nil
		}
		err := s.listener.Close()
		s.listener = nil
		klog.Infof("Mock SMB server %s:%d is offline", s.address, s.port)
		return err
	}
	if s.listener != nil {
		return nil
	}
	return s.listenLocked()
}

// Online reports whether the server accepts connections
func (s *MockSMBServer) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listener != nil
}

// Address returns the server address
func (s *MockSMBServer) Address() string {
	return s.address
}

// Port returns the server port
func (s *MockSMBServer) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Remote returns the //host/share form for share
func (s *MockSMBServer) Remote(share string) string {
	return "//" + s.address + "/" + share
}

// Connections returns how many TCP connections were accepted
func (s *MockSMBServer) Connections() int64 {
	return s.connections.Load()
}

// AddShare exports a share
func (s *MockSMBServer) AddShare(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[strings.ToLower(name)] = true
}

// AddUser creates an account
func (s *MockSMBServer) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
}

// RemoveUser deletes an account, so later mounts with it are rejected
func (s *MockSMBServer) RemoveUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

// connect checks a mount of share with the given account and returns the
// mount.cifs output for a failure.
func (s *MockSMBServer) connect(share, username, password string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return "mount error(112): Host is down\n", false
	}
	// Only the first path element names the share
	name, _, _ := strings.Cut(share, "/")
	if !s.shares[strings.ToLower(name)] {
		return "mount error(2): No such file or directory\n", false
	}
	if pw, ok := s.users[username]; !ok || pw != password {
		return "mount error(13): Permission denied\n", false
	}
	return "", true
}

func (s *MockSMBServer) acceptConnections(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			klog.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.connections.Add(1)
		klog.V(4).Infof("Mock SMB connection from %s", conn.RemoteAddr())
		_ = conn.Close()
	}
}
