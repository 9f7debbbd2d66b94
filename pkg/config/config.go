// Package config loads the mount supervisor configuration from YAML and turns
// it into a MountSpec and a credential store.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"git.srvlab.io/whiskey/mountsup/pkg/credentials"
	"git.srvlab.io/whiskey/mountsup/pkg/mount"
	"git.srvlab.io/whiskey/mountsup/pkg/supervisor"
	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

// Default configuration values
const (
	DefaultTimeout  = 2 * time.Minute
	DefaultInterval = time.Minute

	StoreTypeFile    = "file"
	StoreTypeKeyring = "keyring"
)

// ErrInvalidConfig is wrapped by every validation and parse failure
var ErrInvalidConfig = errors.New("invalid configuration")

// CredentialStoreConfig selects and configures the credential store
type CredentialStoreConfig struct {
	// Type is "file" or "keyring"
	Type string `json:"type,omitempty"`

	// Dir holds credential files for the file store
	Dir string `json:"dir,omitempty"`

	// Service is the keyring service name
	Service string `json:"service,omitempty"`
}

// Config is the on-disk configuration
type Config struct {
	Remote        string            `json:"remote"`
	MountPoint    string            `json:"mountPoint"`
	CredentialRef string            `json:"credentialRef"`
	Port          int               `json:"port,omitempty"`
	Options       map[string]string `json:"options,omitempty"`

	// ProbeTimeout bounds the health probe
	ProbeTimeout metav1.Duration `json:"probeTimeout,omitempty"`

	// Timeout bounds one check-and-repair invocation
	Timeout metav1.Duration `json:"timeout,omitempty"`

	// Interval between checks in watch mode and in generated timer units
	Interval metav1.Duration `json:"interval,omitempty"`

	CredentialStore CredentialStoreConfig `json:"credentialStore,omitempty"`

	// MetricsTextfile is written after each check when set
	MetricsTextfile string `json:"metricsTextfile,omitempty"`
}

// Default returns a Config with every default filled in
func Default() Config {
	c := Config{}
	c.ApplyDefaults()
	return c
}

// Load reads and validates the YAML file at path
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: config file %s does not exist", ErrInvalidConfig, path)
		}
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML. Unknown fields are rejected. Defaults are applied but
// the result is not validated, so flags can still fill in missing fields.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero fields
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = supervisor.DefaultPort
	}
	if c.ProbeTimeout.Duration == 0 {
		c.ProbeTimeout.Duration = mount.DefaultProbeTimeout
	}
	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = DefaultTimeout
	}
	if c.Interval.Duration == 0 {
		c.Interval.Duration = DefaultInterval
	}
	if c.CredentialStore.Type == "" {
		c.CredentialStore.Type = StoreTypeFile
	}
	if c.CredentialStore.Type == StoreTypeFile && c.CredentialStore.Dir == "" {
		c.CredentialStore.Dir = credentials.DefaultDir
	}
	if c.CredentialStore.Type == StoreTypeKeyring && c.CredentialStore.Service == "" {
		c.CredentialStore.Service = credentials.DefaultKeyringService
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if _, err := c.MountSpec(); err != nil {
		return err
	}
	if c.ProbeTimeout.Duration <= 0 {
		return fmt.Errorf("%w: probeTimeout must be positive", ErrInvalidConfig)
	}
	if c.Timeout.Duration <= c.ProbeTimeout.Duration {
		return fmt.Errorf("%w: timeout %v must be longer than probeTimeout %v",
			ErrInvalidConfig, c.Timeout.Duration, c.ProbeTimeout.Duration)
	}
	if c.Interval.Duration <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	switch c.CredentialStore.Type {
	case StoreTypeFile:
		if err := utils.ValidateMountPoint(c.CredentialStore.Dir); err != nil {
			return fmt.Errorf("%w: credentialStore.dir: %v", ErrInvalidConfig, err)
		}
	case StoreTypeKeyring:
		if c.CredentialStore.Service == "" {
			return fmt.Errorf("%w: credentialStore.service is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown credentialStore.type %q (want %s or %s)",
			ErrInvalidConfig, c.CredentialStore.Type, StoreTypeFile, StoreTypeKeyring)
	}
	return nil
}

// WatchTimeout is the per-cycle timeout in watch mode: Timeout, but never
// more than half the interval.
func (c Config) WatchTimeout() time.Duration {
	if half := c.Interval.Duration / 2; c.Timeout.Duration > half {
		return half
	}
	return c.Timeout.Duration
}

// MountSpec builds and validates the MountSpec described by c
func (c Config) MountSpec() (supervisor.MountSpec, error) {
	host, share, err := supervisor.ParseRemote(c.Remote)
	if err != nil {
		return supervisor.MountSpec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	spec := supervisor.MountSpec{
		Host:          host,
		Share:         share,
		MountPoint:    c.MountPoint,
		CredentialRef: c.CredentialRef,
		Options:       c.Options,
		Port:          c.Port,
	}
	if err := spec.Validate(); err != nil {
		return supervisor.MountSpec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return spec.Clone(), nil
}

// NewStore creates the configured credential store. onInsecure is attached
// to a file store and may be nil.
func (c Config) NewStore(onInsecure func(path string, mode fs.FileMode)) (credentials.Store, error) {
	switch c.CredentialStore.Type {
	case StoreTypeFile:
		store := credentials.NewFileStore(c.CredentialStore.Dir)
		store.OnInsecureMode = onInsecure
		return store, nil
	case StoreTypeKeyring:
		return credentials.NewKeyringStore(c.CredentialStore.Service), nil
	default:
		return nil, fmt.Errorf("%w: unknown credentialStore.type %q", ErrInvalidConfig, c.CredentialStore.Type)
	}
}

// ParseOptions parses "k=v,k2=v2,flag" into an options map
func ParseOptions(s string) (map[string]string, error) {
	opts := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return opts, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if err := utils.ValidateMountOption(key, value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if _, dup := opts[key]; dup {
			return nil, fmt.Errorf("%w: option %q given twice", ErrInvalidConfig, key)
		}
		opts[key] = value
	}
	return opts, nil
}
