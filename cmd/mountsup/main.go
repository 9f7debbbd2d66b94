package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/mountsup/pkg/config"
	"git.srvlab.io/whiskey/mountsup/pkg/credentials"
	"git.srvlab.io/whiskey/mountsup/pkg/mount"
	"git.srvlab.io/whiskey/mountsup/pkg/observability"
	"git.srvlab.io/whiskey/mountsup/pkg/scheduler"
	"git.srvlab.io/whiskey/mountsup/pkg/security"
	"git.srvlab.io/whiskey/mountsup/pkg/supervisor"
	"git.srvlab.io/whiskey/mountsup/pkg/units"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// options holds the command line flags
type options struct {
	configPath string

	// Mount configuration, overriding the config file when set
	remote          string
	mountPoint      string
	credentialRef   string
	mountOptions    string
	port            int
	probeTimeout    time.Duration
	timeout         time.Duration
	credentialStore string
	credentialDir   string
	keyringService  string
	metricsTextfile string

	// Modes
	watch          bool
	interval       time.Duration
	metricsAddress string
	emitUnits      string
	setCredential  string
	showVersion    bool
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to the YAML configuration file")

	fs.StringVar(&o.remote, "remote", "", "Share to mount, as //host/share")
	fs.StringVar(&o.mountPoint, "mount-point", "", "Absolute local mount point")
	fs.StringVar(&o.credentialRef, "credential-ref", "", "Credential reference resolved by the credential store")
	fs.StringVar(&o.mountOptions, "options", "", "Extra mount options, k=v,k2=v2,flag")
	fs.IntVar(&o.port, "port", supervisor.DefaultPort, "SMB port used for the reachability check")
	fs.DurationVar(&o.probeTimeout, "probe-timeout", mount.DefaultProbeTimeout, "Timeout of the health probe")
	fs.DurationVar(&o.timeout, "timeout", config.DefaultTimeout, "Timeout of one check-and-repair")
	fs.StringVar(&o.credentialStore, "credential-store", config.StoreTypeFile, "Credential store: file or keyring")
	fs.StringVar(&o.credentialDir, "credential-dir", credentials.DefaultDir, "Directory of credential files for the file store")
	fs.StringVar(&o.keyringService, "keyring-service", credentials.DefaultKeyringService, "Service name for the keyring store")
	fs.StringVar(&o.metricsTextfile, "metrics-textfile", "", "Write metrics to this file after each check (node_exporter textfile collector)")

	fs.BoolVar(&o.watch, "watch", false, "Keep running and check every --interval")
	fs.DurationVar(&o.interval, "interval", config.DefaultInterval, "Interval between checks in watch mode and generated timers")
	fs.StringVar(&o.metricsAddress, "metrics-address", "", "Serve /metrics on this address in watch mode, e.g. :9469")
	fs.StringVar(&o.emitUnits, "emit-units", "", "Write systemd service and timer units to this directory and exit")
	fs.StringVar(&o.setCredential, "set-credential", "", "Store credentials read from stdin in the keyring under this reference and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	return o
}

// applyOverrides copies every flag set on the command line into cfg
func applyOverrides(cfg *config.Config, o *options, fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "remote":
			cfg.Remote = o.remote
		case "mount-point":
			cfg.MountPoint = o.mountPoint
		case "credential-ref":
			cfg.CredentialRef = o.credentialRef
		case "options":
			opts, perr := config.ParseOptions(o.mountOptions)
			if perr != nil {
				err = perr
				return
			}
			cfg.Options = opts
		case "port":
			cfg.Port = o.port
		case "probe-timeout":
			cfg.ProbeTimeout.Duration = o.probeTimeout
		case "timeout":
			cfg.Timeout.Duration = o.timeout
		case "interval":
			cfg.Interval.Duration = o.interval
		case "credential-store":
			cfg.CredentialStore.Type = o.credentialStore
		case "credential-dir":
			cfg.CredentialStore.Dir = o.credentialDir
		case "keyring-service":
			cfg.CredentialStore.Service = o.keyringService
		case "metrics-textfile":
			cfg.MetricsTextfile = o.metricsTextfile
		}
	})
	if err != nil {
		return err
	}
	cfg.ApplyDefaults()
	return nil
}

// loadConfig reads --config, if any, and applies command line overrides
func loadConfig(o *options, fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.Config{}, err
		}
		klog.V(4).Infof("Loaded configuration from %s", o.configPath)
	}
	if err := applyOverrides(&cfg, o, fs); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// failureMessage renders err as "<kind>: <message>"
func failureMessage(err error) string {
	var mErr *supervisor.MountError
	if errors.As(err, &mErr) {
		return mErr.Error()
	}
	return fmt.Sprintf("%s: %v", supervisor.KindUnknown, err)
}

func main() {
	o := registerFlags(flag.CommandLine)
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if o.showVersion {
		fmt.Println("mountsup", version)
		os.Exit(0)
	}

	if o.setCredential != "" {
		if err := setCredential(o, os.Stdin); err != nil {
			klog.Fatalf("Failed to store credentials: %v", err)
		}
		return
	}

	cfg, err := loadConfig(o, flag.CommandLine)
	if err != nil {
		klog.Fatalf("Configuration error: %v", err)
	}
	spec, err := cfg.MountSpec()
	if err != nil {
		klog.Fatalf("Configuration error: %v", err)
	}

	if o.emitUnits != "" {
		if err := emitUnits(o, cfg); err != nil {
			klog.Fatalf("Failed to write units: %v", err)
		}
		return
	}

	metrics := observability.NewMetrics()
	events := security.NewLogger(metrics)
	store, err := cfg.NewStore(events.LogInsecureCredentialFile)
	if err != nil {
		klog.Fatalf("Configuration error: %v", err)
	}

	sup, err := supervisor.New(supervisor.Config{
		Prober:       mount.NewDirProber(cfg.ProbeTimeout.Duration),
		Store:        store,
		Reachability: supervisor.DialReachability(supervisor.DefaultDialTimeout),
		Metrics:      metrics,
		Events:       events,
	})
	if err != nil {
		klog.Fatalf("Failed to create supervisor: %v", err)
	}

	klog.V(2).Infof("Supervising %s", spec)

	if o.watch {
		if err := runWatch(o, cfg, spec, sup, metrics); err != nil {
			klog.Fatalf("Configuration error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Duration)
	err = sup.CheckAndRepair(ctx, spec)
	cancel()
	writeTextfile(cfg, metrics)

	if err != nil {
		fmt.Fprintln(os.Stderr, failureMessage(err))
		klog.Flush()
		os.Exit(supervisor.ExitCode(err))
	}
	klog.V(2).Infof("%s is mounted at %s", spec.Source(), spec.MountPoint)
}

func runWatch(o *options, cfg config.Config, spec supervisor.MountSpec, sup *supervisor.Supervisor, metrics *observability.Metrics) error {
	s, err := scheduler.New(cfg.Interval.Duration)
	if err != nil {
		return err
	}
	s.Timeout = cfg.WatchTimeout()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.metricsAddress != "" {
		server := newMetricsServer(o.metricsAddress, metrics)
		go func() {
			klog.Infof("Serving metrics on %s", o.metricsAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	s.Run(ctx, func(ctx context.Context) error {
		err := sup.CheckAndRepair(ctx, spec)
		writeTextfile(cfg, metrics)
		return err
	})
	return nil
}

func newMetricsServer(addr string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeTextfile(cfg config.Config, metrics *observability.Metrics) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		klog.Warningf("%v", err)
	}
}

func emitUnits(o *options, cfg config.Config) error {
	if o.configPath == "" {
		return fmt.Errorf("--emit-units needs --config so the service can find its configuration")
	}
	configPath, err := filepath.Abs(o.configPath)
	if err != nil {
		return err
	}
	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	files, err := units.Generate(units.Options{
		MountPoint: cfg.MountPoint,
		Remote:     cfg.Remote,
		Binary:     binary,
		ConfigPath: configPath,
		Interval:   cfg.Interval.Duration,
	})
	if err != nil {
		return err
	}
	if err := units.Write(o.emitUnits, files); err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(filepath.Join(o.emitUnits, f.Name))
	}
	return nil
}

// setCredential reads credentials-file text from r and stores it in the keyring
func setCredential(o *options, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}
	creds, err := credentials.Parse(string(data))
	if err != nil {
		return err
	}

	store := credentials.NewKeyringStore(o.keyringService)
	err = store.Store(o.setCredential, creds)
	security.NewLogger(nil).LogCredentialStored(o.setCredential, store.Name(), creds.Username, err)
	return err
}
