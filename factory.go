package cliconf

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-cliconf/drivers/cli"
	"github.com/nanoncore/nano-cliconf/drivers/snmp"
	"github.com/nanoncore/nano-cliconf/internal/logger"
	"github.com/nanoncore/nano-cliconf/vendors"
)

// DialectAuto asks Connect to pick the dialect from the device's SNMP sysDescr
const DialectAuto = "auto"

// Option configures New and Connect
type Option func(*options)

type options struct {
	registry    *vendors.Registry
	sessionOpts []cli.Option
	log         *logrus.Entry
}

func buildOptions(opts []Option) options {
	o := options{registry: vendors.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRegistry resolves dialect names in r instead of the default registry
func WithRegistry(r *vendors.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithSessionOptions passes options to the underlying session
func WithSessionOptions(opts ...cli.Option) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

// WithLogger sets the facade log entry
func WithLogger(entry *logrus.Entry) Option {
	return func(o *options) {
		o.log = entry
	}
}

// New wraps an open session
func New(name string, session *cli.Session, opts ...Option) *Cliconf {
	o := buildOptions(opts)
	log := o.log
	if log == nil {
		log = logger.WithField("component", "cliconf")
	}
	return &Cliconf{
		name:    name,
		session: session,
		dialect: session.Dialect(),
		log:     log.WithFields(logrus.Fields{"device": name, "dialect": session.Dialect().Name()}),
	}
}

// Connect resolves the device dialect, dials the configured transport and opens the session
func Connect(ctx context.Context, cfg DeviceConfig, opts ...Option) (*Cliconf, error) {
	o := buildOptions(opts)

	dialect, err := ResolveDialect(ctx, cfg, o.registry)
	if err != nil {
		return nil, err
	}
	session, err := cli.Connect(ctx, cfg, dialect, o.sessionOpts...)
	if err != nil {
		return nil, err
	}
	return New(cfg.Name, session, opts...), nil
}

// ResolveDialect looks cfg.Dialect up in registry. An empty name or DialectAuto probes the
// device over SNMP and matches its sysDescr.
func ResolveDialect(ctx context.Context, cfg DeviceConfig, registry *vendors.Registry) (*vendors.Dialect, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Dialect))
	if name != "" && name != DialectAuto {
		return registry.Get(name)
	}
	if cfg.Transport == TransportMock {
		return nil, InvalidParameter("connect", "device %s: the simulated transport needs an explicit dialect", cfg.Name)
	}

	prober, err := snmp.Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dialect detection for %s: %w", cfg.Name, err)
	}
	defer prober.Close()

	dialect, info, err := prober.Detect(ctx, registry)
	if err != nil {
		return nil, fmt.Errorf("dialect detection for %s: %w", cfg.Name, err)
	}
	logger.WithFields(logrus.Fields{
		"component": "cliconf",
		"device":    cfg.Name,
		"dialect":   dialect.Name(),
		"sys_name":  info.Name,
	}).Info("dialect detected")
	return dialect, nil
}

// DialectInfo summarises a registered device family
type DialectInfo struct {
	Name        string `json:"name"`
	NetworkOS   string `json:"network_os"`
	Description string `json:"description,omitempty"`
}

// SupportedDialects lists the families known to registry, by name
func SupportedDialects(registry *vendors.Registry) []DialectInfo {
	if registry == nil {
		registry = vendors.Default()
	}
	names := registry.Names()
	out := make([]DialectInfo, 0, len(names))
	for _, name := range names {
		d, err := registry.Get(name)
		if err != nil {
			continue
		}
		out = append(out, DialectInfo{Name: d.Name(), NetworkOS: d.NetworkOS(), Description: d.Description()})
	}
	return out
}
