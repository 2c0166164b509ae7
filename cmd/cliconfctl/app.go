package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	cliconf "github.com/nanoncore/nano-cliconf"
	"github.com/nanoncore/nano-cliconf/internal/config"
	"github.com/nanoncore/nano-cliconf/internal/logger"
	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
)

// app is the state shared by the subcommands once the configuration is loaded
type app struct {
	cfg      *config.Config
	registry *vendors.Registry
	log      *logrus.Entry

	configPath string
	devices    []string
	simulate   bool
	logLevel   string
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}

	a.registry = vendors.Default()
	if cfg.Dialects.Dir != "" {
		names, err := a.registry.LoadDir(cfg.Dialects.Dir)
		if err != nil {
			return err
		}
		logger.WithField("dialects", names).Info("loaded dialects")
	}
	a.cfg = cfg
	a.log = logger.WithField("component", "cliconfctl")
	return nil
}

// targets returns the selected inventory entries, all of them when none is named
func (a *app) targets() ([]types.DeviceConfig, error) {
	var out []types.DeviceConfig
	if len(a.devices) == 0 {
		out = a.cfg.DeviceConfigs()
	} else {
		for _, name := range a.devices {
			d, err := a.cfg.Device(name)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no devices selected, add some to the inventory or pass --device")
	}
	if a.simulate {
		for i := range out {
			out[i].Transport = types.TransportMock
		}
	}
	return out, nil
}

func (a *app) connect(ctx context.Context, dc types.DeviceConfig) (*cliconf.Cliconf, error) {
	return cliconf.Connect(ctx, dc, cliconf.WithRegistry(a.registry))
}

// deviceFunc runs against one connected device and returns the text to print for it
type deviceFunc func(ctx context.Context, c *cliconf.Cliconf) (string, error)

// fanOut connects to every target with bounded concurrency and prints the results in
// inventory order. A failing device does not stop the others; all failures are returned.
func (a *app) fanOut(ctx context.Context, w io.Writer, fn deviceFunc) error {
	targets, err := a.targets()
	if err != nil {
		return err
	}

	outputs := make([]string, len(targets))
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for i, dc := range targets {
		g.Go(func() error {
			c, err := a.connect(ctx, dc)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", dc.Name, err)
				return nil
			}
			defer c.Close()

			out, err := fn(ctx, c)
			outputs[i] = out
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", dc.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var combined error
	for i, dc := range targets {
		if len(targets) > 1 {
			fmt.Fprintf(w, "=== %s\n", dc.Name)
		}
		if outputs[i] != "" {
			fmt.Fprintln(w, outputs[i])
		}
		if errs[i] != nil {
			a.log.WithError(errs[i]).WithField("device", dc.Name).Error("device failed")
			combined = multierr.Append(combined, errs[i])
		}
	}
	return combined
}
