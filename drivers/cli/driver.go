// Package cli runs commands on interactive device shells: the executor that reads until a
// prompt returns, the session that tracks the privilege mode, and the transports that carry
// the byte stream.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/nanoncore/nano-cliconf/drivers/mock"
	"github.com/nanoncore/nano-cliconf/internal/logger"
	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
)

// Dial opens the byte stream selected by cfg.Transport. SSH is the default.
func Dial(ctx context.Context, cfg types.DeviceConfig) (types.Transport, error) {
	switch cfg.Transport {
	case "", types.TransportSSH:
		return DialSSH(ctx, cfg)
	case types.TransportExpectSSH:
		client, err := dialSSHClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		t, err := SpawnSSHTransport(client, connectTimeout(cfg))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return t, nil
	case types.TransportSpawn:
		return SpawnTransport(cfg.SpawnCommand, connectTimeout(cfg))
	case types.TransportTCP:
		return DialTCP(ctx, cfg)
	case types.TransportMock:
		hostname := cfg.Metadata["hostname"]
		if hostname == "" {
			hostname = cfg.Name
		}
		return mock.ForDialect(cfg.Dialect, hostname), nil
	default:
		return nil, types.InvalidParameter("connect", "unknown transport %q", cfg.Transport)
	}
}

// Connect dials the device and opens a session with the given dialect
func Connect(ctx context.Context, cfg types.DeviceConfig, dialect *vendors.Dialect, opts ...Option) (*Session, error) {
	log := logger.WithFields(map[string]interface{}{
		"component": "cli",
		"device":    cfg.Name,
		"address":   cfg.Address,
	})

	base := []Option{WithLogger(log), WithEnablePassword(cfg.EnablePassword)}
	if cfg.CommandTimeout > 0 {
		base = append(base, WithTimeout(cfg.CommandTimeout))
	}
	opts = append(base, opts...)

	start := time.Now()
	transport, err := Dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Name, err)
	}

	session := NewSession(transport, dialect, opts...)
	if err := session.Open(ctx); err != nil {
		_ = transport.Close()
		return nil, err
	}
	log.WithField("elapsed", time.Since(start)).Info("connected")
	return session, nil
}

func connectTimeout(cfg types.DeviceConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}
