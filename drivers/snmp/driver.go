// Package snmp reads the MIB-II system group of a device and picks the CLI dialect that
// matches its sysDescr.
package snmp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
	"github.com/nanoncore/nano-cliconf/vendors/common"
)

// MIB-II system group
const (
	OIDSysDescr    = "1.3.6.1.2.1.1.1.0"
	OIDSysObjectID = "1.3.6.1.2.1.1.2.0"
	OIDSysUpTime   = "1.3.6.1.2.1.1.3.0"
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
)

const (
	defaultPort    = 161
	defaultTimeout = 5 * time.Second
)

// SystemInfo is the identity a device reports over SNMP
type SystemInfo struct {
	Descr    string        `json:"sys_descr"`
	ObjectID string        `json:"sys_object_id,omitempty"`
	Name     string        `json:"sys_name,omitempty"`
	UpTime   time.Duration `json:"sys_uptime,omitempty"`
}

// Getter is the part of gosnmp.GoSNMP the prober needs
type Getter interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
}

// Prober queries device identity over SNMP
type Prober struct {
	client Getter
	closer func() error
}

// NewClient builds a gosnmp client for cfg. SNMP settings come from metadata:
// snmp_version (1, 2c, 3), snmp_community, snmp_port and snmp_timeout. Version 3 uses the
// device credentials with SHA authentication and AES privacy.
func NewClient(cfg types.DeviceConfig) (*gosnmp.GoSNMP, error) {
	if cfg.Address == "" {
		return nil, types.InvalidParameter("snmp_probe", "address is required")
	}

	version := gosnmp.Version2c
	switch v := common.MetadataStringDefault(cfg.Metadata, "2c", "snmp_version"); v {
	case "1":
		version = gosnmp.Version1
	case "2c", "2":
		version = gosnmp.Version2c
	case "3":
		version = gosnmp.Version3
	default:
		return nil, types.InvalidParameter("snmp_probe", "unsupported SNMP version %q", v)
	}

	port := common.MetadataInt(cfg.Metadata, defaultPort, "snmp_port")
	if port <= 0 || port > 65535 {
		port = defaultPort
	}

	client := &gosnmp.GoSNMP{
		Target:    cfg.Address,
		Port:      uint16(port), //nolint:gosec // validated above
		Community: common.MetadataStringDefault(cfg.Metadata, "public", "snmp_community"),
		Version:   version,
		Timeout:   common.MetadataDuration(cfg.Metadata, defaultTimeout, "snmp_timeout"),
		Retries:   common.MetadataInt(cfg.Metadata, 1, "snmp_retries"),
	}

	if version == gosnmp.Version3 {
		client.SecurityModel = gosnmp.UserSecurityModel
		client.MsgFlags = gosnmp.AuthPriv
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.Username,
			AuthenticationProtocol:   gosnmp.SHA,
			AuthenticationPassphrase: cfg.Password,
			PrivacyProtocol:          gosnmp.AES,
			PrivacyPassphrase:        cfg.Password,
		}
	}
	return client, nil
}

// Dial opens the SNMP socket for cfg
func Dial(ctx context.Context, cfg types.DeviceConfig) (*Prober, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	client.Context = ctx
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect SNMP: %w", err)
	}
	return &Prober{
		client: client,
		closer: func() error { return client.Conn.Close() },
	}, nil
}

// NewProber wraps an already connected client
func NewProber(client Getter) *Prober {
	return &Prober{client: client}
}

// System fetches the system group. sysDescr is required; the other fields are best effort.
func (p *Prober) System(ctx context.Context) (*SystemInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	packet, err := p.client.Get([]string{OIDSysDescr, OIDSysObjectID, OIDSysUpTime, OIDSysName})
	if err != nil {
		return nil, fmt.Errorf("SNMP GET failed: %w", err)
	}

	results := make(map[string]interface{}, len(packet.Variables))
	for _, v := range packet.Variables {
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			continue
		case gosnmp.TimeTicks:
			results[v.Name] = gosnmp.ToBigInt(v.Value).Uint64()
		default:
			results[v.Name] = v.Value
		}
	}

	info := &SystemInfo{}
	raw, ok := common.GetSNMPResult(results, OIDSysDescr)
	if !ok {
		return nil, fmt.Errorf("device returned no sysDescr")
	}
	if info.Descr, ok = common.SNMPString(raw); !ok {
		return nil, fmt.Errorf("unexpected sysDescr value %T", raw)
	}
	info.Descr = strings.TrimSpace(info.Descr)

	if raw, ok := common.GetSNMPResult(results, OIDSysObjectID); ok {
		info.ObjectID, _ = common.SNMPString(raw)
	}
	if raw, ok := common.GetSNMPResult(results, OIDSysName); ok {
		info.Name, _ = common.SNMPString(raw)
	}
	if raw, ok := common.GetSNMPResult(results, OIDSysUpTime); ok {
		if ticks, ok := raw.(uint64); ok {
			// hundredths of a second
			info.UpTime = time.Duration(ticks) * 10 * time.Millisecond
		}
	}
	return info, nil
}

// Detect probes the device and returns the first registered dialect whose detect pattern
// matches sysDescr
func (p *Prober) Detect(ctx context.Context, registry *vendors.Registry) (*vendors.Dialect, *SystemInfo, error) {
	info, err := p.System(ctx)
	if err != nil {
		return nil, nil, err
	}
	d, ok := registry.Detect(info.Descr)
	if !ok {
		return nil, info, types.InvalidParameter("detect", "no dialect matches sysDescr %q", firstLine(info.Descr))
	}
	return d, info, nil
}

// Close releases the SNMP socket
func (p *Prober) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
