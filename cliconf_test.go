package cliconf

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-cliconf/drivers/cli"
	"github.com/nanoncore/nano-cliconf/drivers/mock"
	"github.com/nanoncore/nano-cliconf/vendors"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func fastSession(log *logrus.Entry) []cli.Option {
	return []cli.Option{
		cli.WithTimeout(time.Second),
		cli.WithPollInterval(10 * time.Millisecond),
		cli.WithNudgeAfter(50 * time.Millisecond),
		cli.WithLogger(log),
	}
}

func openFacade(t *testing.T, dialect *vendors.Dialect, dev *mock.Device, log *logrus.Entry) *Cliconf {
	t.Helper()
	s := cli.NewSession(dev, dialect, fastSession(log)...)
	require.NoError(t, s.Open(context.Background()))
	return New("leaf1", s, WithLogger(log))
}

// newOS10 opens a facade on a simulated OS10 switch, letting the caller tweak the device first
func newOS10(t *testing.T, mutate func(*mock.Config)) (*mock.Device, *Cliconf) {
	t.Helper()
	cfg := mock.OS10Config("leaf1")
	if mutate != nil {
		mutate(&cfg)
	}
	dev := mock.NewDevice(cfg)
	d, err := vendors.Default().Get("os10")
	require.NoError(t, err)
	return dev, openFacade(t, d, dev, quietLogger())
}

func TestGetDeviceInfo(t *testing.T) {
	dev, c := newOS10(t, nil)

	info, err := c.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"network_os":          "dellemc.os10.os10",
		"network_os_version":  "10.4.3.1",
		"network_os_model":    "S5248F-ON",
		"network_os_hostname": "leaf1",
	}, info)
	assert.Equal(t, 1, dev.Count("show running-configuration | grep hostname"))
}

func TestGetDeviceInfoHostnameFromVersionOutput(t *testing.T) {
	base, err := vendors.Default().Get("os10")
	require.NoError(t, err)
	spec := base.Spec()
	spec.Name = "os10-noshow"
	spec.Commands.Hostname = ""
	spec.Identity.Hostname = `(?m)^Dell EMC Networking (\S+)`
	d, err := vendors.Compile(spec)
	require.NoError(t, err)

	dev := mock.OS10("leaf1")
	c := openFacade(t, d, dev, quietLogger())

	info, err := c.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OS10", info["network_os_hostname"])
	assert.Equal(t, []string{"terminal length 0", "show version"}, dev.History())
}

func TestGetDeviceInfoFailsOpen(t *testing.T) {
	_, c := newOS10(t, func(cfg *mock.Config) {
		cfg.Responses["show version"] = "Unknown platform"
		cfg.Responses["show running-configuration | grep hostname"] = ""
	})

	info, err := c.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"network_os": "dellemc.os10.os10"}, info)
}

func TestGetDeviceInfoCommandFailure(t *testing.T) {
	_, c := newOS10(t, func(cfg *mock.Config) {
		cfg.Failures["show version"] = "% Error: Permission denied."
	})

	info, err := c.GetDeviceInfo(context.Background())
	assert.Nil(t, info)
	assert.ErrorIs(t, err, ErrDeviceError)
	assert.Equal(t, "% Error: Permission denied.", DeviceText(err))
}

func TestGetConfig(t *testing.T) {
	dev, c := newOS10(t, func(cfg *mock.Config) {
		cfg.Responses["show running-config all | grep interface"] = "interface ethernet1/1/1\ninterface vlan1"
	})
	ctx := context.Background()

	running, err := c.GetConfig(ctx, SourceRunning, nil, "")
	require.NoError(t, err)
	assert.Contains(t, running, "hostname leaf1")
	assert.Contains(t, running, "interface ethernet1/1/1")
	assert.Equal(t, ModePrivileged, c.Mode())

	startup, err := c.GetConfig(ctx, SourceStartup, nil, FormatText)
	require.NoError(t, err)
	assert.Contains(t, startup, "interface vlan1")
	assert.NotContains(t, startup, "ethernet1/1/1")

	filtered, err := c.GetConfig(ctx, SourceRunning, []string{"|", "grep", "interface"}, "")
	require.NoError(t, err)
	assert.Equal(t, "interface ethernet1/1/1\ninterface vlan1", filtered)

	assert.Equal(t, 1, dev.Count("enable"))
}

func TestGetConfigRejectsBadArgumentsBeforeSending(t *testing.T) {
	dev, c := newOS10(t, nil)
	before := dev.BytesWritten()
	ctx := context.Background()

	_, err := c.GetConfig(ctx, "bogus", nil, "")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = c.GetConfig(ctx, SourceRunning, nil, "json")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	assert.Equal(t, before, dev.BytesWritten())
	assert.Equal(t, ModeUnprivileged, c.Mode())
}

func TestEditConfig(t *testing.T) {
	dev, c := newOS10(t, nil)

	results, err := c.EditConfig(context.Background(), Commands("interface vlan10", "description uplink", "no shutdown"))
	require.NoError(t, err)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, ModeConfiguration, r.Mode)
	}
	assert.Equal(t, []string{"interface vlan10", "description uplink", "no shutdown"}, dev.Applied())
	assert.Equal(t, ModePrivileged, c.Mode())
	assert.Equal(t, ModePrivileged, dev.Mode())
	assert.Equal(t, []string{
		"terminal length 0", "enable", "configure terminal",
		"interface vlan10", "description uplink", "no shutdown", "end",
	}, dev.History())
}

func TestEditConfigStopsAtFirstFailure(t *testing.T) {
	dev, c := newOS10(t, func(cfg *mock.Config) {
		cfg.Failures["switchport access vlan 4095"] = "% Error: Invalid VLAN ID."
	})
	commands := Commands(
		"interface ethernet1/1/2",
		"no shutdown",
		"switchport access vlan 4095",
		"description server-2",
		"mtu 9216",
	)

	results, err := c.EditConfig(context.Background(), commands)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceError)
	assert.Equal(t, "% Error: Invalid VLAN ID.", DeviceText(err))

	require.Len(t, results, 3)
	assert.False(t, results[2].Success)
	assert.Equal(t, 0, dev.Count("description server-2"))
	assert.Equal(t, 0, dev.Count("mtu 9216"))
	assert.Equal(t, 1, dev.Count("end"))
	assert.Equal(t, []string{"interface ethernet1/1/2", "no shutdown"}, dev.Applied())
	assert.Equal(t, ModePrivileged, c.Mode())
	assert.Equal(t, ModePrivileged, dev.Mode())
}

func TestEditConfigEscalationFailure(t *testing.T) {
	dev, c := newOS10(t, func(cfg *mock.Config) { cfg.EnablePassword = "s3cret" })

	results, err := c.EditConfig(context.Background(), Commands("hostname spine1"))
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrPrivilegeEscalationFailed)
	assert.Equal(t, 0, dev.Count("configure terminal"))
	assert.Empty(t, dev.Applied())
	assert.Equal(t, ModeUnprivileged, c.Mode())
}

func TestEditConfigRejectsEmptyCommand(t *testing.T) {
	dev, c := newOS10(t, nil)
	before := dev.BytesWritten()

	_, err := c.EditConfig(context.Background(), Commands("interface vlan10", "  "))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, before, dev.BytesWritten())
}

func TestEditConfigInteractiveCommand(t *testing.T) {
	dev, c := newOS10(t, func(cfg *mock.Config) {
		cfg.Dialogs["no interface vlan10"] = []string{"Delete interface vlan10? [yes/no]: "}
	})

	results, err := c.EditConfig(context.Background(), []CommandRequest{
		{Command: "no interface vlan10", Prompts: []string{`\[yes/no\]`}, Answers: []string{"yes"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"yes"}, dev.Answers())
	assert.Equal(t, 1, dev.Count("end"))
}

func TestGetHasNoModeEnforcement(t *testing.T) {
	dev, c := newOS10(t, nil)

	res, err := c.Get(context.Background(), CommandRequest{Command: "show clock"})
	require.NoError(t, err)
	assert.Equal(t, "12:00:01.042 UTC Fri Oct 16 2026", res.Output)
	assert.Equal(t, 0, dev.Count("enable"))
	assert.Equal(t, ModeUnprivileged, c.Mode())

	_, err = c.Get(context.Background(), CommandRequest{})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRunCommands(t *testing.T) {
	dev, c := newOS10(t, nil)

	results, err := c.RunCommands(context.Background(), Commands("show clock", "show bogus", "show version"))
	assert.ErrorIs(t, err, ErrDeviceError)
	assert.Len(t, results, 2)
	assert.Equal(t, 0, dev.Count("show version"))

	results, err = c.RunCommands(context.Background(), Commands("show clock", "show version"))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestGetCapabilities(t *testing.T) {
	dev, c := newOS10(t, nil)
	written := dev.BytesWritten()

	caps := c.GetCapabilities()
	assert.Equal(t, written, dev.BytesWritten())
	assert.Equal(t, "cliconf", caps.NetworkAPI)
	assert.Equal(t, "dellemc.os10.os10", caps.NetworkOS)
	assert.Contains(t, caps.RPC, "get_config")
	assert.Contains(t, caps.RPC, "edit_config")
	assert.Equal(t, []string{"line", "strict", "exact", "none"}, caps.DiffMatch)
	assert.Equal(t, []string{"line", "block"}, caps.DiffReplace)
	assert.Equal(t, []string{"text"}, caps.Format)
	assert.Equal(t, []string{"running", "startup"}, caps.ConfigSources)
	assert.True(t, caps.DeviceOperations.SupportsDiffReplace)
	assert.Nil(t, caps.DeviceInfo)

	_, err := c.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	caps = c.GetCapabilities()
	assert.Equal(t, "leaf1", caps.DeviceInfo["network_os_hostname"])

	out, err := caps.JSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"network_api":"cliconf"`)
	assert.Contains(t, out, `"network_os_version":"10.4.3.1"`)
}

func TestResponseLogging(t *testing.T) {
	l, hook := test.NewNullLogger()
	d, err := vendors.Default().Get("os10")
	require.NoError(t, err)
	c := openFacade(t, d, mock.OS10("leaf1"), logrus.NewEntry(l))
	ctx := context.Background()

	responses := func() int {
		n := 0
		for _, e := range hook.AllEntries() {
			if e.Message == "command response" {
				n++
			}
		}
		return n
	}

	_, err = c.Get(ctx, CommandRequest{Command: "show clock"})
	require.NoError(t, err)
	assert.Equal(t, 0, responses())

	c.EnableResponseLogging()
	_, err = c.Get(ctx, CommandRequest{Command: "show clock"})
	require.NoError(t, err)
	assert.Equal(t, 1, responses())

	c.DisableResponseLogging()
	_, err = c.Get(ctx, CommandRequest{Command: "show clock"})
	require.NoError(t, err)
	assert.Equal(t, 1, responses())
}

func TestConcurrentCallersAreSerialised(t *testing.T) {
	dev, c := newOS10(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.GetConfig(ctx, SourceRunning, nil, "")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := c.GetDeviceInfo(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 4, dev.Count("show running-config all"))
	assert.Equal(t, 1, dev.Count("enable"))
}

func TestConnectSimulated(t *testing.T) {
	cfg := DeviceConfig{Name: "leaf7", Dialect: "os10", Transport: TransportMock}

	c, err := Connect(context.Background(), cfg,
		WithSessionOptions(fastSession(quietLogger())...),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "leaf7", c.Name())
	info, err := c.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "leaf7", info["network_os_hostname"])
}

func TestResolveDialect(t *testing.T) {
	ctx := context.Background()

	d, err := ResolveDialect(ctx, DeviceConfig{Dialect: " VRP "}, vendors.Default())
	require.NoError(t, err)
	assert.Equal(t, "vrp", d.Name())

	_, err = ResolveDialect(ctx, DeviceConfig{Dialect: "junos"}, vendors.Default())
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = ResolveDialect(ctx, DeviceConfig{Dialect: DialectAuto, Transport: TransportMock}, vendors.Default())
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSupportedDialects(t *testing.T) {
	dialects := SupportedDialects(nil)
	require.NotEmpty(t, dialects)

	byName := make(map[string]DialectInfo, len(dialects))
	for _, d := range dialects {
		byName[d.Name] = d
	}
	assert.Equal(t, "dellemc.os10.os10", byName["os10"].NetworkOS)
	assert.Contains(t, byName, "vrp")
}
