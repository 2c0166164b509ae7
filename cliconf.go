// Package cliconf is a vendor neutral get/edit configuration contract over interactive device
// shells. Device families are described as data (package vendors); sessions, prompt matching
// and transports live under drivers/cli.
package cliconf

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-cliconf/drivers/cli"
	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
)

// Configuration sources accepted by GetConfig
const (
	SourceRunning = "running"
	SourceStartup = "startup"
)

// FormatText is the only configuration format GetConfig returns
const FormatText = "text"

// NetworkAPI identifies this contract in the capability descriptor
const NetworkAPI = "cliconf"

// Device info keys
const (
	KeyNetworkOS         = "network_os"
	KeyNetworkOSVersion  = "network_os_version"
	KeyNetworkOSModel    = "network_os_model"
	KeyNetworkOSHostname = "network_os_hostname"
)

var rpcNames = []string{
	"get_config",
	"edit_config",
	"get_capabilities",
	"get",
	"get_device_info",
	"run_commands",
	"enable_response_logging",
	"disable_response_logging",
}

// Cliconf runs the configuration contract against one device session.
// Every operation holds the device lock for its whole command sequence, so a Cliconf may be
// shared between goroutines.
type Cliconf struct {
	name    string
	session *cli.Session
	dialect *vendors.Dialect
	log     *logrus.Entry

	mu   sync.Mutex
	info map[string]string
}

// Name returns the device name
func (c *Cliconf) Name() string {
	return c.name
}

// Dialect returns the device family
func (c *Cliconf) Dialect() *vendors.Dialect {
	return c.dialect
}

// Mode returns the session's current mode
func (c *Cliconf) Mode() types.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Mode()
}

// GetDeviceInfo queries the version command and, when the dialect has one, the hostname
// command. Only the fields that the identity patterns find are returned, next to network_os.
func (c *Cliconf) GetDeviceInfo(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmds := c.dialect.Commands()
	id := c.dialect.Identity()
	info := map[string]string{KeyNetworkOS: c.dialect.NetworkOS()}

	res, err := c.session.Send(ctx, cmds.Version)
	if err != nil {
		return nil, err
	}
	capture(info, KeyNetworkOSVersion, id.Version, res.Output)
	capture(info, KeyNetworkOSModel, id.Model, res.Output)

	hostOutput := res.Output
	if cmds.Hostname != "" {
		res, err := c.session.Send(ctx, cmds.Hostname)
		if err != nil {
			return nil, err
		}
		hostOutput = res.Output
	}
	capture(info, KeyNetworkOSHostname, id.Hostname, hostOutput)

	c.info = make(map[string]string, len(info))
	for k, v := range info {
		c.info[k] = v
	}
	c.log.WithFields(logrus.Fields{"version": info[KeyNetworkOSVersion], "model": info[KeyNetworkOSModel]}).
		Debug("device info collected")
	return info, nil
}

func capture(info map[string]string, key string, re *regexp.Regexp, text string) {
	if re == nil {
		return
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return
	}
	if v := strings.TrimSpace(m[1]); v != "" {
		info[key] = v
	}
}

// GetConfig returns the running or startup configuration as text. flags are appended to the
// dialect's show command. Arguments are checked before anything is sent.
func (c *Cliconf) GetConfig(ctx context.Context, source string, flags []string, format string) (string, error) {
	const op = "get_config"

	cmds := c.dialect.Commands()
	var command string
	switch source {
	case SourceRunning:
		command = cmds.Running
	case SourceStartup:
		command = cmds.Startup
	default:
		return "", types.InvalidParameter(op, "source %q is not one of %s, %s", source, SourceRunning, SourceStartup)
	}
	if format != "" && format != FormatText {
		return "", types.InvalidParameter(op, "format %q is not supported, configuration is returned as %s", format, FormatText)
	}
	if command == "" {
		return "", types.InvalidParameter(op, "dialect %s has no %s configuration command", c.dialect.Name(), source)
	}
	if len(flags) > 0 {
		command += " " + strings.Join(flags, " ")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.EnsureMode(ctx, types.ModePrivileged); err != nil {
		return "", err
	}
	res, err := c.session.Send(ctx, command)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// EditConfig enters configuration mode, sends commands in order and returns to privileged
// mode. It stops at the first failing command and leaves earlier edits applied. The exit is
// attempted even after a failure; the failure of the edit is what gets returned.
func (c *Cliconf) EditConfig(ctx context.Context, commands []types.CommandRequest) ([]*types.CommandResult, error) {
	const op = "edit_config"

	for i, req := range commands {
		if strings.TrimSpace(req.Command) == "" {
			return nil, types.InvalidParameter(op, "command %d is empty", i+1)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.session.EnsureMode(ctx, types.ModePrivileged); err != nil {
		return nil, err
	}
	if err := c.session.EnsureMode(ctx, types.ModeConfiguration); err != nil {
		return nil, err
	}

	results := make([]*types.CommandResult, 0, len(commands))
	var editErr error
	for _, req := range commands {
		res, err := c.session.Execute(ctx, req)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			editErr = err
			c.log.WithError(err).WithField("command", req.Command).Warn("configuration command failed, leaving configuration mode")
			break
		}
	}

	// the caller's context may be what failed the edit
	if err := c.session.EnsureMode(context.WithoutCancel(ctx), types.ModePrivileged); err != nil {
		if editErr != nil {
			c.log.WithError(err).Warn("failed to leave configuration mode")
			return results, editErr
		}
		return results, err
	}
	return results, editErr
}

// Get sends one request as is. The session is not moved to any mode first.
func (c *Cliconf) Get(ctx context.Context, req types.CommandRequest) (*types.CommandResult, error) {
	if strings.TrimSpace(req.Command) == "" && !req.SendOnly {
		return nil, types.InvalidParameter("get", "command is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Execute(ctx, req)
}

// RunCommands sends requests in order with no mode enforcement and stops at the first failure
func (c *Cliconf) RunCommands(ctx context.Context, reqs []types.CommandRequest) ([]*types.CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]*types.CommandResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := c.session.Execute(ctx, req)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// GetCapabilities describes the contract and the dialect's declared features. It does not
// talk to the device; device_info holds the last GetDeviceInfo result.
func (c *Cliconf) GetCapabilities() types.Capabilities {
	c.mu.Lock()
	var info map[string]string
	if c.info != nil {
		info = make(map[string]string, len(c.info))
		for k, v := range c.info {
			info[k] = v
		}
	}
	c.mu.Unlock()

	spec := c.dialect.Capabilities()
	format := spec.Format
	if len(format) == 0 {
		format = []string{FormatText}
	}
	return types.Capabilities{
		RPC:        append([]string(nil), rpcNames...),
		NetworkAPI: NetworkAPI,
		NetworkOS:  c.dialect.NetworkOS(),
		DeviceInfo: info,
		DeviceOperations: types.DeviceOperations{
			SupportsCommit:       spec.SupportsCommit,
			SupportsRollback:     spec.SupportsRollback,
			SupportsDiffReplace:  len(spec.DiffReplace) > 0,
			SupportsOnboxDiff:    spec.SupportsOnboxDiff,
			SupportsMultiline:    spec.SupportsMultiline,
			SupportsGenerateDiff: spec.SupportsGenerateDiff,
		},
		DiffMatch:     append([]string(nil), spec.DiffMatch...),
		DiffReplace:   append([]string(nil), spec.DiffReplace...),
		Format:        append([]string(nil), format...),
		ConfigSources: []string{SourceRunning, SourceStartup},
	}
}

// EnableResponseLogging logs every captured response at info level
func (c *Cliconf) EnableResponseLogging() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Executor().SetResponseLogging(true)
}

// DisableResponseLogging turns response logging back off
func (c *Cliconf) DisableResponseLogging() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Executor().SetResponseLogging(false)
}

// Close ends the session
func (c *Cliconf) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Close()
}
