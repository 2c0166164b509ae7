package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode is the privilege level of an interactive device shell.
// Modes form a linear chain: Unprivileged -> Privileged -> Configuration.
type Mode int

const (
	ModeUnprivileged Mode = iota
	ModePrivileged
	ModeConfiguration
)

// Modes lists every mode in chain order
var Modes = []Mode{ModeUnprivileged, ModePrivileged, ModeConfiguration}

func (m Mode) String() string {
	switch m {
	case ModeUnprivileged:
		return "unprivileged"
	case ModePrivileged:
		return "privileged"
	case ModeConfiguration:
		return "configuration"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared chain modes
func (m Mode) Valid() bool {
	return m >= ModeUnprivileged && m <= ModeConfiguration
}

// ParseMode parses the textual form produced by Mode.String
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unprivileged", "user", "exec":
		return ModeUnprivileged, nil
	case "privileged", "enable", "privilege-exec":
		return ModePrivileged, nil
	case "configuration", "config", "configure":
		return ModeConfiguration, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// TransportKind selects how the byte stream to the device is established
type TransportKind string

const (
	// TransportSSH opens a PTY shell with golang.org/x/crypto/ssh
	TransportSSH TransportKind = "ssh"
	// TransportExpectSSH drives the SSH shell through google/goexpect
	TransportExpectSSH TransportKind = "expect-ssh"
	// TransportSpawn spawns a local command (telnet, console server client) through goexpect
	TransportSpawn TransportKind = "spawn"
	// TransportTCP drives a raw TCP console port, such as a terminal server line, through
	// google/goexpect
	TransportTCP TransportKind = "tcp"
	// TransportMock uses the in-process simulated device
	TransportMock TransportKind = "mock"
)

// DeviceConfig contains everything needed to open a session to one device
type DeviceConfig struct {
	// Name is a unique identifier for this device
	Name string

	// Dialect is the device family name registered in the dialect registry (e.g. "os10")
	Dialect string

	// Address is the management IP/hostname
	Address string

	// Port is the management port (if not default)
	Port int

	// Transport selects the byte-stream implementation
	Transport TransportKind

	// SpawnCommand is the local command used by TransportSpawn (e.g. "telnet 10.0.0.1")
	SpawnCommand string

	// Username for authentication
	Username string

	// Password for authentication
	Password string

	// EnablePassword answers the privileged escalation password prompt
	EnablePassword string

	// PrivateKeyFile is an optional SSH private key
	PrivateKeyFile string

	// KnownHostsFile enables host key verification when set
	KnownHostsFile string

	// ConnectTimeout bounds dial and authentication
	ConnectTimeout time.Duration

	// CommandTimeout is the default per-command response timeout
	CommandTimeout time.Duration

	// Metadata contains dialect or transport specific settings
	Metadata map[string]string
}

// CommandRequest is one outbound command
type CommandRequest struct {
	// Command is the text sent to the device
	Command string

	// Prompts are regular expressions for interactive sub-prompts (e.g. "Confirm? [y/n]")
	Prompts []string

	// Answers are sent in reply to Prompts, index for index. The last answer is reused
	// when there are fewer answers than prompts.
	Answers []string

	// SendOnly writes the command and returns without waiting for a response
	SendOnly bool

	// Newline controls whether the dialect newline is appended (default true)
	Newline *bool

	// CheckAll requires every entry in Prompts to be matched before completion
	CheckAll bool

	// Timeout overrides the session default response timeout
	Timeout time.Duration
}

// WantsNewline reports whether the dialect newline should follow the command
func (r CommandRequest) WantsNewline() bool {
	return r.Newline == nil || *r.Newline
}

// Commands builds plain requests from command lines
func Commands(lines ...string) []CommandRequest {
	reqs := make([]CommandRequest, 0, len(lines))
	for _, l := range lines {
		reqs = append(reqs, CommandRequest{Command: l})
	}
	return reqs
}

// Bool returns a pointer to b, for CommandRequest.Newline
func Bool(b bool) *bool {
	return &b
}

// CommandResult is the outcome of one executed command
type CommandResult struct {
	// Command is the command that produced this result
	Command string `json:"command"`

	// Output is the captured text with the command echo and terminating prompt removed
	Output string `json:"output"`

	// Raw is everything read from the transport for this command
	Raw string `json:"-"`

	// Prompt is the prompt line that terminated capture
	Prompt string `json:"prompt,omitempty"`

	// Mode is the mode classified from Prompt
	Mode Mode `json:"-"`

	// Success is false when the device reported an error
	Success bool `json:"success"`

	// Duration of the exchange
	Duration time.Duration `json:"duration"`
}

// Capabilities is the static descriptor returned by the facade
type Capabilities struct {
	// RPC lists the operations the facade exposes
	RPC []string `json:"rpc"`

	// NetworkAPI is always "cliconf"
	NetworkAPI string `json:"network_api"`

	// NetworkOS is the dialect identity tag
	NetworkOS string `json:"network_os"`

	// DeviceInfo is the last successful device info lookup, if any
	DeviceInfo map[string]string `json:"device_info,omitempty"`

	// DeviceOperations describes what the dialect supports
	DeviceOperations DeviceOperations `json:"device_operations"`

	// DiffMatch lists supported diff match modes
	DiffMatch []string `json:"diff_match"`

	// DiffReplace lists supported diff replace modes
	DiffReplace []string `json:"diff_replace"`

	// Format lists supported configuration formats
	Format []string `json:"format"`

	// ConfigSources lists the accepted get_config sources
	ConfigSources []string `json:"config_sources"`
}

// JSON renders the descriptor as a JSON document
func (c Capabilities) JSON() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DeviceOperations mirrors the feature flags a dialect declares
type DeviceOperations struct {
	SupportsCommit       bool `json:"supports_commit"`
	SupportsRollback     bool `json:"supports_rollback"`
	SupportsDiffReplace  bool `json:"supports_diff_replace"`
	SupportsOnboxDiff    bool `json:"supports_onbox_diff"`
	SupportsMultiline    bool `json:"supports_multiline_delimiter"`
	SupportsGenerateDiff bool `json:"supports_generate_diff"`
}
