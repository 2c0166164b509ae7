// Package vendors holds the device dialects: per-family prompt patterns, mode transitions,
// error signatures and the commands behind the configuration facade.
//
// A dialect is pure data. Families ship as YAML records embedded in the binary and more can
// be loaded from disk at runtime; nothing in the engine branches on a family name.
package vendors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nanoncore/nano-cliconf/prompt"
	"github.com/nanoncore/nano-cliconf/types"
)

// ModeSpec describes one mode of the chain
type ModeSpec struct {
	// Prompt is the regex of a prompt line in this mode (anchored on compile)
	Prompt string `mapstructure:"prompt"`

	// Enter is the command that reaches this mode from its predecessor
	Enter string `mapstructure:"enter"`

	// Exit is the command that leaves this mode for its predecessor
	Exit string `mapstructure:"exit"`

	// Implicit marks a mode that shares the predecessor prompt and needs no command
	Implicit bool `mapstructure:"implicit"`
}

// AutoReply answers a recurring interactive prompt such as a pager
type AutoReply struct {
	Pattern string `mapstructure:"pattern"`
	Reply   string `mapstructure:"reply"`

	// Newline appends the dialect newline to Reply
	Newline bool `mapstructure:"newline"`
}

// Commands are the show commands used by the facade
type Commands struct {
	Version  string `mapstructure:"version"`
	Hostname string `mapstructure:"hostname"`
	Running  string `mapstructure:"running"`
	Startup  string `mapstructure:"startup"`
}

// Identity holds the regexes applied to Commands output. The first capture group is the value.
type Identity struct {
	Version  string `mapstructure:"version"`
	Model    string `mapstructure:"model"`
	Hostname string `mapstructure:"hostname"`
}

// CapabilitySpec lists what the family supports beyond plain commands
type CapabilitySpec struct {
	DiffMatch   []string `mapstructure:"diff_match"`
	DiffReplace []string `mapstructure:"diff_replace"`
	Format      []string `mapstructure:"format"`

	SupportsCommit       bool `mapstructure:"supports_commit"`
	SupportsRollback     bool `mapstructure:"supports_rollback"`
	SupportsOnboxDiff    bool `mapstructure:"supports_onbox_diff"`
	SupportsMultiline    bool `mapstructure:"supports_multiline_delimiter"`
	SupportsGenerateDiff bool `mapstructure:"supports_generate_diff"`
}

// Spec is the raw dialect record as it appears in YAML
type Spec struct {
	Name        string `mapstructure:"name"`
	NetworkOS   string `mapstructure:"network_os"`
	Description string `mapstructure:"description"`

	// Detect matches the SNMP sysDescr of devices of this family
	Detect string `mapstructure:"detect"`

	// Newline is appended to every command (default "\n")
	Newline string `mapstructure:"newline"`

	// Modes is keyed by mode name (unprivileged, privileged, configuration)
	Modes map[string]ModeSpec `mapstructure:"modes"`

	ErrorPatterns        []string    `mapstructure:"error_patterns"`
	AutoReplies          []AutoReply `mapstructure:"auto_replies"`
	SessionSetup         []string    `mapstructure:"session_setup"`
	EnablePasswordPrompt string      `mapstructure:"enable_password_prompt"`

	Commands     Commands       `mapstructure:"commands"`
	Identity     Identity       `mapstructure:"identity"`
	Capabilities CapabilitySpec `mapstructure:"capabilities"`
}

// Reply is a compiled AutoReply
type Reply struct {
	Re   *regexp.Regexp
	Text string
}

// IdentityRegexps are the compiled Identity patterns. Nil entries are not declared.
type IdentityRegexps struct {
	Version  *regexp.Regexp
	Model    *regexp.Regexp
	Hostname *regexp.Regexp
}

// Dialect is a compiled, read-only Spec shared by every session of the family
type Dialect struct {
	spec     Spec
	modes    [types.ModeConfiguration + 1]*ModeSpec
	matcher  *prompt.Matcher
	replies  []Reply
	enable   *regexp.Regexp
	detect   *regexp.Regexp
	identity IdentityRegexps
}

// Compile validates a Spec and builds the Dialect
func Compile(spec Spec) (*Dialect, error) {
	spec.Name = strings.ToLower(strings.TrimSpace(spec.Name))
	if spec.Name == "" {
		return nil, fmt.Errorf("dialect name is required")
	}
	if spec.NetworkOS == "" {
		return nil, fmt.Errorf("dialect %s: network_os is required", spec.Name)
	}
	if spec.Newline == "" {
		spec.Newline = "\n"
	}

	d := &Dialect{spec: spec}

	for name, ms := range spec.Modes {
		mode, err := types.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("dialect %s: %w", spec.Name, err)
		}
		if d.modes[mode] != nil {
			return nil, fmt.Errorf("dialect %s: mode %s declared twice", spec.Name, mode)
		}
		d.modes[mode] = &ms
	}

	for _, mode := range types.Modes {
		ms := d.modes[mode]
		if ms == nil {
			continue
		}
		if mode > types.ModeUnprivileged && d.modes[mode-1] == nil {
			return nil, fmt.Errorf("dialect %s: mode %s declared without %s", spec.Name, mode, mode-1)
		}
		switch {
		case mode == types.ModeUnprivileged && (ms.Prompt == "" || ms.Implicit):
			return nil, fmt.Errorf("dialect %s: unprivileged mode needs its own prompt", spec.Name)
		case ms.Implicit:
			if ms.Prompt != "" || ms.Enter != "" {
				return nil, fmt.Errorf("dialect %s: implicit mode %s cannot have a prompt or enter command", spec.Name, mode)
			}
		case mode > types.ModeUnprivileged && (ms.Prompt == "" || ms.Enter == ""):
			return nil, fmt.Errorf("dialect %s: mode %s needs a prompt and an enter command", spec.Name, mode)
		}
	}
	if d.modes[types.ModeUnprivileged] == nil {
		return nil, fmt.Errorf("dialect %s: unprivileged mode is required", spec.Name)
	}
	// leaving a mode with an explicit prompt must be verifiable
	for mode := types.ModePrivileged; mode <= types.ModeConfiguration; mode++ {
		if ms := d.modes[mode]; ms != nil && !ms.Implicit && ms.Exit == "" {
			return nil, fmt.Errorf("dialect %s: mode %s needs an exit command", spec.Name, mode)
		}
	}

	// most specific mode first
	var prompts []prompt.Pattern
	for i := len(types.Modes) - 1; i >= 0; i-- {
		mode := types.Modes[i]
		ms := d.modes[mode]
		if ms == nil || ms.Implicit {
			continue
		}
		re, err := prompt.Anchor(ms.Prompt)
		if err != nil {
			return nil, fmt.Errorf("dialect %s: mode %s: %w", spec.Name, mode, err)
		}
		prompts = append(prompts, prompt.Pattern{Mode: mode, Re: re})
	}

	errorPatterns := make([]*regexp.Regexp, 0, len(spec.ErrorPatterns))
	for _, p := range spec.ErrorPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("dialect %s: invalid error pattern %q: %w", spec.Name, p, err)
		}
		errorPatterns = append(errorPatterns, re)
	}
	d.matcher = prompt.NewMatcher(prompts, errorPatterns)

	for _, r := range spec.AutoReplies {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("dialect %s: invalid auto reply pattern %q: %w", spec.Name, r.Pattern, err)
		}
		text := r.Reply
		if r.Newline {
			text += spec.Newline
		}
		d.replies = append(d.replies, Reply{Re: re, Text: text})
	}

	var err error
	if d.enable, err = compileOptional(spec.EnablePasswordPrompt); err != nil {
		return nil, fmt.Errorf("dialect %s: enable_password_prompt: %w", spec.Name, err)
	}
	if d.detect, err = compileOptional(spec.Detect); err != nil {
		return nil, fmt.Errorf("dialect %s: detect: %w", spec.Name, err)
	}
	if d.identity.Version, err = compileOptional(spec.Identity.Version); err != nil {
		return nil, fmt.Errorf("dialect %s: identity.version: %w", spec.Name, err)
	}
	if d.identity.Model, err = compileOptional(spec.Identity.Model); err != nil {
		return nil, fmt.Errorf("dialect %s: identity.model: %w", spec.Name, err)
	}
	if d.identity.Hostname, err = compileOptional(spec.Identity.Hostname); err != nil {
		return nil, fmt.Errorf("dialect %s: identity.hostname: %w", spec.Name, err)
	}

	return d, nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// MustCompile is Compile that panics on error
func MustCompile(spec Spec) *Dialect {
	d, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the registry name of the family
func (d *Dialect) Name() string { return d.spec.Name }

// NetworkOS returns the identity tag reported as network_os
func (d *Dialect) NetworkOS() string { return d.spec.NetworkOS }

// Description returns the human readable family description
func (d *Dialect) Description() string { return d.spec.Description }

// Newline returns the line terminator sent after commands
func (d *Dialect) Newline() string { return d.spec.Newline }

// Matcher returns the compiled prompt matcher
func (d *Dialect) Matcher() *prompt.Matcher { return d.matcher }

// AutoReplies returns the pager and confirmation replies answered automatically
func (d *Dialect) AutoReplies() []Reply { return d.replies }

// EnablePasswordPrompt returns the regex of the escalation password prompt, or nil
func (d *Dialect) EnablePasswordPrompt() *regexp.Regexp { return d.enable }

// SessionSetup returns the commands run once after the session opens
func (d *Dialect) SessionSetup() []string { return d.spec.SessionSetup }

// Commands returns the facade commands
func (d *Dialect) Commands() Commands { return d.spec.Commands }

// Identity returns the compiled identity regexes
func (d *Dialect) Identity() IdentityRegexps { return d.identity }

// Capabilities returns the declared feature set
func (d *Dialect) Capabilities() CapabilitySpec { return d.spec.Capabilities }

// Detects reports whether an SNMP sysDescr belongs to this family
func (d *Dialect) Detects(sysDescr string) bool {
	return d.detect != nil && d.detect.MatchString(sysDescr)
}

// Reachable reports whether the dialect declares mode
func (d *Dialect) Reachable(mode types.Mode) bool {
	return mode.Valid() && d.modes[mode] != nil
}

// ModeSpec returns the declaration of mode
func (d *Dialect) ModeSpec(mode types.Mode) (ModeSpec, bool) {
	if !d.Reachable(mode) {
		return ModeSpec{}, false
	}
	return *d.modes[mode], true
}

// PromptMode returns the mode whose prompt is displayed while in mode.
// Implicit modes show their predecessor prompt.
func (d *Dialect) PromptMode(mode types.Mode) types.Mode {
	for mode > types.ModeUnprivileged && d.Reachable(mode) && d.modes[mode].Implicit {
		mode--
	}
	return mode
}

// Spec returns a copy of the raw record
func (d *Dialect) Spec() Spec {
	spec := d.spec
	spec.Modes = make(map[string]ModeSpec, len(d.spec.Modes))
	for k, v := range d.spec.Modes {
		spec.Modes[k] = v
	}
	return spec
}
