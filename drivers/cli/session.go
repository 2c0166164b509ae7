package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
)

// Session is one persistent shell to a device and the mode it is known to be in.
//
// A session is driven by a single goroutine: commands are strictly sequential and nothing
// inside is locked. Callers sharing a session across goroutines must serialise access.
type Session struct {
	transport types.Transport
	dialect   *vendors.Dialect
	exec      *Executor
	opts      options
	log       *logrus.Entry

	mode types.Mode
}

// NewSession wraps an open transport. The session starts in ModeUnprivileged until Open
// reads the first prompt.
func NewSession(transport types.Transport, dialect *vendors.Dialect, opts ...Option) *Session {
	o := buildOptions(opts)
	return &Session{
		transport: transport,
		dialect:   dialect,
		exec:      &Executor{transport: transport, dialect: dialect, opts: o},
		opts:      o,
		log:       o.log.WithField("dialect", dialect.Name()),
		mode:      types.ModeUnprivileged,
	}
}

// Open waits for the login prompt, adopts its mode and runs the dialect session setup
// commands. Setup commands the device rejects are logged and skipped.
func (s *Session) Open(ctx context.Context) error {
	m, err := s.exec.WaitPrompt(ctx, s.opts.timeout)
	if err != nil {
		return fmt.Errorf("failed to detect initial prompt: %w", err)
	}
	s.mode = m.Mode
	s.log.WithFields(logrus.Fields{"prompt": m.Prompt, "mode": m.Mode}).Info("session opened")

	for _, cmd := range s.dialect.SessionSetup() {
		if _, err := s.Execute(ctx, types.CommandRequest{Command: cmd}); err != nil {
			if types.CodeOf(err) != types.CodeDeviceError {
				return fmt.Errorf("session setup: %w", err)
			}
			s.log.WithError(err).Warn("session setup command rejected")
		}
	}
	return nil
}

// Mode returns the last confirmed mode
func (s *Session) Mode() types.Mode {
	return s.mode
}

// Dialect returns the dialect driving this session
func (s *Session) Dialect() *vendors.Dialect {
	return s.dialect
}

// Executor returns the underlying command executor
func (s *Session) Executor() *Executor {
	return s.exec
}

// Execute runs one command with no mode enforcement. When the terminating prompt belongs to
// another mode than the session believes it is in (the command itself moved the shell), the
// session adopts the prompt's mode.
func (s *Session) Execute(ctx context.Context, req types.CommandRequest) (*types.CommandResult, error) {
	res, err := s.exec.Execute(ctx, req)
	s.observe(res)
	return res, err
}

// Send runs a plain command
func (s *Session) Send(ctx context.Context, command string) (*types.CommandResult, error) {
	return s.Execute(ctx, types.CommandRequest{Command: command})
}

func (s *Session) observe(res *types.CommandResult) {
	if res == nil || res.Prompt == "" {
		return
	}
	if res.Mode == s.dialect.PromptMode(s.mode) {
		return
	}
	s.log.WithFields(logrus.Fields{"from": s.mode, "to": res.Mode, "command": res.Command}).
		Info("mode changed by command")
	s.mode = res.Mode
}

// EnsureMode walks the mode chain one hop at a time until the session is in target.
// Nothing is sent when the session is already there. A hop that the device does not
// acknowledge with a prompt of the expected mode fails with PrivilegeEscalationFailed and
// leaves the session in the last confirmed mode.
func (s *Session) EnsureMode(ctx context.Context, target types.Mode) error {
	const op = "ensure_mode"

	if !s.dialect.Reachable(target) {
		return types.InvalidParameter(op, "mode %s is not declared by dialect %s", target, s.dialect.Name())
	}
	for s.mode != target {
		var err error
		if s.mode < target {
			err = s.escalate(ctx, s.mode+1)
		} else {
			err = s.deescalate(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) escalate(ctx context.Context, next types.Mode) error {
	const op = "ensure_mode"

	spec, _ := s.dialect.ModeSpec(next)
	if spec.Implicit {
		s.log.WithFields(logrus.Fields{"from": s.mode, "to": next}).Debug("implicit mode change")
		s.mode = next
		return nil
	}

	req := types.CommandRequest{Command: spec.Enter}
	if next == types.ModePrivileged {
		if re := s.dialect.EnablePasswordPrompt(); re != nil {
			req.Prompts = []string{re.String()}
			req.Answers = []string{s.opts.enablePassword}
		}
	}

	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		if types.CodeOf(err) == types.CodeDeviceError {
			return types.NewError(types.CodePrivilegeEscalationFailed, op, spec.Enter,
				fmt.Sprintf("device refused %s mode: %s", next, types.DeviceText(err)), nil)
		}
		return err
	}
	if got := res.Mode; got != s.dialect.PromptMode(next) {
		return types.NewError(types.CodePrivilegeEscalationFailed, op, spec.Enter,
			fmt.Sprintf("prompt %q is %s, expected %s", res.Prompt, got, next), nil)
	}

	s.log.WithFields(logrus.Fields{"from": s.mode, "to": next}).Info("mode escalated")
	s.mode = next
	return nil
}

func (s *Session) deescalate(ctx context.Context) error {
	const op = "ensure_mode"

	spec, ok := s.dialect.ModeSpec(s.mode)
	prev := s.mode - 1
	if !ok {
		return types.InvalidParameter(op, "mode %s is not declared by dialect %s", s.mode, s.dialect.Name())
	}
	if spec.Implicit {
		s.log.WithFields(logrus.Fields{"from": s.mode, "to": prev}).Debug("implicit mode change")
		s.mode = prev
		return nil
	}

	res, err := s.exec.Execute(ctx, types.CommandRequest{Command: spec.Exit})
	if err != nil {
		if types.CodeOf(err) == types.CodeDeviceError {
			return types.NewError(types.CodePrivilegeEscalationFailed, op, spec.Exit,
				fmt.Sprintf("device refused to leave %s mode: %s", s.mode, types.DeviceText(err)), nil)
		}
		return err
	}
	if got := res.Mode; got != s.dialect.PromptMode(prev) {
		return types.NewError(types.CodePrivilegeEscalationFailed, op, spec.Exit,
			fmt.Sprintf("prompt %q is %s, expected %s", res.Prompt, got, prev), nil)
	}

	s.log.WithFields(logrus.Fields{"from": s.mode, "to": prev}).Info("mode released")
	s.mode = prev
	return nil
}

// Close tears down the transport
func (s *Session) Close() error {
	return s.transport.Close()
}
