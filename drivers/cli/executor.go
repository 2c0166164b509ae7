package cli

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nanoncore/nano-cliconf/internal/logger"
	"github.com/nanoncore/nano-cliconf/prompt"
	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
	"github.com/nanoncore/nano-cliconf/vendors/common"
)

const (
	// DefaultTimeout bounds one command when neither the request nor the session sets one
	DefaultTimeout = 30 * time.Second

	// DefaultPollInterval is the longest single transport read
	DefaultPollInterval = 200 * time.Millisecond

	// DefaultNudgeAfter is how long Open waits for an unsolicited prompt before sending a newline
	DefaultNudgeAfter = time.Second
)

// Option configures an Executor or a Session
type Option func(*options)

type options struct {
	timeout        time.Duration
	poll           time.Duration
	nudge          time.Duration
	enablePassword string
	log            *logrus.Entry
}

func buildOptions(opts []Option) options {
	o := options{
		timeout: DefaultTimeout,
		poll:    DefaultPollInterval,
		nudge:   DefaultNudgeAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithField("component", "cli")
	}
	return o
}

// WithTimeout sets the default response timeout
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPollInterval sets the longest single transport read
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}

// WithNudgeAfter sets how long Open waits before nudging the device with a newline
func WithNudgeAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.nudge = d
		}
	}
}

// WithEnablePassword sets the answer to the privileged escalation password prompt
func WithEnablePassword(password string) Option {
	return func(o *options) {
		o.enablePassword = password
	}
}

// WithLogger sets the log entry used for command and transition logs
func WithLogger(entry *logrus.Entry) Option {
	return func(o *options) {
		o.log = entry
	}
}

// Executor sends one command and collects output until the dialect prompt returns.
// It keeps no state between commands apart from the response logging switch.
type Executor struct {
	transport types.Transport
	dialect   *vendors.Dialect
	opts      options

	logResponses bool
}

// NewExecutor builds an executor over an open transport
func NewExecutor(transport types.Transport, dialect *vendors.Dialect, opts ...Option) *Executor {
	return &Executor{
		transport: transport,
		dialect:   dialect,
		opts:      buildOptions(opts),
	}
}

// SetResponseLogging toggles logging of every captured response at info level
func (e *Executor) SetResponseLogging(enabled bool) {
	e.logResponses = enabled
}

// Execute writes req.Command and reads until a prompt of the dialect terminates the output.
//
// On a device error the result is returned together with the *types.Error so callers can
// still see the prompt the device came back with.
func (e *Executor) Execute(ctx context.Context, req types.CommandRequest) (*types.CommandResult, error) {
	const op = "execute"

	prompts := make([]*regexp.Regexp, 0, len(req.Prompts))
	for _, p := range req.Prompts {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, types.InvalidParameter(op, "invalid prompt pattern %q: %v", p, err)
		}
		prompts = append(prompts, re)
	}

	payload := req.Command
	if req.WantsNewline() {
		payload += e.dialect.Newline()
	}

	log := e.opts.log.WithField("command", req.Command)
	log.Debug("sending command")

	start := time.Now()
	if err := e.transport.Write([]byte(payload)); err != nil {
		return nil, types.NewError(types.CodeTransportClosed, op, req.Command, "write failed", err)
	}
	if req.SendOnly {
		return &types.CommandResult{Command: req.Command, Success: true, Duration: time.Since(start)}, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.opts.timeout
	}
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var (
		buf      []byte
		from     int
		answered = make([]bool, len(prompts))
		matched  int
		asking   = len(prompts) > 0
		matcher  = e.dialect.Matcher()
	)

	for {
		chunk, err := e.read(ctx, deadline)
		if err != nil {
			return nil, e.readError(op, req.Command, timeout, buf, err)
		}
		if len(chunk) == 0 {
			continue
		}
		buf = append(buf, chunk...)

		if i, repeated, line := nextPrompt(buf, from, prompts, answered); i >= 0 {
			switch {
			case repeated && matcher.Classify(buf).Kind == prompt.Incomplete:
				log.WithField("prompt", line).Debug("interactive prompt repeated after its answer")
				err := types.NewError(types.CodeDeviceError, op, req.Command,
					fmt.Sprintf("answer not accepted, device asked %q again", line), nil)
				err.Output = common.StripControl(string(buf))
				return nil, err
			case !repeated && asking:
				answered[i] = true
				matched++
				if !req.CheckAll || matched == len(prompts) {
					asking = false
				}
				if err := e.transport.Write([]byte(answerFor(req.Answers, i) + e.dialect.Newline())); err != nil {
					return nil, types.NewError(types.CodeTransportClosed, op, req.Command, "write failed", err)
				}
				log.WithField("prompt", prompts[i].String()).Debug("answered interactive prompt")
				from = len(buf)
				continue
			}
		}

		if reply, offset, ok := e.autoReply(buf, from); ok {
			if err := e.transport.Write([]byte(reply)); err != nil {
				return nil, types.NewError(types.CodeTransportClosed, op, req.Command, "write failed", err)
			}
			buf = buf[:offset]
			from = len(buf)
			continue
		}

		m := matcher.ClassifyCommand(buf, req.Command)
		if m.Kind == prompt.Incomplete {
			continue
		}

		result := &types.CommandResult{
			Command:  req.Command,
			Output:   prompt.Strip(buf, m.Offset, req.Command),
			Raw:      string(buf),
			Prompt:   m.Prompt,
			Mode:     m.Mode,
			Success:  m.Kind == prompt.PromptMatch,
			Duration: time.Since(start),
		}
		e.logResult(log, result)

		if m.Kind == prompt.ErrorMatch {
			err := types.NewError(types.CodeDeviceError, op, req.Command, m.ErrorText, nil)
			err.Output = result.Output
			return result, err
		}
		if req.CheckAll && matched < len(prompts) {
			result.Success = false
			err := types.NewError(types.CodeDeviceError, op, req.Command,
				fmt.Sprintf("prompt returned after %d of %d interactive prompts", matched, len(prompts)), nil)
			err.Output = result.Output
			return result, err
		}
		return result, nil
	}
}

// WaitPrompt reads until the device shows a prompt, sending a bare newline if nothing
// recognisable arrives within the nudge interval. Output that keeps arriving after the
// first prompt is drained so the next command starts on a quiet stream.
func (e *Executor) WaitPrompt(ctx context.Context, timeout time.Duration) (prompt.Match, error) {
	const op = "wait_prompt"

	if timeout <= 0 {
		timeout = e.opts.timeout
	}
	start := time.Now()
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	nudgeAt := start.Add(e.opts.nudge)
	nudged := false

	var buf []byte
	for {
		chunk, err := e.read(ctx, deadline)
		if err != nil {
			return prompt.Match{}, e.readError(op, "", timeout, buf, err)
		}
		buf = append(buf, chunk...)

		if reply, offset, ok := e.autoReply(buf, 0); ok {
			if err := e.transport.Write([]byte(reply)); err != nil {
				return prompt.Match{}, types.NewError(types.CodeTransportClosed, op, "", "write failed", err)
			}
			buf = buf[:offset]
			continue
		}

		if m := e.dialect.Matcher().Classify(buf); m.Kind != prompt.Incomplete {
			settled, rest, err := e.settle(ctx, deadline, buf, m)
			if err != nil {
				return prompt.Match{}, e.readError(op, "", timeout, rest, err)
			}
			if settled.Kind != prompt.Incomplete {
				return settled, nil
			}
			buf = rest
			continue
		}

		if !nudged && time.Now().After(nudgeAt) {
			nudged = true
			e.opts.log.Debug("no prompt yet, sending newline")
			if err := e.transport.Write([]byte(e.dialect.Newline())); err != nil {
				return prompt.Match{}, types.NewError(types.CodeTransportClosed, op, "", "write failed", err)
			}
		}
	}
}

// settle drains trailing output after a prompt and reclassifies the final tail. A device
// that never goes quiet is cut off at deadline with the last prompt it printed. An
// Incomplete match means the drained output ended without a prompt; the buffer is returned
// so the caller can keep waiting.
func (e *Executor) settle(ctx context.Context, deadline time.Time, buf []byte, last prompt.Match) (prompt.Match, []byte, error) {
	matcher := e.dialect.Matcher()
	for {
		chunk, err := e.read(ctx, deadline)
		switch {
		case errors.Is(err, types.ErrReadTimeout):
			return last, buf, nil
		case err != nil && ctx.Err() != nil:
			return prompt.Match{}, buf, err
		case err != nil || len(chunk) == 0:
			return matcher.Classify(buf), buf, nil
		}
		buf = append(buf, chunk...)
		if m := matcher.Classify(buf); m.Kind != prompt.Incomplete {
			last = m
		}
	}
}

// read waits at most one poll slice for a chunk. A nil chunk with a nil error means the
// slice elapsed with time left before deadline.
func (e *Executor) read(ctx context.Context, deadline time.Time) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, types.ErrReadTimeout
	}
	chunk, err := e.transport.Read(min(e.opts.poll, remaining))
	if errors.Is(err, types.ErrReadTimeout) {
		return nil, nil
	}
	return chunk, err
}

func (e *Executor) readError(op, command string, timeout time.Duration, buf []byte, err error) error {
	var terr *types.Error
	switch {
	case errors.Is(err, types.ErrReadTimeout):
		terr = types.NewError(types.CodeResponseTimeout, op, command, fmt.Sprintf("no prompt within %s", timeout), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		terr = types.NewError(types.CodeResponseTimeout, op, command, "", err)
	default:
		terr = types.NewError(types.CodeTransportClosed, op, command, "", err)
	}
	terr.Output = common.StripControl(string(buf))
	return terr
}

func (e *Executor) autoReply(buf []byte, from int) (string, int, bool) {
	replies := e.dialect.AutoReplies()
	if len(replies) == 0 {
		return "", 0, false
	}
	patterns := make([]*regexp.Regexp, len(replies))
	for i, r := range replies {
		patterns[i] = r.Re
	}
	i, offset, ok := prompt.Interactive(buf, from, patterns)
	if !ok {
		return "", 0, false
	}
	return replies[i].Text, offset, true
}

func (e *Executor) logResult(log *logrus.Entry, result *types.CommandResult) {
	fields := logrus.Fields{
		"prompt":   result.Prompt,
		"success":  result.Success,
		"duration": result.Duration,
	}
	if e.logResponses {
		log.WithFields(fields).WithField("output", result.Output).Info("command response")
		return
	}
	log.WithFields(fields).Debug("command completed")
}

// nextPrompt finds the request prompt at the buffer tail after from, preferring prompts not
// answered yet. repeated reports that only an already answered prompt matched, which is how
// a device rejects an answer and asks again.
func nextPrompt(buf []byte, from int, prompts []*regexp.Regexp, answered []bool) (i int, repeated bool, line string) {
	if len(prompts) == 0 {
		return -1, false, ""
	}
	line, _ = prompt.TailFrom(buf, from)
	if line == "" {
		return -1, false, ""
	}
	for i, re := range prompts {
		if !answered[i] && re.MatchString(line) {
			return i, false, line
		}
	}
	for i, re := range prompts {
		if answered[i] && re.MatchString(line) {
			return i, true, line
		}
	}
	return -1, false, line
}

func answerFor(answers []string, i int) string {
	switch {
	case len(answers) == 0:
		return ""
	case i < len(answers):
		return answers[i]
	default:
		return answers[len(answers)-1]
	}
}
