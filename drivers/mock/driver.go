// Package mock simulates an interactive network device shell behind the types.Transport contract.
// It echoes commands, prints mode dependent prompts, escalates with an optional enable password,
// pages long output and can be told to fail, stall or hang up on specific commands.
package mock

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nanoncore/nano-cliconf/types"
)

// ErrClosed is returned by Write after the device hung up
var ErrClosed = errors.New("mock device closed")

// Transition is a mode change triggered by a command
type Transition struct {
	From types.Mode
	To   types.Mode
}

// Config describes the simulated device
type Config struct {
	Hostname string

	// Prompts are fmt templates per mode, formatted with Hostname
	Prompts [3]string

	// InitialMode is the mode the shell starts in
	InitialMode types.Mode

	// Banner is printed before the first prompt
	Banner string

	// Transitions are the mode changing commands
	Transitions map[string]Transition

	// EnablePassword, when set, is requested by transitions into ModePrivileged
	EnablePassword string

	// PasswordRetries is how many times a wrong enable password is asked for again before
	// the device gives up
	PasswordRetries int

	// Responses are command outputs, looked up by the exact command text
	Responses map[string]string

	// Failures are commands answered with an error line instead of output
	Failures map[string]string

	// Dialogs are commands that ask one or more questions before printing their response
	Dialogs map[string][]string

	// Silent commands are echoed and then never answered
	Silent map[string]bool

	// HangUpOn closes the stream after echoing this command
	HangUpOn string

	// PageLines splits output longer than this many lines behind a --More-- pager
	PageLines int

	// ChunkSize caps the bytes returned by one Read
	ChunkSize int

	// ErrorText is printed for unknown commands and commands in the wrong mode
	ErrorText string
}

// Device is a simulated shell. It is safe for concurrent use.
type Device struct {
	cfg Config

	mu       sync.Mutex
	mode     types.Mode
	out      []byte
	in       []byte
	closed   bool
	notify   chan struct{}
	history  []string
	applied  []string
	state    inputState
	pending  string
	dialog   []string
	pages    []string
	answers  []string
	bytesIn  int
	pagerHit int
	afterCR  bool
	retries  int
}

type inputState int

const (
	stateCommand inputState = iota
	statePassword
	stateDialog
	statePaging
)

// NewDevice builds a device and queues its banner and first prompt
func NewDevice(cfg Config) *Device {
	if cfg.Hostname == "" {
		cfg.Hostname = "mock"
	}
	if cfg.ErrorText == "" {
		cfg.ErrorText = "% Error: Invalid input detected at '^' marker."
	}
	d := &Device{
		cfg:    cfg,
		mode:   cfg.InitialMode,
		notify: make(chan struct{}, 1),
	}
	if cfg.Banner != "" {
		d.emit(strings.ReplaceAll(cfg.Banner, "\n", "\r\n") + "\r\n")
	}
	d.emit(d.prompt())
	return d
}

// Write feeds keystrokes to the shell
func (d *Device) Write(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.bytesIn += len(p)
	d.in = append(d.in, p...)
	d.process()
	return nil
}

// Read returns pending output, waiting up to timeout for some to arrive
func (d *Device) Read(timeout time.Duration) ([]byte, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		d.mu.Lock()
		if len(d.out) > 0 {
			n := len(d.out)
			if d.cfg.ChunkSize > 0 && n > d.cfg.ChunkSize {
				n = d.cfg.ChunkSize
			}
			chunk := append([]byte(nil), d.out[:n]...)
			d.out = d.out[n:]
			d.mu.Unlock()
			return chunk, nil
		}
		if d.closed {
			d.mu.Unlock()
			return nil, io.EOF
		}
		d.mu.Unlock()

		select {
		case <-d.notify:
		case <-deadline.C:
			return nil, types.ErrReadTimeout
		}
	}
}

// Close hangs up
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hangUp()
	return nil
}

// Mode returns the shell's current mode
func (d *Device) Mode() types.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// History returns every command line received, in order, excluding answers and passwords
func (d *Device) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.history...)
}

// Applied returns the lines accepted in configuration mode
func (d *Device) Applied() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.applied...)
}

// Answers returns the replies received for dialog questions
func (d *Device) Answers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.answers...)
}

// BytesWritten returns the total number of bytes written to the device
func (d *Device) BytesWritten() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bytesIn
}

// PagerHits returns how many times a pager continuation was received
func (d *Device) PagerHits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pagerHit
}

// Count returns how many times command was received
func (d *Device) Count(command string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.history {
		if c == command {
			n++
		}
	}
	return n
}

func (d *Device) process() {
	for len(d.in) > 0 && !d.closed {
		if d.state == statePaging {
			d.in = d.in[1:]
			d.afterCR = false
			d.pagerHit++
			d.emit("\r        \r")
			d.nextPage()
			continue
		}

		i := strings.IndexAny(string(d.in), "\r\n")
		if i < 0 {
			return
		}
		term := d.in[i]
		line := string(d.in[:i])
		d.in = d.in[i+1:]
		// CRLF is one terminator
		if term == '\n' && i == 0 && d.afterCR {
			d.afterCR = false
			continue
		}
		d.afterCR = term == '\r'
		d.handleLine(line)
	}
}

func (d *Device) handleLine(line string) {
	switch d.state {
	case statePassword:
		d.emit("\r\n")
		if line != d.cfg.EnablePassword && d.retries < d.cfg.PasswordRetries {
			d.retries++
			d.emit("Password: ")
			return
		}
		d.state = stateCommand
		if line == d.cfg.EnablePassword {
			d.mode = types.ModePrivileged
		} else {
			d.emit("% Bad secret\r\n")
		}
		d.emit(d.prompt())
		return
	case stateDialog:
		d.emit(line + "\r\n")
		d.answers = append(d.answers, line)
		if len(d.dialog) > 0 {
			d.ask()
			return
		}
		d.state = stateCommand
		d.respond(d.cfg.Responses[d.pending])
		return
	}

	command := strings.TrimSpace(line)
	d.emit(line + "\r\n")
	if command == "" {
		d.emit(d.prompt())
		return
	}
	d.history = append(d.history, command)

	if command == d.cfg.HangUpOn {
		d.hangUp()
		return
	}
	if d.cfg.Silent[command] {
		return
	}

	if t, ok := d.cfg.Transitions[command]; ok {
		if d.mode != t.From {
			d.fail(d.cfg.ErrorText)
			return
		}
		if t.To == types.ModePrivileged && t.From < t.To && d.cfg.EnablePassword != "" {
			d.state = statePassword
			d.retries = 0
			d.emit("Password: ")
			return
		}
		d.mode = t.To
		d.emit(d.prompt())
		return
	}

	if text, ok := d.cfg.Failures[command]; ok {
		d.fail(text)
		return
	}

	if questions, ok := d.cfg.Dialogs[command]; ok && len(questions) > 0 {
		d.pending = command
		d.dialog = append([]string(nil), questions...)
		d.state = stateDialog
		d.ask()
		return
	}

	if out, ok := d.cfg.Responses[command]; ok {
		d.respond(out)
		return
	}

	if d.mode == types.ModeConfiguration {
		d.applied = append(d.applied, command)
		d.emit(d.prompt())
		return
	}
	d.fail(d.cfg.ErrorText)
}

func (d *Device) ask() {
	q := d.dialog[0]
	d.dialog = d.dialog[1:]
	d.emit(q)
}

func (d *Device) fail(text string) {
	d.emit(text + "\r\n" + d.prompt())
}

func (d *Device) respond(out string) {
	out = strings.Trim(out, "\n")
	if out == "" {
		d.emit(d.prompt())
		return
	}
	lines := strings.Split(out, "\n")
	if d.cfg.PageLines <= 0 || len(lines) <= d.cfg.PageLines {
		d.emit(strings.Join(lines, "\r\n") + "\r\n" + d.prompt())
		return
	}
	for len(lines) > 0 {
		n := d.cfg.PageLines
		if n > len(lines) {
			n = len(lines)
		}
		d.pages = append(d.pages, strings.Join(lines[:n], "\r\n")+"\r\n")
		lines = lines[n:]
	}
	d.nextPage()
}

func (d *Device) nextPage() {
	page := d.pages[0]
	d.pages = d.pages[1:]
	d.emit(page)
	if len(d.pages) > 0 {
		d.state = statePaging
		d.emit(" --More-- ")
		return
	}
	d.state = stateCommand
	d.emit(d.prompt())
}

func (d *Device) prompt() string {
	tmpl := d.cfg.Prompts[d.mode]
	if tmpl == "" {
		tmpl = "%s>"
	}
	return fmt.Sprintf(tmpl, d.cfg.Hostname) + " "
}

func (d *Device) emit(s string) {
	d.out = append(d.out, s...)
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *Device) hangUp() {
	if d.closed {
		return
	}
	d.closed = true
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

var _ types.Transport = (*Device)(nil)
