// Package prompt decides whether a device output buffer has reached an interactive prompt.
//
// Only the buffer tail is examined: the text after the last newline, with carriage returns,
// ANSI escapes and trailing blanks removed. Prompt patterns are anchored to that line, so a
// prompt-like string inside ordinary command output never terminates capture.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors/common"
)

// Kind is the classification of a buffer
type Kind int

const (
	// Incomplete means no prompt is at the end of the buffer yet
	Incomplete Kind = iota
	// PromptMatch means the buffer ends in a known prompt
	PromptMatch
	// ErrorMatch means the buffer ends in a prompt and the output contains a device error
	ErrorMatch
)

func (k Kind) String() string {
	switch k {
	case PromptMatch:
		return "prompt"
	case ErrorMatch:
		return "error"
	default:
		return "incomplete"
	}
}

// Pattern binds a prompt regular expression to the mode it identifies
type Pattern struct {
	Mode types.Mode
	Re   *regexp.Regexp
}

// Match is the result of Classify
type Match struct {
	Kind Kind

	// Mode is the mode of the matched prompt
	Mode types.Mode

	// Offset is the byte index in the buffer where the prompt line starts
	Offset int

	// Prompt is the cleaned prompt text
	Prompt string

	// ErrorText holds the literal device error line(s) for ErrorMatch
	ErrorText string
}

// Matcher classifies buffers for one dialect. It is immutable and safe for concurrent use.
type Matcher struct {
	prompts []Pattern
	errors  []*regexp.Regexp
}

// Anchor compiles pattern so that it must match a whole prompt line
func Anchor(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt pattern %q: %w", pattern, err)
	}
	return re, nil
}

// NewMatcher builds a matcher. Prompt patterns are tried in the given order, so callers
// list the most specific mode first. Prompt regexes are expected to be anchored (see Anchor).
func NewMatcher(prompts []Pattern, errorPatterns []*regexp.Regexp) *Matcher {
	return &Matcher{
		prompts: append([]Pattern(nil), prompts...),
		errors:  append([]*regexp.Regexp(nil), errorPatterns...),
	}
}

// Classify inspects the accumulated output of one command
func (m *Matcher) Classify(buf []byte) Match {
	return m.ClassifyCommand(buf, "")
}

// ClassifyCommand is Classify for output that starts with the echo of command. The echo
// line is not scanned for device errors.
func (m *Matcher) ClassifyCommand(buf []byte, command string) Match {
	line, offset := Tail(buf)
	if line == "" {
		return Match{Kind: Incomplete}
	}

	for _, p := range m.prompts {
		if !p.Re.MatchString(line) {
			continue
		}
		match := Match{Kind: PromptMatch, Mode: p.Mode, Offset: offset, Prompt: line}
		if text := m.scanErrors(buf[:offset], command); text != "" {
			match.Kind = ErrorMatch
			match.ErrorText = text
		}
		return match
	}

	return Match{Kind: Incomplete}
}

func (m *Matcher) scanErrors(output []byte, command string) string {
	if len(m.errors) == 0 || len(output) == 0 {
		return ""
	}
	lines := strings.Split(common.StripControl(string(output)), "\n")
	if isEcho(lines[0], command) {
		lines = lines[1:]
	}
	var hits []string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		for _, re := range m.errors {
			if re.MatchString(line) {
				hits = append(hits, strings.TrimSpace(line))
				break
			}
		}
	}
	return strings.Join(hits, "\n")
}

// isEcho reports whether line is the device's echo of command. The echo may be preceded by
// a redrawn prompt or cut short by terminal wrapping.
func isEcho(line, command string) bool {
	command = strings.TrimSpace(command)
	line = strings.TrimSpace(line)
	if command == "" {
		return false
	}
	return strings.Contains(line, command) || strings.HasPrefix(command, line)
}

// Tail returns the cleaned last line of buf and the byte offset where it starts
func Tail(buf []byte) (string, int) {
	return TailFrom(buf, 0)
}

// TailFrom is Tail restricted to bytes at or after from. It lets callers ignore text
// they have already reacted to, such as an answered confirmation prompt.
func TailFrom(buf []byte, from int) (string, int) {
	if from < 0 {
		from = 0
	}
	if from > len(buf) {
		from = len(buf)
	}
	line, offset := common.LastLine(string(buf))
	if offset < from {
		line = string(buf[from:])
		offset = from
	}
	return cleanLine(line), offset
}

func cleanLine(line string) string {
	line = common.StripANSI(line)
	line = strings.ReplaceAll(line, "\r", "")
	line = strings.Map(func(r rune) rune {
		if r == '\x08' || r == 0 {
			return -1
		}
		return r
	}, line)
	return strings.TrimSpace(line)
}

// Interactive reports the index of the first pattern found in the buffer tail after from.
// Sub-prompt patterns are searched unanchored within the tail line.
func Interactive(buf []byte, from int, patterns []*regexp.Regexp) (int, int, bool) {
	line, offset := TailFrom(buf, from)
	if line == "" {
		return -1, offset, false
	}
	for i, re := range patterns {
		if re.MatchString(line) {
			return i, offset, true
		}
	}
	return -1, offset, false
}

// Strip returns the command output without the echoed command line and the terminating prompt
func Strip(buf []byte, promptOffset int, command string) string {
	if promptOffset < 0 || promptOffset > len(buf) {
		promptOffset = len(buf)
	}
	out := common.StripControl(string(buf[:promptOffset]))
	lines := strings.Split(out, "\n")

	if isEcho(lines[0], command) {
		lines = lines[1:]
	}

	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
