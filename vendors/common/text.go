package common

import (
	"regexp"
	"strings"
)

// ansiRegex matches ANSI escape sequences (colors, cursor movement, private modes like ESC[?25h)
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b[()][0-9A-Za-z]|\x1b[=>]`)

// backspaceRegex matches a run of backspaces and the blanks pagers use to erase "--More--"
var backspaceRegex = regexp.MustCompile(`[ ]*\x08+[ ]*\x08*`)

// carriageEraseRegex matches a line overwritten in place with blanks ("\r      \r")
var carriageEraseRegex = regexp.MustCompile(`\r[ \t]+\r`)

// StripANSI removes ANSI escape codes from a string.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// StripControl removes ANSI codes, pager erase sequences and bare carriage returns,
// leaving newlines and tabs intact.
func StripControl(s string) string {
	s = StripANSI(s)
	s = backspaceRegex.ReplaceAllString(s, "")
	s = carriageEraseRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// NormalizeNewlines converts CRLF and lone CR line endings to LF.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	// "\r\r\n" shows up on some terminals after the first replacement
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "")
}

// LastLine returns the text after the final newline and its byte offset in s.
func LastLine(s string) (string, int) {
	i := strings.LastIndexByte(s, '\n')
	return s[i+1:], i + 1
}
