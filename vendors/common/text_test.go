package common

import "testing"

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty string", input: "", want: ""},
		{name: "no ANSI codes", input: "leaf1#", want: "leaf1#"},
		{name: "red text", input: "\x1b[31mError\x1b[0m", want: "Error"},
		{name: "cursor movement", input: "\x1b[2J\x1b[Hleaf1>", want: "leaf1>"},
		{name: "private mode", input: "\x1b[?25hleaf1#", want: "leaf1#"},
		{name: "256 color code", input: "\x1b[38;5;196mBright Red\x1b[0m", want: "Bright Red"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripANSI(tt.input)
			if got != tt.want {
				t.Errorf("StripANSI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripControl(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "crlf", input: "line1\r\nline2\r\n", want: "line1\nline2\n"},
		{name: "pager erase", input: "a\n\x08\x08\x08\x08        \x08\x08\x08\x08b\n", want: "a\nb\n"},
		{name: "bell and tabs", input: "x\a\ty", want: "x\ty"},
		{name: "carriage erase", input: "one\r\n\r        \rtwo\r\n", want: "one\ntwo\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripControl(tt.input)
			if got != tt.want {
				t.Errorf("StripControl() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeNewlines(t *testing.T) {
	got := NormalizeNewlines("a\r\nb\r\r\nc\rd")
	if got != "a\nb\ncd" {
		t.Errorf("NormalizeNewlines() = %q", got)
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		input      string
		wantLine   string
		wantOffset int
	}{
		{"", "", 0},
		{"leaf1#", "leaf1#", 0},
		{"show clock\n12:00\nleaf1#", "leaf1#", 17},
		{"output\n", "", 7},
	}

	for _, tt := range tests {
		line, offset := LastLine(tt.input)
		if line != tt.wantLine || offset != tt.wantOffset {
			t.Errorf("LastLine(%q) = (%q, %d), want (%q, %d)", tt.input, line, offset, tt.wantLine, tt.wantOffset)
		}
	}
}
