package prompt

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-cliconf/types"
)

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	mk := func(mode types.Mode, pattern string) Pattern {
		re, err := Anchor(pattern)
		require.NoError(t, err)
		return Pattern{Mode: mode, Re: re}
	}
	return NewMatcher(
		[]Pattern{
			mk(types.ModeConfiguration, `[\w\-\.]+\([^)]+\)#`),
			mk(types.ModePrivileged, `[\w\-\.]+#`),
			mk(types.ModeUnprivileged, `[\w\-\.]+>`),
		},
		[]*regexp.Regexp{
			regexp.MustCompile(`% ?Invalid input`),
			regexp.MustCompile(`% ?Error`),
		},
	)
}

func TestClassify(t *testing.T) {
	m := testMatcher(t)

	tests := []struct {
		name       string
		buf        string
		wantKind   Kind
		wantMode   types.Mode
		wantPrompt string
		wantOffset int
	}{
		{name: "empty", buf: "", wantKind: Incomplete},
		{name: "unprivileged", buf: "leaf1>", wantKind: PromptMatch, wantMode: types.ModeUnprivileged, wantPrompt: "leaf1>"},
		{name: "privileged with trailing space", buf: "show clock\r\n12:00:01\r\nleaf1# ", wantKind: PromptMatch, wantMode: types.ModePrivileged, wantPrompt: "leaf1#", wantOffset: 22},
		{name: "configuration", buf: "configure terminal\r\nleaf1(config)#", wantKind: PromptMatch, wantMode: types.ModeConfiguration, wantPrompt: "leaf1(config)#", wantOffset: 20},
		{name: "sub configuration", buf: "\r\nleaf1(conf-if-eth1/1/1)#", wantKind: PromptMatch, wantMode: types.ModeConfiguration, wantPrompt: "leaf1(conf-if-eth1/1/1)#", wantOffset: 2},
		{name: "output still streaming", buf: "show version\r\nOS Version 10.4.3.1\r\n", wantKind: Incomplete},
		{name: "prompt-like text mid output", buf: "show run\r\nbanner leaf1#\r\nmore config", wantKind: Incomplete},
		{name: "prompt text not anchored at line start", buf: "description uplink to spine1#", wantKind: Incomplete},
		{name: "ansi colored prompt", buf: "\r\n\x1b[1mleaf1#\x1b[0m", wantKind: PromptMatch, wantMode: types.ModePrivileged, wantPrompt: "leaf1#", wantOffset: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Classify([]byte(tt.buf))
			assert.Equal(t, tt.wantKind, got.Kind)
			if tt.wantKind == Incomplete {
				return
			}
			assert.Equal(t, tt.wantMode, got.Mode)
			assert.Equal(t, tt.wantPrompt, got.Prompt)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}

func TestClassifyErrorMatch(t *testing.T) {
	m := testMatcher(t)

	buf := "show foo\r\n         ^\r\n% Invalid input detected at '^' marker.\r\nleaf1#"
	got := m.Classify([]byte(buf))

	assert.Equal(t, ErrorMatch, got.Kind)
	assert.Equal(t, types.ModePrivileged, got.Mode)
	assert.Equal(t, "% Invalid input detected at '^' marker.", got.ErrorText)
}

func TestClassifyErrorWithoutPromptIsIncomplete(t *testing.T) {
	m := testMatcher(t)

	got := m.Classify([]byte("show foo\r\n% Invalid input detected at '^' marker.\r\n"))
	assert.Equal(t, Incomplete, got.Kind)
}

func TestClassifyPromptLine(t *testing.T) {
	m := testMatcher(t)

	got := m.Classify([]byte("spine2(config-router-bgp)# "))
	assert.Equal(t, PromptMatch, got.Kind)
	assert.Equal(t, types.ModeConfiguration, got.Mode)

	assert.Equal(t, Incomplete, m.Classify([]byte("Password:")).Kind)
}

func TestClassifyCommandIgnoresErrorTextInEcho(t *testing.T) {
	re, err := Anchor(`[\w\-\.]+\([^)]+\)#`)
	require.NoError(t, err)
	m := NewMatcher(
		[]Pattern{{Mode: types.ModeConfiguration, Re: re}},
		[]*regexp.Regexp{regexp.MustCompile(`(?i)invalid input`)},
	)
	buf := []byte("description invalid input ports\r\nleaf1(conf-if-eth1/1/1)# ")

	assert.Equal(t, ErrorMatch, m.Classify(buf).Kind)

	got := m.ClassifyCommand(buf, "description invalid input ports")
	assert.Equal(t, PromptMatch, got.Kind)
	assert.Empty(t, got.ErrorText)

	got = m.ClassifyCommand([]byte("descr\r\n% Invalid input detected at '^' marker.\r\nleaf1(conf-if-eth1/1/1)# "), "descr")
	assert.Equal(t, ErrorMatch, got.Kind)
	assert.Equal(t, "% Invalid input detected at '^' marker.", got.ErrorText)
}

func TestInteractive(t *testing.T) {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`\[confirm\]`),
		regexp.MustCompile(`--More--`),
	}

	idx, offset, ok := Interactive([]byte("reload\r\nProceed with reload? [confirm]"), 0, patterns)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 8, offset)

	idx, _, ok = Interactive([]byte("line1\r\n --More-- "), 0, patterns)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	// text before from has already been answered
	buf := []byte("Proceed with reload? [confirm]")
	_, _, ok = Interactive(buf, len(buf), patterns)
	assert.False(t, ok)

	_, _, ok = Interactive([]byte("plain output\r\n"), 0, patterns)
	assert.False(t, ok)
}

func TestStrip(t *testing.T) {
	buf := []byte("show clock\r\n12:00:01.000 UTC\r\nMon Oct 12 2026\r\nleaf1#")
	m := testMatcher(t).Classify(buf)
	require.Equal(t, PromptMatch, m.Kind)

	assert.Equal(t, "12:00:01.000 UTC\nMon Oct 12 2026", Strip(buf, m.Offset, "show clock"))
	assert.Equal(t, "", Strip([]byte("end\r\nleaf1#"), 5, "end"))
	assert.Equal(t, "no echo here", Strip([]byte("no echo here\r\n"), -1, ""))
}

func TestAnchorRejectsBadPattern(t *testing.T) {
	_, err := Anchor(`[unterminated`)
	assert.Error(t, err)
}
