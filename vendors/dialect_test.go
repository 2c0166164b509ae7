package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-cliconf/types"
)

func baseSpec() Spec {
	return Spec{
		Name:      "Test",
		NetworkOS: "test.os",
		Modes: map[string]ModeSpec{
			"unprivileged":  {Prompt: `\w+>`},
			"privileged":    {Prompt: `\w+#`, Enter: "enable", Exit: "disable"},
			"configuration": {Prompt: `\w+\(config\)#`, Enter: "configure terminal", Exit: "end"},
		},
		AutoReplies: []AutoReply{{Pattern: `--More--`, Reply: " "}, {Pattern: `\[y/n\]`, Reply: "y", Newline: true}},
		Newline:     "\r",
	}
}

func TestCompile(t *testing.T) {
	d, err := Compile(baseSpec())
	require.NoError(t, err)

	assert.Equal(t, "test", d.Name())
	assert.Equal(t, "\r", d.Newline())
	for _, mode := range types.Modes {
		assert.True(t, d.Reachable(mode))
		assert.Equal(t, mode, d.PromptMode(mode))
	}
	require.Len(t, d.AutoReplies(), 2)
	assert.Equal(t, " ", d.AutoReplies()[0].Text)
	assert.Equal(t, "y\r", d.AutoReplies()[1].Text)
	assert.Nil(t, d.EnablePasswordPrompt())
	assert.False(t, d.Detects("anything"))
}

func TestCompileValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Spec)
	}{
		{"missing name", func(s *Spec) { s.Name = " " }},
		{"missing network os", func(s *Spec) { s.NetworkOS = "" }},
		{"unknown mode", func(s *Spec) { s.Modes["shell"] = ModeSpec{Prompt: `\$`} }},
		{"no unprivileged", func(s *Spec) { delete(s.Modes, "unprivileged") }},
		{"gap in chain", func(s *Spec) { delete(s.Modes, "privileged") }},
		{"privileged without enter", func(s *Spec) { s.Modes["privileged"] = ModeSpec{Prompt: `\w+#`, Exit: "disable"} }},
		{"configuration without exit", func(s *Spec) {
			s.Modes["configuration"] = ModeSpec{Prompt: `\w+\(config\)#`, Enter: "configure terminal"}
		}},
		{"implicit with prompt", func(s *Spec) { s.Modes["privileged"] = ModeSpec{Prompt: `\w+#`, Implicit: true} }},
		{"implicit unprivileged", func(s *Spec) { s.Modes["unprivileged"] = ModeSpec{Implicit: true} }},
		{"duplicate mode alias", func(s *Spec) { s.Modes["enable"] = ModeSpec{Prompt: `\w+#`, Enter: "en", Exit: "dis"} }},
		{"bad prompt", func(s *Spec) { s.Modes["unprivileged"] = ModeSpec{Prompt: `(`} }},
		{"bad error pattern", func(s *Spec) { s.ErrorPatterns = []string{`[`} }},
		{"bad auto reply", func(s *Spec) { s.AutoReplies = []AutoReply{{Pattern: `(`}} }},
		{"bad identity", func(s *Spec) { s.Identity.Model = `(?P<` }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := baseSpec()
			tt.mutate(&spec)
			_, err := Compile(spec)
			assert.Error(t, err)
		})
	}
}

func TestUndeclaredModeIsUnreachable(t *testing.T) {
	spec := baseSpec()
	delete(spec.Modes, "configuration")
	d, err := Compile(spec)
	require.NoError(t, err)

	assert.False(t, d.Reachable(types.ModeConfiguration))
	_, ok := d.ModeSpec(types.ModeConfiguration)
	assert.False(t, ok)
	assert.False(t, d.Reachable(types.Mode(9)))
}

func TestSpecReturnsCopy(t *testing.T) {
	d := MustCompile(baseSpec())
	spec := d.Spec()
	spec.Modes["privileged"] = ModeSpec{}

	ms, ok := d.ModeSpec(types.ModePrivileged)
	require.True(t, ok)
	assert.Equal(t, "enable", ms.Enter)
}
