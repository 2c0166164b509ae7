package cli

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoncore/nano-cliconf/drivers/mock"
	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testOptions(extra ...Option) []Option {
	return append([]Option{
		WithTimeout(time.Second),
		WithPollInterval(10 * time.Millisecond),
		WithNudgeAfter(50 * time.Millisecond),
		WithLogger(quietLogger()),
	}, extra...)
}

func dialect(t *testing.T, name string) *vendors.Dialect {
	t.Helper()
	d, err := vendors.Default().Get(name)
	require.NoError(t, err)
	return d
}

// openOS10 opens a session on a simulated OS10 switch, letting the caller tweak the device first
func openOS10(t *testing.T, mutate func(*mock.Config), opts ...Option) (*mock.Device, *Session) {
	t.Helper()
	cfg := mock.OS10Config("leaf1")
	if mutate != nil {
		mutate(&cfg)
	}
	dev := mock.NewDevice(cfg)
	s := NewSession(dev, dialect(t, "os10"), testOptions(opts...)...)
	require.NoError(t, s.Open(context.Background()))
	return dev, s
}

func TestOpenSyncsModeAndRunsSetup(t *testing.T) {
	dev, s := openOS10(t, func(c *mock.Config) { c.Banner = "Dell EMC Networking OS10 Enterprise" })

	assert.Equal(t, types.ModeUnprivileged, s.Mode())
	assert.Equal(t, []string{"terminal length 0"}, dev.History())
}

func TestOpenAdoptsPrivilegedLogin(t *testing.T) {
	_, s := openOS10(t, func(c *mock.Config) { c.InitialMode = types.ModePrivileged })
	assert.Equal(t, types.ModePrivileged, s.Mode())
}

func TestOpenNudgesSilentDevice(t *testing.T) {
	dev := mock.OS10("leaf1")
	// swallow the login prompt so the session sees nothing until it nudges
	_, err := dev.Read(time.Second)
	require.NoError(t, err)

	s := NewSession(dev, dialect(t, "os10"), testOptions()...)
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
	assert.Equal(t, []string{"terminal length 0"}, dev.History())
}

func TestOpenSetupRejectionIsNotFatal(t *testing.T) {
	dev, s := openOS10(t, func(c *mock.Config) { c.Failures["terminal length 0"] = "% Error: not supported" })
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
	assert.Equal(t, 1, dev.Count("terminal length 0"))
}

func TestOpenTimesOutWithoutPrompt(t *testing.T) {
	dev := mock.NewDevice(mock.Config{Hostname: "x", Prompts: [3]string{"%s$$"}})
	s := NewSession(dev, dialect(t, "os10"), testOptions(WithTimeout(150*time.Millisecond))...)

	err := s.Open(context.Background())
	assert.ErrorIs(t, err, types.ErrResponseTimeout)
}

// chattyTransport prints a prompt and then a syslog line followed by the prompt again every
// few milliseconds, forever
type chattyTransport struct {
	started bool
	written []string
}

func (c *chattyTransport) Write(p []byte) error {
	c.written = append(c.written, string(p))
	return nil
}

func (c *chattyTransport) Read(timeout time.Duration) ([]byte, error) {
	if !c.started {
		c.started = true
		return []byte("leaf1# "), nil
	}
	time.Sleep(min(5*time.Millisecond, timeout))
	return []byte("\r\n%LOG: link flap on ethernet1/1/1\r\nleaf1# "), nil
}

func (c *chattyTransport) Close() error { return nil }

func TestOpenReturnsWhileDeviceKeepsPrinting(t *testing.T) {
	tr := &chattyTransport{}
	s := NewSession(tr, dialect(t, "os10"), testOptions(WithTimeout(300*time.Millisecond))...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Open(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, types.ModePrivileged, s.Mode())
		assert.Contains(t, tr.written, "terminal length 0\n")
	case <-time.After(3 * time.Second):
		t.Fatal("Open blocked on a device that never goes quiet")
	}
}

func TestOpenHonoursCancelWhileDraining(t *testing.T) {
	s := NewSession(&chattyTransport{}, dialect(t, "os10"), testOptions(WithTimeout(10*time.Second))...)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err := s.Open(ctx)
	assert.ErrorIs(t, err, types.ErrResponseTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEnsureModeIsIdempotent(t *testing.T) {
	dev, s := openOS10(t, nil)
	ctx := context.Background()

	require.NoError(t, s.EnsureMode(ctx, types.ModePrivileged))
	assert.Equal(t, types.ModePrivileged, s.Mode())
	written := dev.BytesWritten()

	require.NoError(t, s.EnsureMode(ctx, types.ModePrivileged))
	assert.Equal(t, written, dev.BytesWritten(), "already in mode: nothing is sent")
	assert.Equal(t, 1, dev.Count("enable"))
}

func TestEnsureModeWalksTheChain(t *testing.T) {
	dev, s := openOS10(t, nil)
	ctx := context.Background()

	require.NoError(t, s.EnsureMode(ctx, types.ModeConfiguration))
	assert.Equal(t, types.ModeConfiguration, s.Mode())
	assert.Equal(t, types.ModeConfiguration, dev.Mode())

	require.NoError(t, s.EnsureMode(ctx, types.ModeUnprivileged))
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
	assert.Equal(t, []string{"terminal length 0", "enable", "configure terminal", "end", "disable"}, dev.History())
}

func TestEnsureModeAnswersEnablePassword(t *testing.T) {
	dev, s := openOS10(t, func(c *mock.Config) { c.EnablePassword = "s3cret" }, WithEnablePassword("s3cret"))

	require.NoError(t, s.EnsureMode(context.Background(), types.ModePrivileged))
	assert.Equal(t, types.ModePrivileged, s.Mode())
	assert.Equal(t, types.ModePrivileged, dev.Mode())
}

func TestEnsureModeRejectedPasswordKeepsMode(t *testing.T) {
	dev, s := openOS10(t, func(c *mock.Config) { c.EnablePassword = "s3cret" }, WithEnablePassword("wrong"))

	err := s.EnsureMode(context.Background(), types.ModePrivileged)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPrivilegeEscalationFailed)
	assert.Contains(t, err.Error(), "% Bad secret")
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
	assert.Equal(t, types.ModeUnprivileged, dev.Mode())
}

func TestEnsureModeRepeatedPasswordPromptFailsFast(t *testing.T) {
	dev, s := openOS10(t, func(c *mock.Config) {
		c.EnablePassword = "s3cret"
		c.PasswordRetries = 2
	}, WithEnablePassword("wrong"), WithTimeout(5*time.Second))

	start := time.Now()
	err := s.EnsureMode(context.Background(), types.ModePrivileged)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPrivilegeEscalationFailed)
	assert.Contains(t, err.Error(), "answer not accepted")
	assert.Less(t, time.Since(start), time.Second, "must not wait for the response timeout")
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
	assert.Equal(t, types.ModeUnprivileged, dev.Mode())
}

func TestEnsureModeFailureStopsAtLastConfirmedMode(t *testing.T) {
	dev, s := openOS10(t, func(c *mock.Config) {
		delete(c.Transitions, "configure terminal")
		c.Failures["configure terminal"] = "% Error: configuration is locked by another session"
	})

	err := s.EnsureMode(context.Background(), types.ModeConfiguration)
	assert.ErrorIs(t, err, types.ErrPrivilegeEscalationFailed)
	assert.Equal(t, types.ModePrivileged, s.Mode())
	assert.Equal(t, types.ModePrivileged, dev.Mode())
}

func TestEnsureModeWrongPromptIsEscalationFailure(t *testing.T) {
	_, s := openOS10(t, func(c *mock.Config) {
		// the device accepts "enable" but stays unprivileged
		delete(c.Transitions, "enable")
		c.Responses["enable"] = ""
	})

	err := s.EnsureMode(context.Background(), types.ModePrivileged)
	assert.ErrorIs(t, err, types.ErrPrivilegeEscalationFailed)
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
}

func TestEnsureModeTimeoutKeepsMode(t *testing.T) {
	_, s := openOS10(t, func(c *mock.Config) { c.Silent["enable"] = true }, WithTimeout(100*time.Millisecond))

	err := s.EnsureMode(context.Background(), types.ModePrivileged)
	assert.ErrorIs(t, err, types.ErrResponseTimeout)
	assert.Equal(t, types.ModeUnprivileged, s.Mode())
}

func TestEnsureModeUndeclaredSendsNothing(t *testing.T) {
	spec := dialect(t, "os10").Spec()
	spec.Name = "os10-readonly"
	delete(spec.Modes, "configuration")
	d, err := vendors.Compile(spec)
	require.NoError(t, err)

	dev := mock.OS10("leaf1")
	s := NewSession(dev, d, testOptions()...)
	require.NoError(t, s.Open(context.Background()))
	written := dev.BytesWritten()

	err = s.EnsureMode(context.Background(), types.ModeConfiguration)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
	assert.Equal(t, written, dev.BytesWritten())
	assert.Equal(t, types.ModeUnprivileged, s.Mode())

	assert.ErrorIs(t, s.EnsureMode(context.Background(), types.Mode(5)), types.ErrInvalidParameter)
}

func TestExecuteAdoptsModeChangedByCommand(t *testing.T) {
	_, s := openOS10(t, nil)
	ctx := context.Background()

	require.NoError(t, s.EnsureMode(ctx, types.ModePrivileged))
	res, err := s.Send(ctx, "configure terminal")
	require.NoError(t, err)
	assert.Equal(t, types.ModeConfiguration, res.Mode)
	assert.Equal(t, types.ModeConfiguration, s.Mode())
}

func TestImplicitPrivilegedHop(t *testing.T) {
	dev := mock.VRP("CE1")
	s := NewSession(dev, dialect(t, "vrp"), testOptions()...)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	require.Equal(t, types.ModeUnprivileged, s.Mode())
	written := dev.BytesWritten()

	require.NoError(t, s.EnsureMode(ctx, types.ModePrivileged))
	assert.Equal(t, types.ModePrivileged, s.Mode())
	assert.Equal(t, written, dev.BytesWritten())

	// a command answered by the shared prompt keeps the implicit mode
	_, err := s.Send(ctx, "display version")
	require.NoError(t, err)
	assert.Equal(t, types.ModePrivileged, s.Mode())

	require.NoError(t, s.EnsureMode(ctx, types.ModeConfiguration))
	assert.Equal(t, types.ModeConfiguration, dev.Mode())

	require.NoError(t, s.EnsureMode(ctx, types.ModePrivileged))
	assert.Equal(t, types.ModePrivileged, s.Mode())
	assert.Equal(t, types.ModeUnprivileged, dev.Mode())

	require.NoError(t, s.EnsureMode(ctx, types.ModeUnprivileged))
	assert.Equal(t, []string{"screen-length 0 temporary", "display version", "system-view", "return"}, dev.History())
}

func TestSessionClose(t *testing.T) {
	dev, s := openOS10(t, nil)
	require.NoError(t, s.Close())

	_, err := s.Send(context.Background(), "show clock")
	assert.ErrorIs(t, err, types.ErrTransportClosed)
	assert.ErrorIs(t, dev.Write([]byte("x")), mock.ErrClosed)
}
