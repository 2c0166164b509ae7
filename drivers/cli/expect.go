package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	expect "github.com/google/goexpect"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nanoncore/nano-cliconf/types"
)

// anyOutput makes Expect return whatever is buffered as soon as there is something
var anyOutput = regexp.MustCompile(`(?s).+`)

const expectCheckInterval = 20 * time.Millisecond

// ExpectTransport drives a device shell through google/goexpect. It serves sessions that
// are spawned as local processes (telnet, console server clients) as well as SSH shells.
type ExpectTransport struct {
	exp *expect.GExpect

	mu     sync.Mutex
	exited bool
	closer io.Closer
}

// SpawnSSHTransport starts an expect session on an established SSH client.
// The transport closes the client with the session.
func SpawnSSHTransport(client *ssh.Client, timeout time.Duration) (*ExpectTransport, error) {
	exp, errCh, err := expect.SpawnSSH(client, timeout,
		expect.Verbose(false),
		expect.CheckDuration(expectCheckInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn SSH expect session: %w", err)
	}
	return newExpectTransport(exp, errCh, client), nil
}

// SpawnTransport runs command locally under a PTY and talks to it as a device shell
func SpawnTransport(command string, timeout time.Duration) (*ExpectTransport, error) {
	if command == "" {
		return nil, types.InvalidParameter("connect", "spawn command is required")
	}
	exp, errCh, err := expect.Spawn(command, timeout,
		expect.Verbose(false),
		expect.CheckDuration(expectCheckInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn %q: %w", command, err)
	}
	return newExpectTransport(exp, errCh, nil), nil
}

// DialTCP connects to a raw TCP console port and runs an expect session over it
func DialTCP(ctx context.Context, cfg types.DeviceConfig) (*ExpectTransport, error) {
	if cfg.Address == "" || cfg.Port == 0 {
		return nil, types.InvalidParameter("connect", "address and port are required for the tcp transport")
	}
	address := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: connectTimeout(cfg)}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	t, err := StreamTransport(conn, conn, connectTimeout(cfg))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

// StreamTransport runs an expect session over an arbitrary byte stream, such as a serial
// console or an already negotiated telnet connection. Closing the transport closes w.
func StreamTransport(w io.WriteCloser, r io.Reader, timeout time.Duration) (*ExpectTransport, error) {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	exp, errCh, err := expect.SpawnGeneric(&expect.GenOptions{
		In:  w,
		Out: eofReader{r: r, onEOF: stop},
		Wait: func() error {
			<-done
			return nil
		},
		Close: func() error {
			stop()
			return w.Close()
		},
		Check: func() bool { return true },
	}, timeout, expect.Verbose(false), expect.CheckDuration(expectCheckInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to start expect session: %w", err)
	}
	return newExpectTransport(exp, errCh, nil), nil
}

// eofReader reports the end of the device stream so the session counts as exited
type eofReader struct {
	r     io.Reader
	onEOF func()
}

func (e eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.onEOF()
	}
	return n, err
}

func newExpectTransport(exp *expect.GExpect, errCh <-chan error, closer io.Closer) *ExpectTransport {
	t := &ExpectTransport{exp: exp, closer: closer}
	go func() {
		<-errCh
		t.mu.Lock()
		t.exited = true
		t.mu.Unlock()
	}()
	return t
}

// Write sends raw keystrokes
func (t *ExpectTransport) Write(p []byte) error {
	if t.hasExited() {
		return io.ErrClosedPipe
	}
	return t.exp.Send(string(p))
}

// Read returns everything buffered, waiting up to timeout for the first byte
func (t *ExpectTransport) Read(timeout time.Duration) ([]byte, error) {
	out, _, err := t.exp.Expect(anyOutput, timeout)
	if err == nil {
		return []byte(out), nil
	}
	if isExpectTimeout(err) {
		if t.hasExited() {
			return nil, io.EOF
		}
		return nil, types.ErrReadTimeout
	}
	if t.hasExited() {
		return nil, io.EOF
	}
	return nil, err
}

// Close terminates the expect session and the underlying connection
func (t *ExpectTransport) Close() error {
	var err error
	if !t.hasExited() {
		err = multierr.Append(err, t.exp.Close())
	}
	if t.closer != nil {
		err = multierr.Append(err, ignoreEOF(t.closer.Close()))
	}
	return err
}

func (t *ExpectTransport) hasExited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

func isExpectTimeout(err error) bool {
	var te expect.TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return status.Code(err) == codes.DeadlineExceeded
}

var _ types.Transport = (*ExpectTransport)(nil)
