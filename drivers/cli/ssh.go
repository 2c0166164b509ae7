package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nanoncore/nano-cliconf/types"
	"github.com/nanoncore/nano-cliconf/vendors/common"
)

const (
	defaultSSHPort        = 22
	defaultConnectTimeout = 15 * time.Second
	readBufferSize        = 32 * 1024
)

// Many access and aggregation devices still only offer SHA-1 key exchange and CBC ciphers
var (
	legacyKeyExchanges = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group-exchange-sha1",
		"diffie-hellman-group1-sha1",
	}
	legacyCiphers = []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-cbc",
		"3des-cbc",
	}
	legacyMACs = []string{
		"hmac-sha2-256-etm@openssh.com",
		"hmac-sha2-256",
		"hmac-sha2-512",
		"hmac-sha1",
		"hmac-sha1-96",
	}
)

// SSHTransport is an interactive PTY shell over golang.org/x/crypto/ssh
type SSHTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	chunks chan []byte
	done   chan struct{}

	mu      sync.Mutex
	readErr error
	closed  bool
}

// SSHClientConfig builds the client configuration for cfg. Password authentication is offered
// together with keyboard-interactive, since many devices only accept the latter.
func SSHClientConfig(cfg types.DeviceConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		password := cfg.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // verification is opt-in via KnownHostsFile
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKey = cb
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}
	if common.MetadataBool(cfg.Metadata, true, "ssh_legacy_algorithms") {
		clientConfig.Config = ssh.Config{
			KeyExchanges: legacyKeyExchanges,
			Ciphers:      legacyCiphers,
			MACs:         legacyMACs,
		}
	}
	return clientConfig, nil
}

// DialSSH connects to the device and opens a shell on a PTY
func DialSSH(ctx context.Context, cfg types.DeviceConfig) (*SSHTransport, error) {
	client, err := dialSSHClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	t, err := NewSSHTransport(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return t, nil
}

func dialSSHClient(ctx context.Context, cfg types.DeviceConfig) (*ssh.Client, error) {
	if cfg.Address == "" {
		return nil, types.InvalidParameter("connect", "address is required")
	}
	sshConfig, err := SSHClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = defaultSSHPort
	}
	address := net.JoinHostPort(cfg.Address, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	// the handshake is bounded like the dial; the deadline is lifted once it completes
	deadline := time.Now().Add(sshConfig.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = sshConn.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// NewSSHTransport requests a PTY and starts the login shell on an established client.
// The transport owns the client and closes it with the shell.
func NewSSHTransport(client *ssh.Client) (*SSHTransport, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 0, 511, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	t := &SSHTransport{
		client:  client,
		session: session,
		stdin:   stdin,
		chunks:  make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	go t.pump(stdout)
	return t, nil
}

// pump copies shell output into the chunk channel until the stream ends
func (t *SSHTransport) pump(r io.Reader) {
	defer close(t.chunks)
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case t.chunks <- chunk:
			case <-t.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				t.mu.Lock()
				t.readErr = err
				t.mu.Unlock()
			}
			return
		}
	}
}

// Write sends raw keystrokes to the shell
func (t *SSHTransport) Write(p []byte) error {
	_, err := t.stdin.Write(p)
	return err
}

// Read returns the next chunk of shell output
func (t *SSHTransport) Read(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk, ok := <-t.chunks:
		if !ok {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.readErr != nil {
				return nil, t.readErr
			}
			return nil, io.EOF
		}
		return chunk, nil
	case <-timer.C:
		return nil, types.ErrReadTimeout
	}
}

// Close ends the shell and the SSH connection
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	var err error
	err = multierr.Append(err, ignoreEOF(t.session.Close()))
	err = multierr.Append(err, t.client.Close())
	return err
}

func ignoreEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}

var _ types.Transport = (*SSHTransport)(nil)
