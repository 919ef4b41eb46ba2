// Package sshx provides the SSH transport used to drive remote installs.
// It wraps golang.org/x/crypto/ssh behind small interfaces so pipeline
// logic can be tested against fakes.
package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	gssh "golang.org/x/crypto/ssh"

	"github.com/rollout/rollout/internal/config"
)

// Output is the captured result of a remote command. A non-zero exit
// code is not an error; transport failures are.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited zero.
func (o *Output) OK() bool {
	return o.ExitCode == 0
}

// Runner executes remote commands.
type Runner interface {
	// Run executes cmd on the remote host and captures its output.
	// The context bounds the command execution time.
	Run(ctx context.Context, cmd string) (*Output, error)
}

// Session is an established connection to a single host.
type Session interface {
	Runner
	Close() error
}

// Dialer establishes sessions to target hosts.
type Dialer interface {
	Dial(ctx context.Context, host config.HostTarget) (Session, error)
}

// Options configures the SSH dialer.
type Options struct {
	// ConnectTimeout bounds the TCP connect and SSH handshake.
	ConnectTimeout time.Duration
	// RetryBackoff is the pause before the single reconnect attempt
	// after a transient dial failure.
	RetryBackoff time.Duration
	// OnRetry is invoked when a dial is retried. May be nil.
	OnRetry func()
}

// dialer is the production Dialer built on x/crypto/ssh.
type dialer struct {
	opts Options
}

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) Dialer {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 3 * time.Second
	}
	return &dialer{opts: opts}
}

// Dial connects to the host. A transient failure is retried exactly once
// after a short backoff; authentication failures are returned immediately.
func (d *dialer) Dial(ctx context.Context, host config.HostTarget) (Session, error) {
	sess, err := d.dialOnce(host)
	if err == nil {
		return sess, nil
	}
	if IsAuthError(err) || !IsTransient(err) {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d.opts.RetryBackoff):
	}

	if d.opts.OnRetry != nil {
		d.opts.OnRetry()
	}
	return d.dialOnce(host)
}

func (d *dialer) dialOnce(host config.HostTarget) (Session, error) {
	auth, err := authMethods(host)
	if err != nil {
		return nil, err
	}

	conf := &gssh.ClientConfig{
		User:            host.Username,
		Auth:            auth,
		HostKeyCallback: gssh.InsecureIgnoreHostKey(),
		Timeout:         d.opts.ConnectTimeout,
	}

	client, err := gssh.Dial("tcp", host.Addr(), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", host.Addr(), err)
	}

	return &session{client: client}, nil
}

// authMethods builds the SSH auth chain for a host. Key auth is tried
// before password auth when both are configured.
func authMethods(host config.HostTarget) ([]gssh.AuthMethod, error) {
	var methods []gssh.AuthMethod

	if host.KeyFile != "" {
		key, err := os.ReadFile(host.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := gssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, gssh.PublicKeys(signer))
	}

	if host.Password != "" {
		methods = append(methods, gssh.Password(host.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication method configured")
	}

	return methods, nil
}

// session wraps an established SSH client connection.
type session struct {
	client *gssh.Client
}

// Run executes cmd in a fresh session on the connection. The context
// bounds execution; on expiry the underlying connection is closed to
// interrupt the remote command.
func (s *session) Run(ctx context.Context, cmd string) (*Output, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		// Closing the connection interrupts the in-flight command.
		_ = s.client.Close()
		return nil, fmt.Errorf("command timed out: %w", ctx.Err())
	case err = <-done:
	}

	out := &Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var ee *gssh.ExitError
		if errors.As(err, &ee) {
			out.ExitCode = ee.ExitStatus()
			return out, nil
		}
		return nil, fmt.Errorf("command failed: %w", err)
	}
	return out, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

// IsAuthError reports whether err is an SSH authentication failure.
// Authentication failures are never retried.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	// x/crypto/ssh reports handshake auth failures as plain errors.
	return containsAny(err.Error(),
		"unable to authenticate",
		"permission denied",
		"no supported methods remain",
	)
}

// IsTransient reports whether err looks like a transient network
// failure worth one retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
