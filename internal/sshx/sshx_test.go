package sshx

import (
	"errors"
	"fmt"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout/rollout/internal/config"
)

func TestOutputOK(t *testing.T) {
	assert.True(t, (&Output{ExitCode: 0}).OK())
	assert.False(t, (&Output{ExitCode: 1}).OK())
	assert.False(t, (&Output{ExitCode: 127}).OK())
}

func TestAuthMethods_PasswordOnly(t *testing.T) {
	methods, err := authMethods(config.HostTarget{
		Address:  "10.0.0.1",
		Port:     22,
		Username: "root",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestAuthMethods_MissingKeyFile(t *testing.T) {
	_, err := authMethods(config.HostTarget{
		Address:  "10.0.0.1",
		Port:     22,
		Username: "root",
		KeyFile:  filepath.Join(t.TempDir(), "missing_key"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read key file")
}

func TestAuthMethods_NoCredentials(t *testing.T) {
	_, err := authMethods(config.HostTarget{
		Address:  "10.0.0.1",
		Port:     22,
		Username: "root",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authentication method configured")
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "handshake auth failure",
			err:  errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"),
			want: true,
		},
		{
			name: "permission denied",
			err:  errors.New("permission denied (publickey)"),
			want: true,
		},
		{
			name: "connection refused",
			err:  syscall.ECONNREFUSED,
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "network timeout",
			err:  timeoutErr{},
			want: true,
		},
		{
			name: "wrapped connection refused",
			err:  fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
			want: true,
		},
		{
			name: "connection reset",
			err:  syscall.ECONNRESET,
			want: true,
		},
		{
			name: "auth failure",
			err:  errors.New("ssh: unable to authenticate"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer(Options{})
	require.NotNil(t, d)

	impl, ok := d.(*dialer)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, impl.opts.ConnectTimeout)
	assert.Equal(t, 3*time.Second, impl.opts.RetryBackoff)
}
