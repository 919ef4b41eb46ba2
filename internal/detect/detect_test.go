package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout/rollout/internal/steps"
	"github.com/rollout/rollout/pkg/testutil"
)

func TestDetect_Installed(t *testing.T) {
	session := &testutil.FakeSession{
		Exact: map[string]testutil.Response{
			"test -d /opt/splunkforwarder && echo 'exists'": {Stdout: "exists\n"},
		},
	}

	state, err := NewDetector(nil).Detect(context.Background(), session, steps.Linux{}, "/opt/splunkforwarder")
	require.NoError(t, err)
	assert.Equal(t, Installed, state)
}

func TestDetect_NotInstalled(t *testing.T) {
	session := &testutil.FakeSession{
		Exact: map[string]testutil.Response{
			"test -d /opt/splunkforwarder && echo 'exists'": {ExitCode: 1},
		},
	}

	state, err := NewDetector(nil).Detect(context.Background(), session, steps.Linux{}, "/opt/splunkforwarder")
	require.NoError(t, err)
	assert.Equal(t, NotInstalled, state)
}

func TestDetect_TransportFailureIsUnknown(t *testing.T) {
	session := &testutil.FakeSession{
		Exact: map[string]testutil.Response{
			"test -d /opt/splunkforwarder && echo 'exists'": {Err: errors.New("connection lost")},
		},
	}

	state, err := NewDetector(nil).Detect(context.Background(), session, steps.Linux{}, "/opt/splunkforwarder")
	require.Error(t, err)
	assert.Equal(t, Unknown, state)
	assert.Contains(t, err.Error(), "connection lost")
}

func TestDetect_UnexpectedOutputIsNotInstalled(t *testing.T) {
	session := &testutil.FakeSession{
		Exact: map[string]testutil.Response{
			"test -d /opt/splunkforwarder && echo 'exists'": {Stdout: "garbage"},
		},
	}

	state, err := NewDetector(nil).Detect(context.Background(), session, steps.Linux{}, "/opt/splunkforwarder")
	require.NoError(t, err)
	assert.Equal(t, NotInstalled, state)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "installed", Installed.String())
	assert.Equal(t, "not_installed", NotInstalled.String())
	assert.Equal(t, "unknown", Unknown.String())
}
