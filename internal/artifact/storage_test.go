package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout/rollout/internal/config"
)

func TestNewUploader(t *testing.T) {
	ssl := false
	up, err := NewUploader(&config.StoreConfig{
		Endpoint:        "http://minio.example.com:9000",
		Bucket:          "rollouts",
		Region:          "us-east-1",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin123",
		UseSSL:          &ssl,
	}, nil)
	require.NoError(t, err)
	assert.NotNil(t, up)
	assert.Equal(t, "rollouts", up.bucket)
}

func TestNewUploader_InvalidEndpoint(t *testing.T) {
	_, err := NewUploader(&config.StoreConfig{
		Endpoint:        "://bad endpoint",
		Bucket:          "rollouts",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}, nil)
	require.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "rollouts/run-123/result.json", objectPath("run-123"))
}
