package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImageHost(t *testing.T) *ImageHost {
	t.Helper()
	host, err := NewImageHost(context.Background(), &config.Config{
		S3Region:       "us-east-1",
		S3Endpoint:     "http://localhost:9000",
		S3AccessKey:    "minio",
		S3SecretKey:    "minio-secret",
		S3Bucket:       "nitip-photos",
		S3UploadExpiry: 10 * time.Minute,
	})
	require.NoError(t, err)
	host.now = func() time.Time { return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) }
	return host
}

func TestImageHost_PresignUpload(t *testing.T) {
	host := newTestImageHost(t)

	ticket, err := host.PresignUpload(context.Background(), "mall-a", "image/PNG", 1024)
	require.NoError(t, err)

	assert.Equal(t, "PUT", ticket.Method)
	assert.True(t, strings.HasPrefix(ticket.Key, "deposits/mall-a/2026/03/09/"))
	assert.True(t, strings.HasSuffix(ticket.Key, ".png"))
	assert.Contains(t, ticket.UploadURL, "http://localhost:9000/nitip-photos/"+ticket.Key)
	assert.Contains(t, ticket.UploadURL, "X-Amz-Signature=")
	assert.Equal(t, "http://localhost:9000/nitip-photos/"+ticket.Key, ticket.PublicURL)
	assert.Equal(t, time.Date(2026, 3, 9, 8, 10, 0, 0, time.UTC), ticket.ExpiresAt)
	_, hasHost := ticket.Headers["Host"]
	assert.False(t, hasHost)
}

func TestImageHost_RejectsBadInput(t *testing.T) {
	host := newTestImageHost(t)

	_, err := host.PresignUpload(context.Background(), "mall-a", "image/gif", 100)
	assert.ErrorIs(t, err, ErrUnsupportedImageType)

	_, err = host.PresignUpload(context.Background(), "mall-a", "image/jpeg", MaxImageBytes+1)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = host.PresignUpload(context.Background(), "mall-a", "image/webp", 0)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestImageHost_NilIsDisabled(t *testing.T) {
	var host *ImageHost
	_, err := host.PresignUpload(context.Background(), "mall-a", "image/jpeg", 10)
	assert.ErrorIs(t, err, ErrImageHostDisabled)
}

func TestValidateImage_Boundary(t *testing.T) {
	ext, err := ValidateImage("image/jpeg", MaxImageBytes)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", ext)
}
