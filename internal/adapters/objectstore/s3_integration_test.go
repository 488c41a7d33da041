//go:build integration

package objectstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires an S3-compatible endpoint, e.g. a local MinIO:
// TEST_S3_ENDPOINT=localhost:9000 TEST_S3_ACCESS_KEY=minioadmin TEST_S3_SECRET_KEY=minioadmin

func TestIntegration_PresignedRoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := New(endpoint, os.Getenv("TEST_S3_ACCESS_KEY"), os.Getenv("TEST_S3_SECRET_KEY"), false, "auditflow-test")
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))

	key := "companies/test/" + uuid.NewString() + "/policy.txt"
	exists, _, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	u, err := s.PresignPut(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, HTTPTransfer{}.Transfer(ctx, u, strings.NewReader("policy v1"), 9, "text/plain"))

	exists, size, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.EqualValues(t, 9, size)
}
