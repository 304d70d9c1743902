package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultdrive/vaultdrive/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("VAULTDRIVE_AUTH_JWT_SECRET", "0123456789012345678901234567890123456789")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "local", cfg.Storage.Backend)
	require.Equal(t, "./data", cfg.Storage.Local.RootDir)
	require.Equal(t, "free", cfg.Quota.DefaultTierName)
	require.EqualValues(t, 32*1024*1024, cfg.Multipart.MaxChunkSize)
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	t.Setenv("VAULTDRIVE_AUTH_JWT_SECRET", "too-short")

	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv("VAULTDRIVE_AUTH_JWT_SECRET", "0123456789012345678901234567890123456789")
	t.Setenv("VAULTDRIVE_HTTP_ADDR", ":9999")
	t.Setenv("VAULTDRIVE_STORAGE_BACKEND", "s3")
	t.Setenv("VAULTDRIVE_STORAGE_S3_BUCKET_NAME", "my-bucket")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTP.Addr)
	require.Equal(t, "s3", cfg.Storage.Backend)
	require.Equal(t, "my-bucket", cfg.Storage.S3.BucketName)
}
