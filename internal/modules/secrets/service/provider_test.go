package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"spread_mirror/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"followers/f-1:\n  username: alice\n  password: s3cret\n"), 0o600))

	v := NewVaultFile(path, logger.Nop())

	c, err := v.Resolve(context.Background(), "followers/f-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "alice", c.Username)
	assert.Equal(t, "s3cret", c.Password)
}

func TestResolveUnknownReturnsNil(t *testing.T) {
	v := NewVaultFile(filepath.Join(t.TempDir(), "absent.yaml"), logger.Nop())

	c, err := v.Resolve(context.Background(), "followers/ghost")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestResolveEnvOverridesFile(t *testing.T) {
	t.Setenv("SECRET_FOLLOWERS_F_2", "bob:hunter2")

	v := NewVaultFile(filepath.Join(t.TempDir(), "absent.yaml"), logger.Nop())

	c, err := v.Resolve(context.Background(), "followers/f-2")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "bob", c.Username)
	assert.Equal(t, "hunter2", c.Password)
}
