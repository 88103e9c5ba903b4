package config_test

import (
	"errors"
	"testing"

	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestConfigPath(t *testing.T) {
	original := config.UserConfigDirectory
	defer func() { config.UserConfigDirectory = original }()

	t.Run("UserConfigDir func returns a directory", func(t *testing.T) {
		config.UserConfigDirectory = func() (string, error) {
			return "user/config/dir", nil
		}
		dir, file, err := config.ConfigPath()
		assert.NoError(t, err)
		assert.Equal(t, "user/config/dir/fswatchd", dir)
		assert.Equal(t, "user/config/dir/fswatchd/config.json", file)
	})

	t.Run("UserConfigDir func returns an error", func(t *testing.T) {
		config.UserConfigDirectory = func() (string, error) {
			return "", errors.New("boom")
		}
		dir, file, err := config.ConfigPath()
		assert.Equal(t, config.UserConfigDirectoryNotFoundErrorMessage, err.Error())
		assert.Equal(t, "", dir)
		assert.Equal(t, "", file)
	})
}

func TestStatePath(t *testing.T) {
	original := config.UserConfigDirectory
	defer func() { config.UserConfigDirectory = original }()

	config.UserConfigDirectory = func() (string, error) {
		return "user/config/dir", nil
	}
	dir, file, err := config.StatePath()
	assert.NoError(t, err)
	assert.Equal(t, "user/config/dir/fswatchd", dir)
	assert.Equal(t, "user/config/dir/fswatchd/state.json", file)
}

func TestSockPathHonorsEnv(t *testing.T) {
	t.Setenv("WATCHMAN_SOCK", "/tmp/explicit.sock")
	p, err := config.SockPath()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/explicit.sock", p)
}
