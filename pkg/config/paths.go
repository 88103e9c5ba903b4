package config

import (
	"errors"
	"os"
	"path/filepath"
)

// UserConfigDirectory is a package-level var so tests can stub it, exactly
// the teacher's CliPath pattern in pkg/config/cli-path.go.
var UserConfigDirectory = os.UserConfigDir

// ConfigPath returns the directory and absolute file path of the daemon's
// own JSON config, generalizing the teacher's CliPath (a single
// preferences file) to this daemon's config file.
func ConfigPath() (configDir string, configFile string, err error) {
	userConfigDir, err := UserConfigDirectory()
	if err != nil {
		return "", "", errors.New(UserConfigDirectoryNotFoundErrorMessage)
	}
	configDir = filepath.Join(userConfigDir, DaemonConfigDirectory)
	configFile = filepath.Join(configDir, DaemonConfigFile)
	return configDir, configFile, nil
}

// StatePath returns the directory and absolute file path of the watched-
// roots/trigger persistence file, generalizing the teacher's TargetsPath
// (a sibling small JSON file under the same config directory).
func StatePath() (configDir string, stateFile string, err error) {
	configDir, _, err = ConfigPath()
	if err != nil {
		return "", "", err
	}
	stateFile = filepath.Join(configDir, StateFileName)
	return configDir, stateFile, nil
}

// SockPath returns the default unix socket path, honoring WATCHMAN_SOCK
// (spec §6's consumed environment variables) before falling back to a
// file under the config directory.
func SockPath() (string, error) {
	if s := os.Getenv("WATCHMAN_SOCK"); s != "" {
		return s, nil
	}
	configDir, _, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, SockFileName), nil
}

// LogPath returns the default daemon log file path.
func LogPath() (string, error) {
	configDir, _, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, LogFileName), nil
}
