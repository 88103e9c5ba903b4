package config

import (
	"encoding/json"
	"os"
	"time"
)

// Daemon is the daemon's own on-disk config (spec §6 Concrete Go shape):
// everything a CLI flag can also set, so an operator can fix defaults once
// instead of repeating flags. Field names mirror the CLI flags directly.
type Daemon struct {
	SockName      string   `json:"sockname,omitempty"`
	LogFile       string   `json:"logfile,omitempty"`
	StateFile     string   `json:"statefile,omitempty"`
	NoSaveState   bool     `json:"no_save_state,omitempty"`
	Watcher       string   `json:"watcher,omitempty"`
	GCIntervalSec int      `json:"gc_interval_seconds,omitempty"`
	GCAgeSec      int      `json:"gc_age_seconds,omitempty"`
	IdleReapSec   int      `json:"idle_reap_seconds,omitempty"`
	RootFiles     []string `json:"root_files,omitempty"`
}

// DefaultRootFiles mirrors watchman's own allowlist closely enough to
// exercise watch-project's "first file found wins" walk; RootConfigFileName
// always comes first per spec §6.
func DefaultRootFiles() []string {
	return []string{RootConfigFileName, ".git", ".hg", ".svn"}
}

// DefaultDaemon returns the config used when no on-disk file exists.
func DefaultDaemon() Daemon {
	return Daemon{
		Watcher:       "auto",
		GCIntervalSec: 300,
		GCAgeSec:      3600,
		IdleReapSec:   0,
		RootFiles:     DefaultRootFiles(),
	}
}

// LoadDaemon reads the daemon config file if present, honoring
// WATCHMAN_CONFIG_FILE (spec §6's consumed environment variables) ahead of
// the default location; a missing file is not an error, mirroring the
// teacher's obsidian/ignore.go "accept an override file if present, else
// defaults" pattern.
func LoadDaemon() (Daemon, error) {
	cfg := DefaultDaemon()

	path := os.Getenv("WATCHMAN_CONFIG_FILE")
	if path == "" {
		_, defaultPath, err := ConfigPath()
		if err != nil {
			return cfg, nil
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var onDisk Daemon
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return cfg, err
	}
	cfg.mergeFrom(onDisk)
	return cfg, nil
}

func (d *Daemon) mergeFrom(o Daemon) {
	if o.SockName != "" {
		d.SockName = o.SockName
	}
	if o.LogFile != "" {
		d.LogFile = o.LogFile
	}
	if o.StateFile != "" {
		d.StateFile = o.StateFile
	}
	if o.NoSaveState {
		d.NoSaveState = true
	}
	if o.Watcher != "" {
		d.Watcher = o.Watcher
	}
	if o.GCIntervalSec != 0 {
		d.GCIntervalSec = o.GCIntervalSec
	}
	if o.GCAgeSec != 0 {
		d.GCAgeSec = o.GCAgeSec
	}
	if o.IdleReapSec != 0 {
		d.IdleReapSec = o.IdleReapSec
	}
	if len(o.RootFiles) > 0 {
		d.RootFiles = o.RootFiles
	}
}

// GCInterval/GCAge/IdleReapAge convert the JSON second-counts to durations
// for pkg/root.Config.
func (d Daemon) GCInterval() time.Duration { return time.Duration(d.GCIntervalSec) * time.Second }
func (d Daemon) GCAge() time.Duration      { return time.Duration(d.GCAgeSec) * time.Second }
func (d Daemon) IdleReapAge() time.Duration {
	return time.Duration(d.IdleReapSec) * time.Second
}
