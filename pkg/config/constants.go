package config

const (
	UserConfigDirectoryNotFoundErrorMessage = "User config directory not found"

	// DaemonConfigDirectory/DaemonConfigFile locate the daemon's own JSON
	// config (logfile/statefile/sockname defaults an operator can override
	// on disk instead of via flags every time).
	DaemonConfigDirectory = "fswatchd"
	DaemonConfigFile      = "config.json"

	// StateFileName is the watched-roots + trigger persistence file (spec
	// §6 Persistence), sibling to the daemon config file.
	StateFileName = "state.json"

	// SockFileName is the default unix socket filename, sibling to the
	// state file unless overridden by --sockname or WATCHMAN_SOCK.
	SockFileName = "sock"

	// LogFileName is the default daemon log file.
	LogFileName = "log"

	// RootConfigFileName is the per-root override file (spec's
	// ".watchmanconfig"-equivalent); both this name and its .yaml sibling
	// are accepted.
	RootConfigFileName     = ".fswatchdconfig"
	RootConfigFileNameYaml = ".fswatchdconfig.yaml"
)
