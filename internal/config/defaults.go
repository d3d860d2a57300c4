package config

const (
	defaultDataDir            = "~/.local/share/conductor"
	defaultLogDir             = "~/.local/share/conductor/logs"
	defaultAPIBind            = "127.0.0.1:7512"
	defaultWiredPollInterval  = 1
	defaultMeshPollInterval   = 1
	defaultRediscoverInterval = 30
	defaultDiscoveryTimeout   = 10
	defaultQuitGraceSeconds   = 12
	defaultTermGraceSeconds   = 3
	defaultRetainEvents       = 5000
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultModuleLogLevel     = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Discovery: Discovery{
			WiredPollInterval: defaultWiredPollInterval,
			NetlinkEvents:     true,
		},
		Mesh: Mesh{
			PollInterval:       defaultMeshPollInterval,
			RediscoverInterval: defaultRediscoverInterval,
			DiscoveryTimeout:   defaultDiscoveryTimeout,
		},
		Modules: Modules{
			EntryPoints:      map[string]string{},
			QuitGraceSeconds: defaultQuitGraceSeconds,
			TermGraceSeconds: defaultTermGraceSeconds,
			LogLevel:         defaultModuleLogLevel,
		},
		Journal: Journal{
			RetainEvents: defaultRetainEvents,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
