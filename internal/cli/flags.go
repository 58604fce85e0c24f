package cli

import (
	"github.com/spf13/pflag"

	"github.com/remora-db/remora/internal/config"
)

// ServeFlags holds the flag values that override the loaded
// configuration.
type ServeFlags struct {
	ConfigPath string
	LogLevel   string
	Endpoint   string
	NoHistory  bool
}

// AddFlags adds the serve override flags to a FlagSet.
func (f *ServeFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&f.ConfigPath, "config", "c", "", "Path to config file")
	flags.StringVar(&f.LogLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.StringVar(&f.Endpoint, "endpoint", "", "Override tools service websocket URL")
	flags.BoolVar(&f.NoHistory, "no-history", false, "Disable task history persistence")
}

// Apply layers the flag values over cfg. Flags win over both the
// config file and environment variables.
func (f *ServeFlags) Apply(cfg *config.Config) error {
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.Endpoint != "" {
		cfg.ToolsService.Endpoint = f.Endpoint
	}
	if f.NoHistory {
		cfg.History.Enabled = false
	}
	return cfg.Validate()
}
