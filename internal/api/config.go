package api

import "time"

// Config holds configuration for the HTTP server.
type Config struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr" default:":8099"`
	// ReadTimeoutSeconds and WriteTimeoutSeconds bound a single request.
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds" default:"15"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds" default:"60"`
	// StaticDir, when set, is served at the root for the dashboard frontend.
	StaticDir string `mapstructure:"static_dir" default:""`
}

// ReadTimeout returns the read timeout as a duration.
func (c Config) ReadTimeout() time.Duration {
	return seconds(c.ReadTimeoutSeconds, 15)
}

// WriteTimeout returns the write timeout as a duration. Batch syncs answer
// synchronously, so this is longer than the read timeout.
func (c Config) WriteTimeout() time.Duration {
	return seconds(c.WriteTimeoutSeconds, 60)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
