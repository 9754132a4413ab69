package storage

// Config holds configuration for the SQLite database.
type Config struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" default:"./data/calendar-sync.db"`
	// BusyTimeoutMs is how long a writer waits on a locked database.
	BusyTimeoutMs int `mapstructure:"busy_timeout_ms" default:"5000"`
	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `mapstructure:"max_open_conns" default:"5"`
}
