package sheetstore

import (
	"log/slog"
	"time"
)

// Config represents configuration for the store
type Config struct {
	SyncInterval    time.Duration // Interval for periodic commit, 0 disables it
	MaxRetries      int           // Maximum number of retries for adapter calls (default: 3)
	RetryInterval   time.Duration // Base interval between retries for exponential backoff (default: 100ms)
	CommitOnRelease bool          // Save after every operation run outside Begin/Commit

	StrictMapping    bool // Unsupported field mappings fail instead of being skipped
	StrictReferences bool // Dangling references fail instead of being dropped

	// SequenceSheet names the sheet backing IncrementGenerator (default: IncrementTable)
	SequenceSheet string
	// SequenceBlock is the number of values reserved per allocation (default: 10)
	SequenceBlock int

	Logger        *slog.Logger
	Clock         func() time.Time
	IdentityCodec IdentityCodec
	Converters    *Converters
}

// withDefaults returns a copy with zero values replaced by defaults
func (c *Config) withDefaults() Config {
	var cfg Config
	if c != nil {
		cfg = *c
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}
	if cfg.SequenceSheet == "" {
		cfg.SequenceSheet = "IncrementTable"
	}
	if cfg.SequenceBlock <= 0 {
		cfg.SequenceBlock = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.IdentityCodec == nil {
		cfg.IdentityCodec = DefaultIdentityCodec{}
	}
	if cfg.Converters == nil {
		cfg.Converters = NewConverters()
	}
	return cfg
}
