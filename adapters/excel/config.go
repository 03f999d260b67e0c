package excel

import (
	"fmt"
	"strings"
	"time"

	"github.com/ideamans/go-sheetstore"
)

// Config holds configuration for Excel adapter
type Config struct {
	FilePath string // Path to the Excel file
	Format   string // Requested format from the connection URL: excel, ooxml or xls
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return ErrMissingFilePath
	}
	switch c.Format {
	case "", "excel", "ooxml", "xls":
		return nil
	}
	return fmt.Errorf("%w: unknown format %q", ErrInvalidURL, c.Format)
}

// ParseURL reads a connection URL of the form excel:file:<path>,
// ooxml:file:<path> or xls:file:<path>. Every format is written as xlsx.
func ParseURL(url string) (*Config, error) {
	format, rest, ok := strings.Cut(url, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	format = strings.ToLower(format)
	path, ok := strings.CutPrefix(rest, "file:")
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %q has no file path", ErrInvalidURL, url)
	}
	cfg := &Config{FilePath: path, Format: format}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultClientConfig returns the recommended default configuration for Excel
func DefaultClientConfig() *sheetstore.Config {
	return &sheetstore.Config{
		SyncInterval:  1 * time.Second,
		MaxRetries:    3,
		RetryInterval: 5 * time.Second,
	}
}
