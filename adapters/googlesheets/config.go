package googlesheets

import (
	"errors"
	"time"

	"github.com/ideamans/go-sheetstore"
)

// ErrMissingSpreadsheetID is returned when no spreadsheet is configured
var ErrMissingSpreadsheetID = errors.New("spreadsheet ID is required")

// Config represents configuration specific to Google Sheets adapter
type Config struct {
	SpreadsheetID string
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.SpreadsheetID == "" {
		return ErrMissingSpreadsheetID
	}
	return nil
}

// DefaultClientConfig returns the recommended default configuration for Google Sheets
func DefaultClientConfig() *sheetstore.Config {
	return &sheetstore.Config{
		SyncInterval:  10 * time.Second,
		MaxRetries:    3,
		RetryInterval: 20 * time.Second,
	}
}
