package googlesheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ServiceAccountKey represents the structure of a service account JSON key file
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccountJSON parses a service account JSON file or data
func ParseServiceAccountJSON(jsonData []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(jsonData, &key); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}

	if key.Type != "service_account" {
		return nil, fmt.Errorf("invalid key type: %s (expected: service_account)", key.Type)
	}

	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("missing required fields in service account key")
	}

	return &key, nil
}

// Credentials selects how the adaptor authenticates. The first populated
// source is used: KeyJSON, KeyFile, Email with PrivateKey. With none set,
// Application Default Credentials apply.
type Credentials struct {
	KeyFile    string
	KeyJSON    []byte
	Email      string
	PrivateKey string
}

// TokenSource returns the token source for the selected credentials
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	switch {
	case len(c.KeyJSON) > 0:
		return tokenSourceFromJSON(ctx, c.KeyJSON)
	case c.KeyFile != "":
		jsonData, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return tokenSourceFromJSON(ctx, jsonData)
	case c.Email != "" || c.PrivateKey != "":
		return tokenSourceFromKey(ctx, &ServiceAccountKey{ClientEmail: c.Email, PrivateKey: c.PrivateKey}), nil
	}

	// GOOGLE_APPLICATION_CREDENTIALS, gcloud credentials, then the GCE
	// metadata server
	ts, err := google.DefaultTokenSource(ctx, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to get default token source: %w", err)
	}
	return ts, nil
}

// NewWithCredentials creates a SheetsAdaptor authenticated by creds
func NewWithCredentials(ctx context.Context, config Config, creds Credentials) (*SheetsAdaptor, error) {
	ts, err := creds.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return NewSheetsAdaptor(ctx, config, option.WithTokenSource(ts))
}

// NewWithJSONKeyFile creates a SheetsAdaptor from a service account key
// file, falling back to GOOGLE_APPLICATION_CREDENTIALS
func NewWithJSONKeyFile(ctx context.Context, config Config, jsonPath string) (*SheetsAdaptor, error) {
	if jsonPath == "" {
		jsonPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
		if jsonPath == "" {
			return nil, fmt.Errorf("no JSON key file path provided and GOOGLE_APPLICATION_CREDENTIALS not set")
		}
	}
	return NewWithCredentials(ctx, config, Credentials{KeyFile: jsonPath})
}

// NewWithDefaultCredentials creates a SheetsAdaptor using Application
// Default Credentials
func NewWithDefaultCredentials(ctx context.Context, config Config) (*SheetsAdaptor, error) {
	return NewWithCredentials(ctx, config, Credentials{})
}

func tokenSourceFromJSON(ctx context.Context, jsonData []byte) (oauth2.TokenSource, error) {
	creds, err := google.CredentialsFromJSON(ctx, jsonData, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds.TokenSource, nil
}

func tokenSourceFromKey(ctx context.Context, key *ServiceAccountKey) oauth2.TokenSource {
	tokenURL := key.TokenURI
	if tokenURL == "" {
		tokenURL = google.JWTTokenURL
	}
	jwtConfig := &jwt.Config{
		Email:      key.ClientEmail,
		PrivateKey: []byte(key.PrivateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   tokenURL,
	}
	return jwtConfig.TokenSource(ctx)
}
