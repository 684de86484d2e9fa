package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Secret store coordinates.
const (
	secretService   = "pdfinsight"
	secretGeminiKey = "gemini_api_key"
	secretAPIToken  = "api_token"
)

// SecretStore reads and writes named secrets in the platform secret store
// (macOS Keychain, or a mode-0600 secrets file elsewhere).
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

type platformSecrets struct{}

// NewSecretStore returns the platform secret store.
func NewSecretStore() SecretStore {
	return platformSecrets{}
}

func (platformSecrets) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformSecrets) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token protecting the local HTTP API,
// minting and persisting one on first use.
func GetAPIToken(ss SecretStore) (string, error) {
	token, err := ss.Get(secretService, secretAPIToken)
	if err == nil && token != "" {
		return token, nil
	}

	token = uuid.New().String()
	if err := ss.Set(secretService, secretAPIToken, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}

// StoreGeminiKey persists an interactively supplied Gemini API key so later
// starts do not prompt again.
func StoreGeminiKey(ss SecretStore, key string) error {
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	return ss.Set(secretService, secretGeminiKey, key)
}
