package commitment

import (
	"fmt"
	"strings"

	"github.com/louisbranch/questline/internal/platform/config"
	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

const defaultKeyID = "v1"

// SecretConfig supplies commitment secrets.
type SecretConfig struct {
	// Key is a single secret stored under KeyID.
	Key string `env:"SCORING_COMMITMENT_KEY"`
	// Keys lists "id=secret" pairs separated by commas. It takes precedence
	// over Key.
	Keys  string `env:"SCORING_COMMITMENT_KEYS"`
	KeyID string `env:"SCORING_COMMITMENT_KEY_ID" envDefault:"v1"`
}

// KeyringFromEnv loads the commitment keyring from the environment.
func KeyringFromEnv() (*Keyring, error) {
	var cfg SecretConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return cfg.Keyring()
}

// Keyring builds a keyring from the configured secrets.
func (c SecretConfig) Keyring() (*Keyring, error) {
	keyID := strings.TrimSpace(c.KeyID)
	if keyID == "" {
		keyID = defaultKeyID
	}

	keySpec := strings.TrimSpace(c.Keys)
	if keySpec == "" {
		raw := strings.TrimSpace(c.Key)
		if raw == "" {
			return nil, apperrors.New(apperrors.CodeConfigurationSecretMissing, config.EnvPrefix+"SCORING_COMMITMENT_KEY is required")
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(keySpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid %sSCORING_COMMITMENT_KEYS entry", config.EnvPrefix)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
