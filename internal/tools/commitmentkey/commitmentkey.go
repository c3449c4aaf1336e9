// Package commitmentkey generates secrets for signing score previews.
package commitmentkey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/louisbranch/questline/internal/platform/config"
	"github.com/louisbranch/questline/internal/services/scoring/domain/commitment"
)

// minBytes keeps generated secrets at HMAC-SHA256 block strength or above.
const minBytes = 16

// Config holds configuration for commitment key generation.
type Config struct {
	Bytes int
	// KeyID, when set, emits a rotation entry for the keyed form instead of a
	// single key.
	KeyID string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes")
	fs.StringVar(&cfg.KeyID, "id", cfg.KeyID, "key id for a rotation entry (optional)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a secret, checks it loads as a keyring, and writes the
// environment lines to out.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < minBytes {
		return fmt.Errorf("bytes must be at least %d", minBytes)
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if strings.ContainsAny(keyID, "=,") {
		return errors.New("key id must not contain '=' or ','")
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	secret := hex.EncodeToString(buf)

	secrets := commitment.SecretConfig{Key: secret}
	if keyID != "" {
		secrets = commitment.SecretConfig{Keys: keyID + "=" + secret, KeyID: keyID}
	}
	if _, err := secrets.Keyring(); err != nil {
		return fmt.Errorf("validate keyring: %w", err)
	}

	if keyID == "" {
		_, err := fmt.Fprintf(out, "%sSCORING_COMMITMENT_KEY=%s\n", config.EnvPrefix, secret)
		return err
	}
	_, err := fmt.Fprintf(out, "%sSCORING_COMMITMENT_KEY_ID=%s\n%sSCORING_COMMITMENT_KEYS=%s=%s\n",
		config.EnvPrefix, keyID, config.EnvPrefix, keyID, secret)
	return err
}
