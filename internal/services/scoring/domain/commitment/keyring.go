package commitment

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

// Keyring stores root HMAC secrets and the id of the one that signs new
// commitments. Older secrets stay verifiable during rotation.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring. An empty key set fails closed.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, apperrors.New(apperrors.CodeConfigurationSecretMissing, "commitment secret is required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active commitment key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active commitment key id %q is not configured", activeKeyID)
	}
	copied := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) == 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeConfigurationSecretMissing, "commitment secret is empty", map[string]string{"KeyID": id})
		}
		copied[id] = append([]byte(nil), key...)
	}
	return &Keyring{keys: copied, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// KeyIDs returns every configured key id, sorted.
func (k *Keyring) KeyIDs() []string {
	if k == nil {
		return nil
	}
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (k *Keyring) sign(keyID, gameID string, payload []byte) (string, error) {
	rootKey, ok := k.keys[keyID]
	if !ok {
		return "", fmt.Errorf("commitment key id %q is unknown", keyID)
	}
	key, err := deriveGameKey(rootKey, gameID)
	if err != nil {
		return "", err
	}
	return hmacSHA256Hex(key, payload), nil
}

func deriveGameKey(rootKey []byte, gameID string) ([]byte, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, fmt.Errorf("game id is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "game:"+gameID, 32)
	if err != nil {
		return nil, fmt.Errorf("derive game key: %w", err)
	}
	return key, nil
}

func hmacSHA256Hex(key, value []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(value)
	return hex.EncodeToString(mac.Sum(nil))
}
