// Package commitment binds score previews to the identity they were issued
// for, so a redeemed preview can be checked for tampering.
package commitment

import (
	"crypto/hmac"
	"errors"
	"fmt"

	"github.com/louisbranch/questline/internal/platform/encoding"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
)

// Codec computes and verifies commitments.
//
// A commitment is HMAC-SHA256, keyed per game from the keyring, over the
// canonical JSON of {gameId, externalUserId, snapshots} with snapshots in
// their wire form. The encoding is part of the wire contract.
type Codec struct {
	keyring *Keyring
}

// NewCodec creates a codec over keyring.
func NewCodec(keyring *Keyring) (*Codec, error) {
	if keyring == nil {
		return nil, errors.New("commitment keyring is required")
	}
	return &Codec{keyring: keyring}, nil
}

type payload struct {
	GameID         string                `json:"gameId"`
	ExternalUserID string                `json:"externalUserId"`
	Snapshots      []simulation.Snapshot `json:"snapshots"`
}

// Payload returns the canonical bytes a commitment is computed over.
func Payload(gameID, externalUserID string, snapshots []simulation.Snapshot) ([]byte, error) {
	if snapshots == nil {
		snapshots = []simulation.Snapshot{}
	}
	data, err := encoding.CanonicalJSON(payload{
		GameID:         gameID,
		ExternalUserID: externalUserID,
		Snapshots:      snapshots,
	})
	if err != nil {
		return nil, fmt.Errorf("canonical commitment payload: %w", err)
	}
	return data, nil
}

// Compute returns the lowercase hex commitment under the active key.
func (c *Codec) Compute(gameID, externalUserID string, snapshots []simulation.Snapshot) (string, error) {
	data, err := Payload(gameID, externalUserID, snapshots)
	if err != nil {
		return "", err
	}
	return c.keyring.sign(c.keyring.activeKeyID, gameID, data)
}

// Verify reports whether commitment matches the inputs under any configured
// key.
func (c *Codec) Verify(gameID, externalUserID string, snapshots []simulation.Snapshot, commitment string) (bool, error) {
	data, err := Payload(gameID, externalUserID, snapshots)
	if err != nil {
		return false, err
	}
	matched := false
	for _, keyID := range c.keyring.KeyIDs() {
		expected, err := c.keyring.sign(keyID, gameID, data)
		if err != nil {
			return false, err
		}
		if hmac.Equal([]byte(expected), []byte(commitment)) {
			matched = true
		}
	}
	return matched, nil
}
