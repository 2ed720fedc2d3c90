// ABOUTME: Invitation token generation and hashing for the team invite flow.
// ABOUTME: The raw token is emailed once; only its sha256 hex hash is stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const inviteTokenBytes = 32

// GenerateInviteToken returns a new raw invitation token and its hash.
func GenerateInviteToken() (rawToken, tokenHash string, err error) {
	b := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate invite token: %w", err)
	}
	rawToken = hex.EncodeToString(b)
	return rawToken, HashInviteToken(rawToken), nil
}

// HashInviteToken returns the sha256 hex hash of rawToken, the value looked
// up in invitations.token_hash.
func HashInviteToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
